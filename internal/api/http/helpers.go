package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/classlite/classlite-lms/internal/quiz"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errStatus maps the attempt-lifecycle error taxonomy onto HTTP statuses so
// clients can route each failure to the right view.
func errStatus(err error) int {
	var ve *quiz.ValidationError
	switch {
	case errors.Is(err, quiz.ErrQuizNotFound),
		errors.Is(err, quiz.ErrAttemptNotFound),
		errors.Is(err, quiz.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, quiz.ErrPastDue):
		return http.StatusGone
	case errors.Is(err, quiz.ErrAlreadySubmitted):
		return http.StatusConflict
	case errors.Is(err, quiz.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case quiz.IsPersistence(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
