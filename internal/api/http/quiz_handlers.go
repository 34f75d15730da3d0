package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/classlite/classlite-lms/internal/quiz"
)

// POST /quizzes (instructor). Body is the full quiz definition including
// answer keys; it is validated before it lands in the catalog.
func UploadQuizHandler(catalog quiz.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := catalog.Put(r.Context(), q); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q.Summary())
	}
}

// GET /quizzes/{quizID}. Answer keys are stripped before serving.
func GetQuizHandler(catalog quiz.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		q, err := catalog.Get(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q.Sanitized())
	}
}

// GET /quizzes?limit=50&offset=0
func ListQuizzesHandler(catalog quiz.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
		out, err := catalog.List(r.Context(), limit, offset)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
