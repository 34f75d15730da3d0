package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/classlite/classlite-lms/internal/attempt"
	auth "github.com/classlite/classlite-lms/internal/auth/middleware"
	"github.com/classlite/classlite-lms/internal/grading"
	"github.com/classlite/classlite-lms/internal/quiz"
)

type attemptView struct {
	Quiz         *quiz.Quiz      `json:"quiz,omitempty"` // sanitized, only on start/resume
	Attempt      attempt.Attempt `json:"attempt"`
	RemainingSec int64           `json:"remaining_sec"`
	Resumed      bool            `json:"resumed,omitempty"`
}

// POST /quizzes/{quizID}/attempt — start a fresh attempt or resume the
// in-progress one. The student comes from the token, never the body.
func StartAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		student, err := auth.CurrentStudent(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		started, err := svc.Start(r.Context(), chi.URLParam(r, "quizID"), student.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		safe := started.Quiz.Sanitized()
		writeJSON(w, http.StatusOK, attemptView{
			Quiz:         &safe,
			Attempt:      started.Attempt,
			RemainingSec: started.RemainingSec,
			Resumed:      started.Resumed,
		})
	}
}

// PUT /quizzes/{quizID}/attempt/answers — capture answers and save progress.
// Body: {"answers": {"q1": {"selected": 2}, "q2": {"selected": -1, "text": "..."}}}
// Invalid captures are dropped silently; an expired attempt is force-submitted
// and answered with 409.
func SaveAnswersHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		student, err := auth.CurrentStudent(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		var req struct {
			Answers map[string]grading.Answer `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		a, remaining, err := svc.SaveAnswers(r.Context(), chi.URLParam(r, "quizID"), student.ID, req.Answers)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attemptView{Attempt: a, RemainingSec: remaining})
	}
}

// POST /quizzes/{quizID}/attempt/submit — idempotent: a second submit returns
// the already-persisted result.
func SubmitAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		student, err := auth.CurrentStudent(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		res, err := svc.Submit(r.Context(), chi.URLParam(r, "quizID"), student.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /quizzes/{quizID}/attempt
func GetAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		student, err := auth.CurrentStudent(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		a, remaining, err := svc.Get(r.Context(), chi.URLParam(r, "quizID"), student.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attemptView{Attempt: a, RemainingSec: remaining})
	}
}

// GET /quizzes/{quizID}/result
func GetResultHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		student, err := auth.CurrentStudent(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		res, err := svc.Result(r.Context(), chi.URLParam(r, "quizID"), student.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
