package http

import (
	"net/http"
	"strings"

	"github.com/classlite/classlite-lms/internal/attempt"
	auth "github.com/classlite/classlite-lms/internal/auth/middleware"
	"github.com/classlite/classlite-lms/internal/rbac"
)

// GET /attempts?quiz_id=...&student_id=...&status=...&limit=50&offset=0
// RBAC:
// - role with attempt:view-all can list any filters
// - role with attempt:view-own only sees their own (student_id is forced to subject)
func ListAttemptsHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		if role == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		student, err := auth.CurrentStudent(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}

		quizID := strings.TrimSpace(r.URL.Query().Get("quiz_id"))
		studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

		if role != "admin" && role != "instructor" {
			studentID = student.ID
		}

		list, err := svc.ListAttempts(r.Context(), attempt.ListOpts{
			QuizID:    quizID,
			StudentID: studentID,
			Status:    status,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
