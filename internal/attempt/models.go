package attempt

import (
	"time"

	"github.com/classlite/classlite-lms/internal/grading"
	"github.com/classlite/classlite-lms/internal/quiz"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusGraded     Status = "graded"
)

// Attempt is one student's try at one quiz. At most one exists per
// (quiz, student) pair; once terminal it is read-only.
type Attempt struct {
	ID          string                    `json:"id"`
	QuizID      string                    `json:"quiz_id"`
	StudentID   string                    `json:"student_id"`
	Status      Status                    `json:"status"`
	Answers     map[string]grading.Answer `json:"answers"`
	StartedAt   int64                     `json:"started_at"` // unix seconds, set once, never reset on resume
	SubmittedAt int64                     `json:"submitted_at,omitempty"`
}

func (a Attempt) Terminal() bool {
	return a.Status == StatusSubmitted || a.Status == StatusGraded
}

// TimeRemaining derives the countdown from the wall clock rather than any
// stored counter, so periodic saves cannot accumulate drift. Never negative.
func (a Attempt) TimeRemaining(q quiz.Quiz, now time.Time) time.Duration {
	deadline := time.Unix(a.StartedAt, 0).Add(q.Duration())
	rem := deadline.Sub(now)
	if rem < 0 {
		rem = 0
	}
	return rem
}

// QuestionScore is one row of a Result, aligned to the quiz's question order.
type QuestionScore struct {
	QuestionID  string `json:"question_id"`
	Correct     bool   `json:"correct"`
	Awarded     int    `json:"awarded"`
	MaxMarks    int    `json:"max_marks"`
	NeedsReview bool   `json:"needs_review,omitempty"`
}

// Result is the graded outcome of a terminal attempt, created exactly once.
type Result struct {
	AttemptID     string          `json:"attempt_id"`
	QuizID        string          `json:"quiz_id"`
	StudentID     string          `json:"student_id"`
	MarksObtained int             `json:"marks_obtained"`
	TotalMarks    int             `json:"total_marks"`
	Percentage    float64         `json:"percentage"`
	Passed        bool            `json:"passed"`
	PendingReview bool            `json:"pending_review,omitempty"`
	PerQuestion   []QuestionScore `json:"per_question"`
	SubmittedAt   int64           `json:"submitted_at"`
	TimeTakenSec  int64           `json:"time_taken_sec"`
}
