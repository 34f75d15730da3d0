package attempt

import "context"

type ListOpts struct {
	QuizID    string
	StudentID string
	Status    string // optional: in_progress|submitted
	Limit     int
	Offset    int
}

// Store persists attempts and results, keyed by (quizID, studentID).
//
// SaveProgress is an upsert and must refuse to touch a terminal attempt, so a
// stale autosave can never overwrite a completed submission. Finalize is
// atomic: afterwards either both the terminal attempt and the result are
// visible, or neither is.
type Store interface {
	LoadAttempt(ctx context.Context, quizID, studentID string) (Attempt, error)
	SaveProgress(ctx context.Context, a Attempt) error
	Finalize(ctx context.Context, a Attempt, r Result) error
	HasTerminalAttempt(ctx context.Context, quizID, studentID string) (bool, error)
	GetResult(ctx context.Context, quizID, studentID string) (Result, error)
	ListAttempts(ctx context.Context, opts ListOpts) ([]Attempt, error)
}
