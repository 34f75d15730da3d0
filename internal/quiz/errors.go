package quiz

import (
	"errors"
	"fmt"
)

// Sentinel errors for the attempt lifecycle. Handlers map each to a distinct
// HTTP status; none of them should crash the process.
var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrResultNotFound   = errors.New("result not found")
	ErrPastDue          = errors.New("quiz past due")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrUnauthenticated  = errors.New("unauthenticated")
)

// ValidationError rejects a malformed quiz definition or answer payload at the
// boundary instead of letting bad indexes flow into grading arithmetic.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a store read/write failure. It is retryable: callers
// keep their in-memory answers and may re-invoke the failed operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err is a storage failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
