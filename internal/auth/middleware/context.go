package auth

import (
	"context"

	"github.com/classlite/classlite-lms/internal/quiz"
)

// Student is the identity the attempt engine runs on behalf of.
type Student struct {
	ID   string
	Name string
}

type ctxKey string

const ctxKeyStudent ctxKey = "student"

func WithStudent(ctx context.Context, s Student) context.Context {
	return context.WithValue(ctx, ctxKeyStudent, s)
}

// CurrentStudent is the identity-provider contract: the signed-in student, or
// ErrUnauthenticated when no identity is attached.
func CurrentStudent(ctx context.Context) (Student, error) {
	if v := ctx.Value(ctxKeyStudent); v != nil {
		if s, ok := v.(Student); ok && s.ID != "" {
			return s, nil
		}
	}
	return Student{}, quiz.ErrUnauthenticated
}
