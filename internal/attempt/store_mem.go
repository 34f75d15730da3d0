package attempt

import (
	"context"
	"sort"
	"sync"

	"github.com/classlite/classlite-lms/internal/grading"
	"github.com/classlite/classlite-lms/internal/quiz"
)

type memoryStore struct {
	mu       sync.RWMutex
	attempts map[string]Attempt
	results  map[string]Result
}

// NewMemoryStore returns an in-memory Store for tests and offline use.
func NewMemoryStore() Store {
	return &memoryStore{
		attempts: map[string]Attempt{},
		results:  map[string]Result{},
	}
}

func key(quizID, studentID string) string { return quizID + "|" + studentID }

func (m *memoryStore) LoadAttempt(_ context.Context, quizID, studentID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[key(quizID, studentID)]
	if !ok {
		return Attempt{}, quiz.ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

func (m *memoryStore) SaveProgress(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(a.QuizID, a.StudentID)
	if existing, ok := m.attempts[k]; ok && existing.Terminal() {
		return quiz.ErrAlreadySubmitted
	}
	m.attempts[k] = cloneAttempt(a)
	return nil
}

func (m *memoryStore) Finalize(_ context.Context, a Attempt, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(a.QuizID, a.StudentID)
	if existing, ok := m.attempts[k]; ok && existing.Terminal() {
		return quiz.ErrAlreadySubmitted
	}
	m.attempts[k] = cloneAttempt(a)
	m.results[k] = r
	return nil
}

func (m *memoryStore) HasTerminalAttempt(_ context.Context, quizID, studentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[key(quizID, studentID)]
	return ok && a.Terminal(), nil
}

func (m *memoryStore) GetResult(_ context.Context, quizID, studentID string) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[key(quizID, studentID)]
	if !ok {
		return Result{}, quiz.ErrResultNotFound
	}
	return r, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts ListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.StudentID != "" && a.StudentID != opts.StudentID {
			continue
		}
		if opts.Status != "" && string(a.Status) != opts.Status {
			continue
		}
		out = append(out, cloneAttempt(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt > out[j].StartedAt
		}
		return out[i].ID < out[j].ID
	})
	if opts.Offset > len(out) {
		opts.Offset = len(out)
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func cloneAttempt(a Attempt) Attempt {
	answers := make(map[string]grading.Answer, len(a.Answers))
	for k, v := range a.Answers {
		answers[k] = v
	}
	a.Answers = answers
	return a
}
