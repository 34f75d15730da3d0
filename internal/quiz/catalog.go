package quiz

import (
	"context"
	"sort"
	"sync"
)

// Catalog is the quiz definition store. Get returns the full quiz including
// answer keys; callers serving students must use Quiz.Sanitized.
type Catalog interface {
	Put(ctx context.Context, q Quiz) error
	Get(ctx context.Context, id string) (Quiz, error)
	List(ctx context.Context, limit, offset int) ([]Summary, error)
}

type memoryCatalog struct {
	mu      sync.RWMutex
	quizzes map[string]Quiz
}

// NewMemoryCatalog returns an in-memory Catalog for tests and offline use.
func NewMemoryCatalog() Catalog {
	return &memoryCatalog{quizzes: map[string]Quiz{}}
}

func (m *memoryCatalog) Put(_ context.Context, q Quiz) error {
	if err := Validate(q); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
	return nil
}

func (m *memoryCatalog) Get(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	if err := Validate(q); err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (m *memoryCatalog) List(_ context.Context, limit, offset int) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.quizzes))
	for _, q := range m.quizzes {
		out = append(out, q.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
