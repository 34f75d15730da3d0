package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/classlite/classlite-lms/internal/grading"
	"github.com/classlite/classlite-lms/internal/quiz"
)

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func newFakeTicker() *fakeTicker          { return &fakeTicker{ch: make(chan time.Time, 1)} }
func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeTicker) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// flakyStore wraps a Store and fails writes on demand.
type flakyStore struct {
	Store
	failSave     bool
	failFinalize bool
	saves        int
	finalizes    int
}

func (f *flakyStore) SaveProgress(ctx context.Context, a Attempt) error {
	f.saves++
	if f.failSave {
		return &quiz.PersistenceError{Op: "save progress", Err: errors.New("disk full")}
	}
	return f.Store.SaveProgress(ctx, a)
}

func (f *flakyStore) Finalize(ctx context.Context, a Attempt, r Result) error {
	f.finalizes++
	if f.failFinalize {
		return &quiz.PersistenceError{Op: "finalize", Err: errors.New("disk full")}
	}
	return f.Store.Finalize(ctx, a, r)
}

// shortQuiz runs 1 minute so timeout tests stay cheap.
func shortQuiz(id string) quiz.Quiz {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return quiz.Quiz{
		ID:              id,
		Title:           "Pop quiz",
		DurationMinutes: 1,
		TotalMarks:      2,
		DueAt:           base.Add(time.Hour).Unix(),
		Questions: []quiz.Question{
			{ID: "q1", Type: quiz.TypeChoice, Options: []string{"a", "b"}, CorrectIndex: 0, Marks: 1},
			{ID: "q2", Type: quiz.TypeChoice, Options: []string{"a", "b"}, CorrectIndex: 1, Marks: 1},
		},
	}
}

func newTestEngine(t *testing.T, store Store, opts ...EngineOption) (*Engine, *fakeTicker) {
	t.Helper()
	clock := newFakeClock()
	catalog := quiz.NewMemoryCatalog()
	if err := catalog.Put(context.Background(), shortQuiz("pop-1")); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	svc := NewService(catalog, store, grading.NewDefaultGrader(), WithClock(clock.Now))
	ticker := newFakeTicker()
	opts = append([]EngineOption{WithTicker(ticker)}, opts...)
	e, err := NewEngine(context.Background(), svc, "pop-1", "s1", opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, ticker
}

func TestEngineCountdownNeverNegative(t *testing.T) {
	e, _ := newTestEngine(t, NewMemoryStore())
	defer e.Close()

	if e.State() != StateActive {
		t.Fatalf("state = %v, want active", e.State())
	}
	if e.TimeRemaining() != 60 {
		t.Fatalf("remaining = %d, want 60", e.TimeRemaining())
	}
	ctx := context.Background()
	for i := 0; i < 70; i++ {
		if err := e.tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if e.TimeRemaining() != 0 {
		t.Fatalf("remaining = %d, want 0 after expiry", e.TimeRemaining())
	}
	if e.State() != StateTerminal {
		t.Fatalf("state = %v, want terminal within one tick of zero", e.State())
	}
}

func TestEngineAutoSubmitFiresOnce(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(t, store)
	defer e.Close()

	ctx := context.Background()
	if err := e.Answer("q1", grading.Answer{Selected: 0}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	for i := 0; i < 60; i++ {
		if err := e.tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	res, ok := e.Result()
	if !ok {
		t.Fatalf("no result after timeout")
	}
	if res.MarksObtained != 1 || res.Percentage != 50 || !res.Passed {
		t.Fatalf("got marks=%d pct=%v passed=%v, want 1/50/true", res.MarksObtained, res.Percentage, res.Passed)
	}

	// Extra ticks and a late manual submit must not grade again.
	for i := 0; i < 5; i++ {
		if err := e.tick(ctx); err != nil {
			t.Fatalf("post-terminal tick: %v", err)
		}
	}
	again, err := e.Submit(ctx)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if again.SubmittedAt != res.SubmittedAt || again.MarksObtained != res.MarksObtained {
		t.Fatalf("second submit produced a different result")
	}
	stored, err := store.GetResult(ctx, "pop-1", "s1")
	if err != nil {
		t.Fatalf("stored result: %v", err)
	}
	if stored.SubmittedAt != res.SubmittedAt {
		t.Fatalf("store holds a different result than the engine returned")
	}
}

func TestEngineManualThenTimerRace(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newTestEngine(t, store)
	defer e.Close()

	ctx := context.Background()
	_ = e.Answer("q1", grading.Answer{Selected: 0})
	res, err := e.Submit(ctx)
	if err != nil {
		t.Fatalf("manual submit: %v", err)
	}
	// The countdown firing afterwards observes Terminal and no-ops.
	if err := e.tick(ctx); err != nil {
		t.Fatalf("timer tick after manual submit: %v", err)
	}
	stored, err := store.GetResult(ctx, "pop-1", "s1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if stored.SubmittedAt != res.SubmittedAt || stored.MarksObtained != res.MarksObtained {
		t.Fatalf("race produced a second, different result")
	}
}

func TestEngineAutosaveCadence(t *testing.T) {
	mem := NewMemoryStore()
	store := &flakyStore{Store: mem}
	e, _ := newTestEngine(t, store, WithAutosaveInterval(5))
	defer e.Close()

	ctx := context.Background()
	_ = e.Answer("q1", grading.Answer{Selected: 0})
	baseline := store.saves // Start persisted the fresh attempt
	for i := 0; i < 12; i++ {
		if err := e.tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	if got := store.saves - baseline; got != 2 {
		t.Fatalf("autosaves in 12 ticks at 5s cadence = %d, want 2", got)
	}
	saved, err := mem.LoadAttempt(ctx, "pop-1", "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Answers["q1"].Selected != 0 {
		t.Fatalf("autosave lost answers: %+v", saved.Answers)
	}
}

func TestEngineSubmitRetryAfterPersistenceFailure(t *testing.T) {
	mem := NewMemoryStore()
	store := &flakyStore{Store: mem, failFinalize: true}
	e, _ := newTestEngine(t, store)
	defer e.Close()

	ctx := context.Background()
	_ = e.Answer("q1", grading.Answer{Selected: 0})
	_, err := e.Submit(ctx)
	if !quiz.IsPersistence(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	// Answers survive the failure; the engine drops back to Active so the
	// student can retry instead of losing work.
	if e.State() != StateActive {
		t.Fatalf("state after failed submit = %v, want active", e.State())
	}
	if e.Snapshot().Answers["q1"].Selected != 0 {
		t.Fatalf("answers lost on failed submit")
	}

	store.failFinalize = false
	res, err := e.Submit(ctx)
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if res.MarksObtained != 1 {
		t.Fatalf("retry graded wrong: %+v", res)
	}
	if e.State() != StateTerminal {
		t.Fatalf("state = %v, want terminal after retry", e.State())
	}
}

func TestEngineAnswerRefusedAfterSubmit(t *testing.T) {
	e, _ := newTestEngine(t, NewMemoryStore())
	defer e.Close()

	if _, err := e.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := e.Answer("q1", grading.Answer{Selected: 0}); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("post-submit answer: got %v, want ErrAlreadySubmitted", err)
	}
}

func TestEngineCloseStopsTicker(t *testing.T) {
	e, ticker := newTestEngine(t, NewMemoryStore())
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	e.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run loop did not exit after Close")
	}
	if !ticker.Stopped() {
		t.Fatalf("ticker left running after Close")
	}
}

func TestEngineRunSavesOnCancel(t *testing.T) {
	mem := NewMemoryStore()
	e, _ := newTestEngine(t, mem)
	_ = e.Answer("q2", grading.Answer{Selected: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run loop did not exit on cancel")
	}
	saved, err := mem.LoadAttempt(context.Background(), "pop-1", "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Answers["q2"].Selected != 1 {
		t.Fatalf("progress not saved on cancel: %+v", saved.Answers)
	}
}
