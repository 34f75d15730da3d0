package attempt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/classlite/classlite-lms/internal/grading"
	"github.com/classlite/classlite-lms/internal/quiz"
)

// State is the engine's lifecycle position.
type State int

const (
	StateLoading State = iota
	StateActive
	StateSubmitting
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateSubmitting:
		return "submitting"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Ticker is the cooperative scheduling contract: one tick per second,
// stopped when the engine is disposed. Tests inject a hand-driven channel.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewSecondTicker is the default Ticker, backed by time.Ticker.
func NewSecondTicker() Ticker {
	return realTicker{t: time.NewTicker(time.Second)}
}

// DefaultAutosaveSec is how many ticks pass between progress saves.
const DefaultAutosaveSec = 30

// Engine drives one student's live session at one quiz: countdown, answer
// capture, periodic autosave, and exactly-once submission. It is the
// in-process counterpart of the HTTP flow; both share the Service.
type Engine struct {
	svc    *Service
	quiz   quiz.Quiz
	ticker Ticker

	mu          sync.Mutex
	state       State
	attempt     Attempt
	remaining   int64
	autosaveSec int64
	sinceSave   int64
	result      Result
	lastSaveErr error
	done        chan struct{}
	closeOnce   sync.Once
}

type EngineOption func(*Engine)

// WithTicker injects the tick source.
func WithTicker(t Ticker) EngineOption {
	return func(e *Engine) { e.ticker = t }
}

// WithAutosaveInterval overrides the autosave cadence, in seconds.
func WithAutosaveInterval(sec int64) EngineOption {
	return func(e *Engine) {
		if sec > 0 {
			e.autosaveSec = sec
		}
	}
}

// NewEngine loads the quiz and creates or resumes the attempt. The distinct
// loading failures (ErrQuizNotFound, ErrPastDue, ErrAlreadySubmitted,
// ErrUnauthenticated) pass through unchanged so the caller can route each to
// the right view.
func NewEngine(ctx context.Context, svc *Service, quizID, studentID string, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		svc:         svc,
		state:       StateLoading,
		autosaveSec: DefaultAutosaveSec,
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	started, err := svc.Start(ctx, quizID, studentID)
	if err != nil {
		return nil, err
	}
	if e.ticker == nil {
		e.ticker = NewSecondTicker()
	}
	e.quiz = started.Quiz
	e.attempt = started.Attempt
	e.remaining = started.RemainingSec
	e.state = StateActive
	return e, nil
}

// Run consumes ticks until the attempt ends or ctx is cancelled. On
// cancellation it saves progress best-effort and stops; the attempt can be
// resumed later with the clock still accounting for elapsed wall time.
func (e *Engine) Run(ctx context.Context) error {
	defer e.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			if e.state == StateActive {
				e.lastSaveErr = e.svc.SaveProgress(ctx, e.attempt)
			}
			e.mu.Unlock()
			return ctx.Err()
		case <-e.done:
			return nil
		case <-e.ticker.C():
			if err := e.tick(ctx); err != nil && !quiz.IsPersistence(err) {
				return err
			}
		}
	}
}

// tick decrements the countdown, autosaves on cadence, and fires the
// auto-submit exactly once when the clock hits zero.
func (e *Engine) tick(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return nil
	}
	if e.remaining > 0 {
		e.remaining--
	}
	if e.remaining <= 0 {
		e.mu.Unlock()
		_, err := e.Submit(ctx)
		if errors.Is(err, quiz.ErrAlreadySubmitted) {
			return nil
		}
		return err
	}
	e.sinceSave++
	if e.sinceSave >= e.autosaveSec {
		e.sinceSave = 0
		if err := e.svc.SaveProgress(ctx, e.attempt); err != nil {
			// Retryable: answers stay in memory, next cadence tries again.
			e.lastSaveErr = err
			e.mu.Unlock()
			return err
		}
		e.lastSaveErr = nil
	}
	e.mu.Unlock()
	return nil
}

// Answer captures one response. Invalid captures (unknown question,
// out-of-range index) are silent no-ops; after submission capture is refused.
func (e *Engine) Answer(questionID string, ans grading.Answer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive {
		return quiz.ErrAlreadySubmitted
	}
	return e.svc.RecordAnswer(e.quiz, &e.attempt, questionID, ans)
}

// Submit finalizes the attempt. Safe to call more than once: the winner
// grades and persists, every later call observes the terminal state and gets
// the same result back. A timer-fired auto-submit racing a manual click goes
// through the same gate, so only one write happens.
func (e *Engine) Submit(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateTerminal:
		return e.result, nil
	case StateSubmitting:
		return Result{}, quiz.ErrAlreadySubmitted
	}
	e.state = StateSubmitting
	res, err := e.svc.SubmitAttempt(ctx, e.quiz, &e.attempt)
	if err != nil {
		// Persistence failures are retryable: drop back to Active with the
		// answers intact instead of wedging in Submitting.
		e.state = StateActive
		return Result{}, err
	}
	e.state = StateTerminal
	e.result = res
	e.remaining = 0
	e.closeOnce.Do(func() { close(e.done) })
	return res, nil
}

// Close stops the ticker and releases the run loop. Idempotent.
func (e *Engine) Close() {
	e.ticker.Stop()
	e.closeOnce.Do(func() { close(e.done) })
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) TimeRemaining() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// Snapshot returns a copy of the current attempt.
func (e *Engine) Snapshot() Attempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneAttempt(e.attempt)
}

// Result returns the graded outcome once terminal.
func (e *Engine) Result() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, e.state == StateTerminal
}

// LastSaveErr reports the most recent autosave failure, nil once a save
// succeeds again.
func (e *Engine) LastSaveErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSaveErr
}
