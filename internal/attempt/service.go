package attempt

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/classlite/classlite-lms/internal/grading"
	"github.com/classlite/classlite-lms/internal/quiz"
)

// Service owns the attempt lifecycle transitions against a Catalog and a
// Store. It is stateless: every call loads or receives the attempt it acts
// on, so the HTTP layer and the session Engine share one implementation.
type Service struct {
	catalog    quiz.Catalog
	store      Store
	grader     grading.Grader
	now        func() time.Time
	passingPct float64
}

type ServiceOption func(*Service)

// WithClock injects the time source; tests use a fake clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithPassingThreshold sets the pass/fail display threshold in percent.
func WithPassingThreshold(pct float64) ServiceOption {
	return func(s *Service) { s.passingPct = pct }
}

func NewService(catalog quiz.Catalog, store Store, grader grading.Grader, opts ...ServiceOption) *Service {
	s := &Service{
		catalog:    catalog,
		store:      store,
		grader:     grader,
		now:        time.Now,
		passingPct: 50,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Started is what a fresh or resumed attempt hands back to the caller.
type Started struct {
	Quiz         quiz.Quiz // full definition; sanitize before serving students
	Attempt      Attempt
	RemainingSec int64
	Resumed      bool
}

// Start creates a fresh attempt or resumes a non-terminal one.
//
// Failure modes are distinct, per the loading contract: ErrUnauthenticated
// (no student), ErrQuizNotFound, ErrPastDue (now past the due date),
// ErrAlreadySubmitted (a terminal attempt exists). A resumed attempt whose
// clock already ran out is finalized on the spot and reported as submitted.
func (s *Service) Start(ctx context.Context, quizID, studentID string) (Started, error) {
	if studentID == "" {
		return Started{}, quiz.ErrUnauthenticated
	}
	q, err := s.catalog.Get(ctx, quizID)
	if err != nil {
		return Started{}, err
	}
	now := s.now()

	existing, err := s.store.LoadAttempt(ctx, quizID, studentID)
	switch {
	case err == nil:
		if existing.Terminal() {
			return Started{}, quiz.ErrAlreadySubmitted
		}
		if rem := existing.TimeRemaining(q, now); rem <= 0 {
			if _, ferr := s.SubmitAttempt(ctx, q, &existing); ferr != nil && !errors.Is(ferr, quiz.ErrAlreadySubmitted) {
				return Started{}, ferr
			}
			return Started{}, quiz.ErrAlreadySubmitted
		}
		if q.PastDue(now) {
			return Started{}, quiz.ErrPastDue
		}
		return Started{
			Quiz:         q,
			Attempt:      existing,
			RemainingSec: int64(existing.TimeRemaining(q, now) / time.Second),
			Resumed:      true,
		}, nil
	case errors.Is(err, quiz.ErrAttemptNotFound):
		// fall through to create
	default:
		return Started{}, err
	}

	if q.PastDue(now) {
		return Started{}, quiz.ErrPastDue
	}
	a := Attempt{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		StudentID: studentID,
		Status:    StatusInProgress,
		Answers:   map[string]grading.Answer{},
		StartedAt: now.Unix(),
	}
	if err := s.store.SaveProgress(ctx, a); err != nil {
		return Started{}, err
	}
	return Started{
		Quiz:         q,
		Attempt:      a,
		RemainingSec: int64(q.Duration() / time.Second),
	}, nil
}

// RecordAnswer captures one response into the in-memory attempt. An answer
// for an unknown question or an out-of-range option index can only come from
// a client bug, so the capture is a silent no-op rather than an error.
// Terminal attempts reject capture outright.
func (s *Service) RecordAnswer(q quiz.Quiz, a *Attempt, questionID string, ans grading.Answer) error {
	if a.Terminal() {
		return quiz.ErrAlreadySubmitted
	}
	qu, ok := q.Question(questionID)
	if !ok {
		return nil
	}
	switch qu.Type {
	case quiz.TypeShortText:
		if ans.Selected != grading.Unanswered {
			return nil
		}
	case quiz.TypeTrueFalse:
		if ans.Selected < 0 || ans.Selected > 1 {
			return nil
		}
	default:
		if ans.Selected < 0 || ans.Selected >= len(qu.Options) {
			return nil
		}
	}
	if a.Answers == nil {
		a.Answers = map[string]grading.Answer{}
	}
	a.Answers[questionID] = ans
	return nil
}

// SaveProgress persists the current answers. The store refuses terminal
// attempts, which keeps a late autosave from clobbering a submission.
func (s *Service) SaveProgress(ctx context.Context, a Attempt) error {
	if a.Terminal() {
		return quiz.ErrAlreadySubmitted
	}
	return s.store.SaveProgress(ctx, a)
}

// SubmitAttempt grades and finalizes the given in-memory attempt. It is
// idempotent: once a result exists for the (quiz, student) pair, every later
// call returns that result untouched. On a storage failure the attempt stays
// in_progress in memory so the caller can retry without losing answers.
func (s *Service) SubmitAttempt(ctx context.Context, q quiz.Quiz, a *Attempt) (Result, error) {
	if a.Terminal() {
		return s.store.GetResult(ctx, a.QuizID, a.StudentID)
	}
	now := s.now()
	r := s.grade(q, *a, now)

	final := *a
	final.Status = StatusSubmitted
	final.SubmittedAt = now.Unix()
	err := s.store.Finalize(ctx, final, r)
	switch {
	case err == nil:
		*a = final
		return r, nil
	case errors.Is(err, quiz.ErrAlreadySubmitted):
		// Lost the race: another writer finalized first. Adopt its result.
		a.Status = StatusSubmitted
		return s.store.GetResult(ctx, a.QuizID, a.StudentID)
	default:
		return Result{}, err
	}
}

// SaveAnswers is the keyed capture path used by the HTTP layer: load, record
// each answer (invalid ones are dropped), persist. An attempt whose clock ran
// out is finalized on the spot and reported via ErrAlreadySubmitted, so a
// client that slept past the deadline cannot keep writing.
func (s *Service) SaveAnswers(ctx context.Context, quizID, studentID string, answers map[string]grading.Answer) (Attempt, int64, error) {
	if studentID == "" {
		return Attempt{}, 0, quiz.ErrUnauthenticated
	}
	q, err := s.catalog.Get(ctx, quizID)
	if err != nil {
		return Attempt{}, 0, err
	}
	a, err := s.store.LoadAttempt(ctx, quizID, studentID)
	if err != nil {
		return Attempt{}, 0, err
	}
	if a.Terminal() {
		return Attempt{}, 0, quiz.ErrAlreadySubmitted
	}
	if a.TimeRemaining(q, s.now()) <= 0 {
		if _, ferr := s.SubmitAttempt(ctx, q, &a); ferr != nil && !errors.Is(ferr, quiz.ErrAlreadySubmitted) {
			return Attempt{}, 0, ferr
		}
		return Attempt{}, 0, quiz.ErrAlreadySubmitted
	}
	for id, ans := range answers {
		if err := s.RecordAnswer(q, &a, id, ans); err != nil {
			return Attempt{}, 0, err
		}
	}
	if err := s.store.SaveProgress(ctx, a); err != nil {
		return Attempt{}, 0, err
	}
	return a, int64(a.TimeRemaining(q, s.now()) / time.Second), nil
}

// Submit is the keyed variant: load, grade, finalize. A call after the
// deadline still grades whatever was autosaved, which is how a lapsed attempt
// gets closed out when no live session is around to auto-submit it.
func (s *Service) Submit(ctx context.Context, quizID, studentID string) (Result, error) {
	if studentID == "" {
		return Result{}, quiz.ErrUnauthenticated
	}
	q, err := s.catalog.Get(ctx, quizID)
	if err != nil {
		return Result{}, err
	}
	a, err := s.store.LoadAttempt(ctx, quizID, studentID)
	if err != nil {
		return Result{}, err
	}
	return s.SubmitAttempt(ctx, q, &a)
}

// Get returns the stored attempt plus its derived remaining time.
func (s *Service) Get(ctx context.Context, quizID, studentID string) (Attempt, int64, error) {
	q, err := s.catalog.Get(ctx, quizID)
	if err != nil {
		return Attempt{}, 0, err
	}
	a, err := s.store.LoadAttempt(ctx, quizID, studentID)
	if err != nil {
		return Attempt{}, 0, err
	}
	return a, int64(a.TimeRemaining(q, s.now()) / time.Second), nil
}

// Result returns the graded outcome for a terminal attempt.
func (s *Service) Result(ctx context.Context, quizID, studentID string) (Result, error) {
	return s.store.GetResult(ctx, quizID, studentID)
}

// ListAttempts passes through to the store for dashboard views.
func (s *Service) ListAttempts(ctx context.Context, opts ListOpts) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, opts)
}

// grade walks the questions in order. Unanswered questions score zero and
// stay in the denominator; a zero-mark quiz defines percentage as 0 instead
// of dividing by zero.
func (s *Service) grade(q quiz.Quiz, a Attempt, now time.Time) Result {
	perQuestion := make([]QuestionScore, 0, len(q.Questions))
	total := 0
	pending := false
	for _, qu := range q.Questions {
		ans, ok := a.Answers[qu.ID]
		if !ok {
			ans = grading.Answer{Selected: grading.Unanswered}
		}
		out := s.grader.Grade(grading.FromQuestion(qu), ans)
		if out.NeedsReview && ok {
			pending = true
		}
		total += out.Awarded
		perQuestion = append(perQuestion, QuestionScore{
			QuestionID:  qu.ID,
			Correct:     out.Correct,
			Awarded:     out.Awarded,
			MaxMarks:    out.MaxMarks,
			NeedsReview: out.NeedsReview,
		})
	}
	pct := 0.0
	if q.TotalMarks > 0 {
		pct = float64(total) / float64(q.TotalMarks) * 100
	}
	taken := now.Unix() - a.StartedAt
	if taken < 0 {
		taken = 0
	}
	if max := int64(q.Duration() / time.Second); taken > max {
		taken = max
	}
	return Result{
		AttemptID:     a.ID,
		QuizID:        a.QuizID,
		StudentID:     a.StudentID,
		MarksObtained: total,
		TotalMarks:    q.TotalMarks,
		Percentage:    pct,
		Passed:        pct >= s.passingPct,
		PendingReview: pending,
		PerQuestion:   perQuestion,
		SubmittedAt:   now.Unix(),
		TimeTakenSec:  taken,
	}
}
