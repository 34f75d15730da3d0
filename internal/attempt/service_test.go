package attempt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classlite/classlite-lms/internal/grading"
	"github.com/classlite/classlite-lms/internal/quiz"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// twoQuestionQuiz: marks [1,1], total 2, 10 minutes, due in 24h from the
// test clock's base time.
func twoQuestionQuiz(id string) quiz.Quiz {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return quiz.Quiz{
		ID:              id,
		Title:           "Unit 3 checkpoint",
		DurationMinutes: 10,
		TotalMarks:      2,
		DueAt:           base.Add(24 * time.Hour).Unix(),
		Questions: []quiz.Question{
			{ID: "q1", Type: quiz.TypeChoice, Prompt: "2+2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1, Marks: 1},
			{ID: "q2", Type: quiz.TypeTrueFalse, Prompt: "The sky is green.", Options: []string{"true", "false"}, CorrectIndex: 1, Marks: 1},
		},
	}
}

func newTestService(t *testing.T, clock *fakeClock, quizzes ...quiz.Quiz) (*Service, Store) {
	t.Helper()
	catalog := quiz.NewMemoryCatalog()
	for _, q := range quizzes {
		if err := catalog.Put(context.Background(), q); err != nil {
			t.Fatalf("seed quiz: %v", err)
		}
	}
	store := NewMemoryStore()
	svc := NewService(catalog, store, grading.NewDefaultGrader(), WithClock(clock.Now))
	return svc, store
}

func TestStartFailureModesAreDistinct(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newTestService(t, clock, twoQuestionQuiz("quiz-1"))

	if _, err := svc.Start(ctx, "quiz-1", ""); !errors.Is(err, quiz.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := svc.Start(ctx, "no-such-quiz", "s1"); !errors.Is(err, quiz.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}

	clock.Advance(25 * time.Hour) // past due
	if _, err := svc.Start(ctx, "quiz-1", "s1"); !errors.Is(err, quiz.ErrPastDue) {
		t.Fatalf("expected ErrPastDue, got %v", err)
	}
}

func TestStartRejectsSecondAttemptAfterSubmit(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newTestService(t, clock, twoQuestionQuiz("quiz-1"))

	started, err := svc.Start(ctx, "quiz-1", "s1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.SubmitAttempt(ctx, started.Quiz, &started.Attempt); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Start(ctx, "quiz-1", "s1"); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestGradingBoundaryPass(t *testing.T) {
	// Q1 correct, Q2 unanswered, then timeout: 1/2 marks, 50%, passed at the
	// >= 50 boundary, status submitted.
	ctx := context.Background()
	clock := newFakeClock()
	svc, store := newTestService(t, clock, twoQuestionQuiz("quiz-1"))

	started, err := svc.Start(ctx, "quiz-1", "s1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	a := started.Attempt
	if err := svc.RecordAnswer(started.Quiz, &a, "q1", grading.Answer{Selected: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.SaveProgress(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}

	clock.Advance(11 * time.Minute) // clock runs out
	if _, err := svc.Start(ctx, "quiz-1", "s1"); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("expected lapsed resume to finalize, got %v", err)
	}

	res, err := store.GetResult(ctx, "quiz-1", "s1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.MarksObtained != 1 || res.Percentage != 50 || !res.Passed {
		t.Fatalf("got marks=%d pct=%v passed=%v, want 1/50/true", res.MarksObtained, res.Percentage, res.Passed)
	}
	saved, err := store.LoadAttempt(ctx, "quiz-1", "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Status != StatusSubmitted {
		t.Fatalf("status = %q, want submitted", saved.Status)
	}
}

func TestGradingAllIncorrect(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newTestService(t, clock, twoQuestionQuiz("quiz-1"))

	started, _ := svc.Start(ctx, "quiz-1", "s1")
	a := started.Attempt
	_ = svc.RecordAnswer(started.Quiz, &a, "q1", grading.Answer{Selected: 0})
	_ = svc.RecordAnswer(started.Quiz, &a, "q2", grading.Answer{Selected: 0})

	res, err := svc.SubmitAttempt(ctx, started.Quiz, &a)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.MarksObtained != 0 || res.Percentage != 0 || res.Passed {
		t.Fatalf("got marks=%d pct=%v passed=%v, want 0/0/false", res.MarksObtained, res.Percentage, res.Passed)
	}
}

func TestUnansweredCountedIncorrectNeverSkipped(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newTestService(t, clock, twoQuestionQuiz("quiz-1"))

	started, _ := svc.Start(ctx, "quiz-1", "s1")
	res, err := svc.SubmitAttempt(ctx, started.Quiz, &started.Attempt)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(res.PerQuestion) != 2 {
		t.Fatalf("per-question rows = %d, want 2 (unanswered stays in the denominator)", len(res.PerQuestion))
	}
	for _, qs := range res.PerQuestion {
		if qs.Correct || qs.Awarded != 0 {
			t.Fatalf("question %s: correct=%v awarded=%d, want incorrect/0", qs.QuestionID, qs.Correct, qs.Awarded)
		}
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newTestService(t, clock, twoQuestionQuiz("quiz-1"))

	started, _ := svc.Start(ctx, "quiz-1", "s1")
	a := started.Attempt
	_ = svc.RecordAnswer(started.Quiz, &a, "q1", grading.Answer{Selected: 1})

	first, err := svc.SubmitAttempt(ctx, started.Quiz, &a)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	clock.Advance(time.Minute)
	second, err := svc.SubmitAttempt(ctx, started.Quiz, &a)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.MarksObtained != second.MarksObtained || first.SubmittedAt != second.SubmittedAt {
		t.Fatalf("second submit changed the result: %+v vs %+v", first, second)
	}
	// keyed path agrees too
	third, err := svc.Submit(ctx, "quiz-1", "s1")
	if err != nil {
		t.Fatalf("keyed submit: %v", err)
	}
	if third.SubmittedAt != first.SubmittedAt {
		t.Fatalf("keyed submit produced a different result")
	}
}

func TestGradingIsDeterministic(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newTestService(t, clock, twoQuestionQuiz("quiz-1"))
	q := twoQuestionQuiz("quiz-1")
	a := Attempt{
		ID: "a1", QuizID: "quiz-1", StudentID: "s1", Status: StatusInProgress,
		Answers:   map[string]grading.Answer{"q1": {Selected: 1}},
		StartedAt: clock.Now().Unix(),
	}
	r1 := svc.grade(q, a, clock.Now())
	r2 := svc.grade(q, a, clock.Now())
	if r1.MarksObtained != r2.MarksObtained || r1.Percentage != r2.Percentage {
		t.Fatalf("grading not deterministic: %+v vs %+v", r1, r2)
	}
}

func TestZeroTotalMarksDefinesZeroPercentage(t *testing.T) {
	// A misconfigured quiz can't enter through the validating catalog, but
	// grading itself must never divide by zero.
	clock := newFakeClock()
	svc := NewService(quiz.NewMemoryCatalog(), NewMemoryStore(), grading.NewDefaultGrader(), WithClock(clock.Now))
	q := quiz.Quiz{
		ID: "degenerate", DurationMinutes: 5, TotalMarks: 0,
		Questions: []quiz.Question{},
	}
	a := Attempt{ID: "a1", QuizID: "degenerate", StudentID: "s1", Status: StatusInProgress, StartedAt: clock.Now().Unix()}
	res := svc.grade(q, a, clock.Now())
	if res.Percentage != 0 {
		t.Fatalf("percentage = %v, want 0 for zero-mark quiz", res.Percentage)
	}
}

func TestResumeKeepsAnswersAndClock(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newTestService(t, clock, twoQuestionQuiz("quiz-1"))

	started, _ := svc.Start(ctx, "quiz-1", "s1")
	a := started.Attempt
	_ = svc.RecordAnswer(started.Quiz, &a, "q1", grading.Answer{Selected: 1})
	if err := svc.SaveProgress(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Discard the in-memory attempt, come back 100s later.
	clock.Advance(100 * time.Second)
	resumed, err := svc.Start(ctx, "quiz-1", "s1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !resumed.Resumed {
		t.Fatalf("expected a resume, got a fresh attempt")
	}
	if resumed.Attempt.StartedAt != a.StartedAt {
		t.Fatalf("resume reset startedAt")
	}
	if got := resumed.Attempt.Answers["q1"]; got.Selected != 1 {
		t.Fatalf("answers lost on resume: %+v", resumed.Attempt.Answers)
	}
	if want := int64(10*60 - 100); resumed.RemainingSec != want {
		t.Fatalf("remaining = %d, want %d (elapsed wall time accounted)", resumed.RemainingSec, want)
	}
}

func TestStaleAutosaveCannotOverwriteSubmission(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, store := newTestService(t, clock, twoQuestionQuiz("quiz-1"))

	started, _ := svc.Start(ctx, "quiz-1", "s1")
	stale := started.Attempt // snapshot from before the submit
	a := started.Attempt
	if _, err := svc.SubmitAttempt(ctx, started.Quiz, &a); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.SaveProgress(ctx, stale); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("stale autosave: got %v, want ErrAlreadySubmitted", err)
	}
	saved, _ := store.LoadAttempt(ctx, "quiz-1", "s1")
	if saved.Status != StatusSubmitted {
		t.Fatalf("submission overwritten by stale autosave")
	}
}

func TestRecordAnswerSilentlyDropsInvalidCaptures(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newTestService(t, clock, twoQuestionQuiz("quiz-1"))

	started, _ := svc.Start(ctx, "quiz-1", "s1")
	a := started.Attempt
	if err := svc.RecordAnswer(started.Quiz, &a, "q1", grading.Answer{Selected: 7}); err != nil {
		t.Fatalf("out-of-range capture should be a no-op, got %v", err)
	}
	if err := svc.RecordAnswer(started.Quiz, &a, "ghost", grading.Answer{Selected: 0}); err != nil {
		t.Fatalf("unknown-question capture should be a no-op, got %v", err)
	}
	if len(a.Answers) != 0 {
		t.Fatalf("invalid captures were recorded: %+v", a.Answers)
	}
	a.Status = StatusSubmitted
	if err := svc.RecordAnswer(started.Quiz, &a, "q1", grading.Answer{Selected: 1}); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("terminal capture: got %v, want ErrAlreadySubmitted", err)
	}
}

func TestShortTextIsPendingReview(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	q := quiz.Quiz{
		ID: "essayish", Title: "Reflection", DurationMinutes: 10, TotalMarks: 3,
		DueAt: clock.Now().Add(time.Hour).Unix(),
		Questions: []quiz.Question{
			{ID: "q1", Type: quiz.TypeChoice, Options: []string{"a", "b"}, CorrectIndex: 0, Marks: 1},
			{ID: "q2", Type: quiz.TypeShortText, Prompt: "Explain.", Marks: 2},
		},
	}
	svc, _ := newTestService(t, clock, q)

	started, err := svc.Start(ctx, "essayish", "s1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	a := started.Attempt
	_ = svc.RecordAnswer(started.Quiz, &a, "q1", grading.Answer{Selected: 0})
	_ = svc.RecordAnswer(started.Quiz, &a, "q2", grading.Answer{Selected: grading.Unanswered, Text: "because reasons"})

	res, err := svc.SubmitAttempt(ctx, started.Quiz, &a)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.PendingReview {
		t.Fatalf("expected pending review for short_text answer")
	}
	if res.MarksObtained != 1 {
		t.Fatalf("marks = %d, want 1 (short_text ungraded until review)", res.MarksObtained)
	}
	if !res.PerQuestion[1].NeedsReview {
		t.Fatalf("q2 should be flagged for review: %+v", res.PerQuestion[1])
	}
}

func TestSaveAnswersLazyFinalizesExpiredAttempt(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, store := newTestService(t, clock, twoQuestionQuiz("quiz-1"))

	if _, err := svc.Start(ctx, "quiz-1", "s1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := svc.SaveAnswers(ctx, "quiz-1", "s1", map[string]grading.Answer{
		"q1": {Selected: 1},
	}); err != nil {
		t.Fatalf("save answers: %v", err)
	}

	clock.Advance(15 * time.Minute)
	_, _, err := svc.SaveAnswers(ctx, "quiz-1", "s1", map[string]grading.Answer{"q2": {Selected: 1}})
	if !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("expired save: got %v, want ErrAlreadySubmitted", err)
	}
	res, err := store.GetResult(ctx, "quiz-1", "s1")
	if err != nil {
		t.Fatalf("result after lazy finalize: %v", err)
	}
	// The late q2 answer never landed; only the autosaved q1 counts.
	if res.MarksObtained != 1 {
		t.Fatalf("marks = %d, want 1", res.MarksObtained)
	}
}
