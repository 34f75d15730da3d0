package grading

import "github.com/classlite/classlite-lms/internal/quiz"

// Unanswered is the sentinel for a question the student never selected.
const Unanswered = -1

// Answer is one captured response: a selected option index for choice types,
// or free text for short_text. Selected stays Unanswered for text answers.
type Answer struct {
	Selected int    `json:"selected"`
	Text     string `json:"text,omitempty"`
}

func (a Answer) IsSet() bool {
	return a.Selected != Unanswered || a.Text != ""
}

// Q is the minimal view of a question needed for grading.
type Q struct {
	Type         string
	Marks        int
	CorrectIndex int
	OptionCount  int
}

// FromQuestion projects a catalog question into the grader's view.
func FromQuestion(qu quiz.Question) Q {
	return Q{Type: qu.Type, Marks: qu.Marks, CorrectIndex: qu.CorrectIndex, OptionCount: len(qu.Options)}
}

// Outcome is the grade for a single question. An unanswered or unmatched
// response awards zero; NeedsReview flags responses a human must grade.
type Outcome struct {
	Correct     bool
	Awarded     int
	MaxMarks    int
	NeedsReview bool
}

// Strategy grades a single question.
type Strategy interface {
	Grade(q Q, ans Answer) Outcome
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(q Q, ans Answer) Outcome
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(q Q, ans Answer) Outcome {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Outcome{MaxMarks: q.Marks, NeedsReview: true}
	}
	return s.Grade(q, ans)
}

type Option func(map[string]Strategy)

// WithStrategy overrides or adds the strategy for a question type.
func WithStrategy(qtype string, s Strategy) Option {
	return func(m map[string]Strategy) { m[qtype] = s }
}

// NewDefaultGrader installs the built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	strategies := map[string]Strategy{
		quiz.TypeChoice:    choiceStrategy{},
		quiz.TypeTrueFalse: choiceStrategy{},
		quiz.TypeShortText: shortTextStrategy{},
	}
	for _, o := range opts {
		o(strategies)
	}
	return &defaultGrader{strategies: strategies}
}

// choiceStrategy awards full marks on an exact index match. An unanswered
// question is incorrect, never skipped.
type choiceStrategy struct{}

func (choiceStrategy) Grade(q Q, ans Answer) Outcome {
	out := Outcome{MaxMarks: q.Marks}
	if ans.Selected == Unanswered {
		return out
	}
	if ans.Selected == q.CorrectIndex {
		out.Correct = true
		out.Awarded = q.Marks
	}
	return out
}

// shortTextStrategy stores the response ungraded: zero marks until a human
// reviews it.
type shortTextStrategy struct{}

func (shortTextStrategy) Grade(q Q, _ Answer) Outcome {
	return Outcome{MaxMarks: q.Marks, NeedsReview: true}
}
