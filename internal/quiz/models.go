package quiz

import "time"

// Question types the grader knows how to route.
const (
	TypeChoice    = "choice"     // single-select multiple choice
	TypeTrueFalse = "true_false" // rendered as a two-option choice
	TypeShortText = "short_text" // stored for manual review, never auto-graded
)

type Question struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options,omitempty"`
	CorrectIndex int      `json:"correct_index"` // index into Options; hidden from students
	Marks        int      `json:"marks"`
}

type Quiz struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Questions       []Question `json:"questions"` // order drives numbering and result alignment
	DurationMinutes int        `json:"duration_minutes"`
	TotalMarks      int        `json:"total_marks"`
	DueAt           int64      `json:"due_at"` // unix seconds
	CreatedAt       int64      `json:"created_at,omitempty"`
}

func (q Quiz) Duration() time.Duration {
	return time.Duration(q.DurationMinutes) * time.Minute
}

func (q Quiz) PastDue(now time.Time) bool {
	return now.Unix() >= q.DueAt
}

// Question returns the question with the given id, or false.
func (q Quiz) Question(id string) (Question, bool) {
	for _, qu := range q.Questions {
		if qu.ID == id {
			return qu, true
		}
	}
	return Question{}, false
}

// Sanitized returns a copy safe to serve to students: answer keys stripped.
func (q Quiz) Sanitized() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	copy(out.Questions, q.Questions)
	for i := range out.Questions {
		out.Questions[i].CorrectIndex = -1
	}
	return out
}

// Summary is the catalog listing row (no questions payload).
type Summary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	QuestionCount   int    `json:"question_count"`
	DurationMinutes int    `json:"duration_minutes"`
	TotalMarks      int    `json:"total_marks"`
	DueAt           int64  `json:"due_at"`
}

func (q Quiz) Summary() Summary {
	return Summary{
		ID:              q.ID,
		Title:           q.Title,
		QuestionCount:   len(q.Questions),
		DurationMinutes: q.DurationMinutes,
		TotalMarks:      q.TotalMarks,
		DueAt:           q.DueAt,
	}
}
