package quiz

import "fmt"

// Validate checks a quiz definition before it is stored or served. Catalog
// implementations call this on load so a corrupt record surfaces as a
// ValidationError rather than propagating bad indexes into grading.
//
// TotalMarks must equal the sum of per-question marks; a mismatch would let a
// percentage land outside [0,100], so malformed quizzes are rejected outright.
func Validate(q Quiz) error {
	if q.ID == "" {
		return &ValidationError{Field: "id", Reason: "empty"}
	}
	if q.DurationMinutes <= 0 {
		return &ValidationError{Field: "duration_minutes", Reason: "must be > 0"}
	}
	if len(q.Questions) == 0 {
		return &ValidationError{Field: "questions", Reason: "empty"}
	}
	seen := make(map[string]struct{}, len(q.Questions))
	sum := 0
	for i, qu := range q.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if qu.ID == "" {
			return &ValidationError{Field: field + ".id", Reason: "empty"}
		}
		if _, dup := seen[qu.ID]; dup {
			return &ValidationError{Field: field + ".id", Reason: "duplicate: " + qu.ID}
		}
		seen[qu.ID] = struct{}{}
		if qu.Marks < 1 {
			return &ValidationError{Field: field + ".marks", Reason: "must be >= 1"}
		}
		switch qu.Type {
		case TypeChoice:
			if len(qu.Options) < 2 {
				return &ValidationError{Field: field + ".options", Reason: "need at least 2"}
			}
			if qu.CorrectIndex < 0 || qu.CorrectIndex >= len(qu.Options) {
				return &ValidationError{Field: field + ".correct_index", Reason: "out of range"}
			}
		case TypeTrueFalse:
			if qu.CorrectIndex != 0 && qu.CorrectIndex != 1 {
				return &ValidationError{Field: field + ".correct_index", Reason: "must be 0 or 1"}
			}
		case TypeShortText:
			// no answer key to check; graded manually
		default:
			return &ValidationError{Field: field + ".type", Reason: "unknown: " + qu.Type}
		}
		sum += qu.Marks
	}
	if q.TotalMarks != sum {
		return &ValidationError{
			Field:  "total_marks",
			Reason: fmt.Sprintf("declared %d, questions sum to %d", q.TotalMarks, sum),
		}
	}
	return nil
}
