package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/classlite/classlite-lms/internal/grading"
	"github.com/classlite/classlite-lms/internal/quiz"
	syncx "github.com/classlite/classlite-lms/internal/sync"
)

// SQLStore persists attempts and results over sqlite or postgres. Answers and
// per-question scores travel as JSON columns; one attempt per (quiz_id,
// student_id) is enforced by the attempts primary key.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) LoadAttempt(ctx context.Context, quizID, studentID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,quiz_id,student_id,status,answers_json,started_at,COALESCE(submitted_at,0)
		 FROM attempts WHERE quiz_id=$1 AND student_id=$2`, quizID, studentID)
	return scanAttempt(row)
}

func (s *SQLStore) SaveProgress(ctx context.Context, a Attempt) error {
	aj, err := json.Marshal(a.Answers)
	if err != nil {
		return &quiz.PersistenceError{Op: "encode answers", Err: err}
	}
	// The status guard in the WHERE clause keeps a stale autosave from
	// resurrecting or mutating a terminal attempt.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id,quiz_id,student_id,status,answers_json,started_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (quiz_id,student_id) DO UPDATE SET answers_json=EXCLUDED.answers_json
		 WHERE attempts.status='in_progress'`,
		a.ID, a.QuizID, a.StudentID, string(StatusInProgress), string(aj), a.StartedAt)
	if err != nil {
		return &quiz.PersistenceError{Op: "save progress", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.ErrAlreadySubmitted
	}
	return nil
}

// Finalize flips the attempt terminal, writes the result, and appends an
// AttemptSubmitted event in one transaction. If another writer got there
// first the guarded UPDATE touches zero rows and the caller gets
// ErrAlreadySubmitted with nothing written.
func (s *SQLStore) Finalize(ctx context.Context, a Attempt, r Result) error {
	aj, err := json.Marshal(a.Answers)
	if err != nil {
		return &quiz.PersistenceError{Op: "encode answers", Err: err}
	}
	pj, err := json.Marshal(r.PerQuestion)
	if err != nil {
		return &quiz.PersistenceError{Op: "encode result", Err: err}
	}
	ej, err := json.Marshal(map[string]any{
		"quiz_id": r.QuizID, "student_id": r.StudentID,
		"marks_obtained": r.MarksObtained, "percentage": r.Percentage,
	})
	if err != nil {
		return &quiz.PersistenceError{Op: "encode event", Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &quiz.PersistenceError{Op: "finalize", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE attempts SET status=$1, answers_json=$2, submitted_at=$3
		 WHERE quiz_id=$4 AND student_id=$5 AND status='in_progress'`,
		string(a.Status), string(aj), a.SubmittedAt, a.QuizID, a.StudentID)
	if err != nil {
		return &quiz.PersistenceError{Op: "finalize", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &quiz.PersistenceError{Op: "finalize", Err: err}
	}
	if n == 0 {
		return quiz.ErrAlreadySubmitted
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO results (attempt_id,quiz_id,student_id,marks_obtained,total_marks,percentage,passed,pending_review,per_question_json,submitted_at,time_taken_sec)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		r.AttemptID, r.QuizID, r.StudentID, r.MarksObtained, r.TotalMarks, r.Percentage,
		r.Passed, r.PendingReview, string(pj), r.SubmittedAt, r.TimeTakenSec)
	if err != nil {
		return &quiz.PersistenceError{Op: "finalize", Err: err}
	}
	if err := syncx.AppendTx(ctx, tx, syncx.Event{
		Type: syncx.TypeAttemptSubmitted, Key: a.ID, DataJSON: string(ej),
	}); err != nil {
		return &quiz.PersistenceError{Op: "finalize", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &quiz.PersistenceError{Op: "finalize", Err: err}
	}
	return nil
}

func (s *SQLStore) HasTerminalAttempt(ctx context.Context, quizID, studentID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM attempts WHERE quiz_id=$1 AND student_id=$2 AND status IN ('submitted','graded')`,
		quizID, studentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &quiz.PersistenceError{Op: "check terminal", Err: err}
	}
	return true, nil
}

func (s *SQLStore) GetResult(ctx context.Context, quizID, studentID string) (Result, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT attempt_id,quiz_id,student_id,marks_obtained,total_marks,percentage,passed,pending_review,per_question_json,submitted_at,time_taken_sec
		 FROM results WHERE quiz_id=$1 AND student_id=$2`, quizID, studentID)
	var r Result
	var pj string
	err := row.Scan(&r.AttemptID, &r.QuizID, &r.StudentID, &r.MarksObtained, &r.TotalMarks,
		&r.Percentage, &r.Passed, &r.PendingReview, &pj, &r.SubmittedAt, &r.TimeTakenSec)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, quiz.ErrResultNotFound
	}
	if err != nil {
		return Result{}, &quiz.PersistenceError{Op: "get result", Err: err}
	}
	if err := json.Unmarshal([]byte(pj), &r.PerQuestion); err != nil {
		return Result{}, &quiz.PersistenceError{Op: "decode result", Err: err}
	}
	return r, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts ListOpts) ([]Attempt, error) {
	where := []string{}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, cond+placeholder(len(args)))
	}
	if opts.QuizID != "" {
		add("quiz_id=", opts.QuizID)
	}
	if opts.StudentID != "" {
		add("student_id=", opts.StudentID)
	}
	if opts.Status != "" {
		add("status=", opts.Status)
	}
	q := `SELECT id,quiz_id,student_id,status,answers_json,started_at,COALESCE(submitted_at,0) FROM attempts`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	q += " ORDER BY started_at DESC, id LIMIT " + placeholder(len(args))
	args = append(args, opts.Offset)
	q += " OFFSET " + placeholder(len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &quiz.PersistenceError{Op: "list attempts", Err: err}
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &quiz.PersistenceError{Op: "list attempts", Err: err}
	}
	return out, nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var status, ajson string
	if err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &status, &ajson, &a.StartedAt, &a.SubmittedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, quiz.ErrAttemptNotFound
		}
		return Attempt{}, &quiz.PersistenceError{Op: "load attempt", Err: err}
	}
	a.Status = Status(status)
	if err := json.Unmarshal([]byte(ajson), &a.Answers); err != nil {
		return Attempt{}, &quiz.PersistenceError{Op: "decode answers", Err: err}
	}
	if a.Answers == nil {
		a.Answers = map[string]grading.Answer{}
	}
	return a, nil
}
