package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// SQLCatalog stores quiz definitions with the questions serialized as a JSON
// column, matching the attempts store's driver (sqlite or postgres).
type SQLCatalog struct {
	db *sql.DB
}

func NewSQLCatalog(db *sql.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

func (c *SQLCatalog) Put(ctx context.Context, q Quiz) error {
	if err := Validate(q); err != nil {
		return err
	}
	qj, err := json.Marshal(q.Questions)
	if err != nil {
		return &PersistenceError{Op: "encode quiz", Err: err}
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO quizzes (id,title,duration_min,total_marks,due_at,questions_json,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, duration_min=EXCLUDED.duration_min,
		   total_marks=EXCLUDED.total_marks, due_at=EXCLUDED.due_at, questions_json=EXCLUDED.questions_json`,
		q.ID, q.Title, q.DurationMinutes, q.TotalMarks, q.DueAt, string(qj), time.Now().Unix())
	if err != nil {
		return &PersistenceError{Op: "put quiz", Err: err}
	}
	return nil
}

func (c *SQLCatalog) Get(ctx context.Context, id string) (Quiz, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id,title,duration_min,total_marks,due_at,questions_json,created_at FROM quizzes WHERE id=$1`, id)
	var q Quiz
	var qjson string
	if err := row.Scan(&q.ID, &q.Title, &q.DurationMinutes, &q.TotalMarks, &q.DueAt, &qjson, &q.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, ErrQuizNotFound
		}
		return Quiz{}, &PersistenceError{Op: "get quiz", Err: err}
	}
	if err := json.Unmarshal([]byte(qjson), &q.Questions); err != nil {
		return Quiz{}, &ValidationError{Field: "questions_json", Reason: "corrupt: " + err.Error()}
	}
	if err := Validate(q); err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (c *SQLCatalog) List(ctx context.Context, limit, offset int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id,title,duration_min,total_marks,due_at,questions_json FROM quizzes
		 ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, &PersistenceError{Op: "list quizzes", Err: err}
	}
	defer rows.Close()
	out := []Summary{}
	for rows.Next() {
		var s Summary
		var qjson string
		if err := rows.Scan(&s.ID, &s.Title, &s.DurationMinutes, &s.TotalMarks, &s.DueAt, &qjson); err != nil {
			return nil, &PersistenceError{Op: "list quizzes", Err: err}
		}
		var qs []Question
		if err := json.Unmarshal([]byte(qjson), &qs); err == nil {
			s.QuestionCount = len(qs)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list quizzes", Err: err}
	}
	return out, nil
}
