package syncx

import (
	"context"
	"database/sql"
	"time"
)

// Event types appended by the attempt store.
const (
	TypeAttemptStarted   = "AttemptStarted"
	TypeAttemptSubmitted = "AttemptSubmitted"
)

type Event struct {
	Offset    int64
	SiteID    string
	Type      string
	Key       string // natural key: attempt ID
	DataJSON  string
	CreatedAt int64
}

// Execer is satisfied by *sql.DB and *sql.Tx, so events can ride inside the
// same transaction as the write they record.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	return AppendTx(ctx, r.db, e)
}

func AppendTx(ctx context.Context, ex Execer, e Event) error {
	if e.SiteID == "" {
		e.SiteID = "local"
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}
