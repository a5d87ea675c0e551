// Package actionlog owns the append-only action history and the status
// derivation built on it. Actions are keyed by (household, task title)
// rather than task id; this mirrors the system's original behavior and
// means same-titled tasks share a status history. Callers that need a
// clean history for a recreated title rely on timestamp order instead.
package actionlog

import (
	"context"
	"database/sql"
	"time"
)

// tsLayout keeps a fixed-width fraction so stored timestamps sort
// chronologically under SQLite's text comparison.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Writer appends action records. Append is a pure insert; history is never
// rewritten.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, householdID, taskTitle, actorID, kind string) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(tsLayout)
	_, err := tx.ExecContext(ctx, `INSERT INTO actions(household_id,task_title,actor_id,kind,ts) VALUES (?,?,?,?,?)`,
		householdID, taskTitle, actorID, kind, ts)
	return err
}
