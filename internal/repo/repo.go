package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"hearth/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func scanTask(row *sql.Row) (domain.Task, error) {
	var t domain.Task
	var assigned sql.NullString
	err := row.Scan(&t.ID, &t.HouseholdID, &t.Title, &assigned, &t.Priority, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if assigned.Valid {
		t.AssignedTo = &assigned.String
	}
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	var assigned any
	if t.AssignedTo != nil {
		assigned = *t.AssignedTo
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,household_id,title,assigned_to,priority,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.HouseholdID, t.Title, assigned, t.Priority, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT id,household_id,title,assigned_to,priority,created_by,created_at,updated_at FROM tasks WHERE id=?`, id))
}

// TaskUpdate lists the mutable columns of a task row. Nil fields are untouched.
type TaskUpdate struct {
	Title      *string
	AssignedTo *string
	Priority   *string
	UpdatedAt  string
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, id string, u TaskUpdate) error {
	fields := []string{"updated_at=?"}
	args := []any{u.UpdatedAt}
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.AssignedTo != nil {
		fields = append(fields, "assigned_to=?")
		args = append(args, nullable(*u.AssignedTo))
	}
	if u.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *u.Priority)
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListTasks(ctx context.Context, householdID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,household_id,title,assigned_to,priority,created_by,created_at,updated_at FROM tasks WHERE household_id=? ORDER BY created_at ASC, id ASC`, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var assigned sql.NullString
		if err := rows.Scan(&t.ID, &t.HouseholdID, &t.Title, &assigned, &t.Priority, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if assigned.Valid {
			t.AssignedTo = &assigned.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListActions returns every action for a household, most recent first.
// Ties on timestamp break by insertion id so the scan order is a total order.
func (r Repo) ListActions(ctx context.Context, householdID string) ([]domain.Action, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,household_id,task_title,actor_id,kind,ts FROM actions WHERE household_id=? ORDER BY ts DESC, id DESC`, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Action
	for rows.Next() {
		var a domain.Action
		if err := rows.Scan(&a.ID, &a.HouseholdID, &a.TaskTitle, &a.ActorID, &a.Kind, &a.TS); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// LatestActions returns up to n recent actions across a household for the log tail.
func (r Repo) LatestActions(ctx context.Context, householdID string, n int) ([]domain.Action, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,household_id,task_title,actor_id,kind,ts FROM actions WHERE household_id=? ORDER BY ts DESC, id DESC LIMIT ?`, householdID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Action
	for rows.Next() {
		var a domain.Action
		if err := rows.Scan(&a.ID, &a.HouseholdID, &a.TaskTitle, &a.ActorID, &a.Kind, &a.TS); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
