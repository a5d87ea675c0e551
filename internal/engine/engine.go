// Package engine orchestrates task mutations: validate, persist, append an
// action whose kind reflects the new state, then resolve current status.
// Broadcast fan-out happens above, in the hub; the engine only returns the
// views the caller should publish.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hearth/internal/actionlog"
	"hearth/internal/domain"
	"hearth/internal/repo"
)

const defaultPriority = "999"

// ValidationError marks a malformed or semantically invalid mutation payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Actions  actionlog.Writer
	Resolver actionlog.Resolver
	Now      func() time.Time
}

func New(db *sql.DB) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:       db,
		Repo:     r,
		Actions:  actionlog.Writer{DB: db},
		Resolver: actionlog.Resolver{Repo: r},
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// actions returns the writer stamped with the engine's clock, so action
// timestamps and task timestamps come from the same source.
func (e Engine) actions() actionlog.Writer {
	w := e.Actions
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}

func (e Engine) view(t domain.Task, s actionlog.Status) domain.TaskView {
	return domain.TaskView{
		Task:      t,
		Completed: s == actionlog.StatusCompleted,
		Deleted:   s == actionlog.StatusDeleted,
	}
}

// getHouseholdTask loads a task, confirms it belongs to the household, and
// resolves its title's current status. Deleted is terminal: once a title
// resolves deleted, only a fresh create may bring it back, so a mutation
// against it reports not found. A task in another household is likewise
// indistinguishable from a missing one.
func (e Engine) getHouseholdTask(ctx context.Context, id, householdID string) (domain.Task, actionlog.Status, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, actionlog.StatusActive, err
	}
	if t.HouseholdID != householdID {
		return domain.Task{}, actionlog.StatusActive, repo.ErrNotFound
	}
	status, err := e.Resolver.Resolve(ctx, t.HouseholdID, t.Title)
	if err != nil {
		return domain.Task{}, status, err
	}
	if status == actionlog.StatusDeleted {
		return domain.Task{}, status, repo.ErrNotFound
	}
	return t, status, nil
}

type CreateTaskOptions struct {
	HouseholdID string
	Title       string
	AssignedTo  string
	Priority    string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts CreateTaskOptions) (domain.TaskView, error) {
	if opts.Title == "" {
		return domain.TaskView{}, ValidationError{Field: "title", Reason: "required"}
	}
	if opts.Priority == "" {
		opts.Priority = defaultPriority
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          uuid.NewString(),
		HouseholdID: opts.HouseholdID,
		Title:       opts.Title,
		Priority:    opts.Priority,
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.AssignedTo != "" {
		t.AssignedTo = &opts.AssignedTo
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskView{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.TaskView{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.actions().Append(ctx, tx, t.HouseholdID, t.Title, opts.ActorID, domain.ActionCreated); err != nil {
		return domain.TaskView{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskView{}, err
	}
	status, err := e.Resolver.Resolve(ctx, t.HouseholdID, t.Title)
	if err != nil {
		return domain.TaskView{}, err
	}
	return e.view(t, status), nil
}

type UpdateTaskOptions struct {
	ID          string
	HouseholdID string
	Title       *string
	AssignedTo  *string
	Priority    *string
	ActorID     string
}

func (e Engine) UpdateTask(ctx context.Context, opts UpdateTaskOptions) (domain.TaskView, error) {
	if opts.Title != nil && *opts.Title == "" {
		return domain.TaskView{}, ValidationError{Field: "title", Reason: "must not be empty"}
	}
	t, oldStatus, err := e.getHouseholdTask(ctx, opts.ID, opts.HouseholdID)
	if err != nil {
		return domain.TaskView{}, err
	}
	// Carry the title's resolved status across the edit: a rename moves the
	// task to a fresh title key in the log, so the appended kind must
	// reproduce the state the task already had.
	kind := domain.ActionCreated
	if oldStatus == actionlog.StatusCompleted {
		kind = domain.ActionCompleted
	}
	newTitle := t.Title
	if opts.Title != nil {
		newTitle = *opts.Title
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskView{}, err
	}
	defer tx.Rollback()
	u := repo.TaskUpdate{
		Title:      opts.Title,
		AssignedTo: opts.AssignedTo,
		Priority:   opts.Priority,
		UpdatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.UpdateTask(ctx, tx, t.ID, u); err != nil {
		return domain.TaskView{}, err
	}
	if err := e.actions().Append(ctx, tx, t.HouseholdID, newTitle, opts.ActorID, kind); err != nil {
		return domain.TaskView{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskView{}, err
	}
	t, err = e.Repo.GetTask(ctx, t.ID)
	if err != nil {
		return domain.TaskView{}, err
	}
	status, err := e.Resolver.Resolve(ctx, t.HouseholdID, t.Title)
	if err != nil {
		return domain.TaskView{}, err
	}
	return e.view(t, status), nil
}

// ToggleTask flips completion. Toggling on appends a completed action,
// toggling off appends incomplete.
func (e Engine) ToggleTask(ctx context.Context, id, householdID string, completed bool, actorID string) (domain.TaskView, error) {
	t, _, err := e.getHouseholdTask(ctx, id, householdID)
	if err != nil {
		return domain.TaskView{}, err
	}
	kind := domain.ActionIncomplete
	if completed {
		kind = domain.ActionCompleted
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskView{}, err
	}
	defer tx.Rollback()
	u := repo.TaskUpdate{UpdatedAt: e.now().UTC().Format(time.RFC3339)}
	if err := e.Repo.UpdateTask(ctx, tx, t.ID, u); err != nil {
		return domain.TaskView{}, err
	}
	if err := e.actions().Append(ctx, tx, t.HouseholdID, t.Title, actorID, kind); err != nil {
		return domain.TaskView{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskView{}, err
	}
	status, err := e.Resolver.Resolve(ctx, t.HouseholdID, t.Title)
	if err != nil {
		return domain.TaskView{}, err
	}
	return e.view(t, status), nil
}

// DeleteTask soft-deletes: the row stays, a deleted action hides the title
// from every listing.
func (e Engine) DeleteTask(ctx context.Context, id, householdID, actorID string) error {
	t, _, err := e.getHouseholdTask(ctx, id, householdID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.actions().Append(ctx, tx, t.HouseholdID, t.Title, actorID, domain.ActionDeleted); err != nil {
		return err
	}
	return tx.Commit()
}

// HardDeleteTask removes the row entirely. The deleted action is still
// appended so derived status and history agree.
func (e Engine) HardDeleteTask(ctx context.Context, id, householdID, actorID string) error {
	t, _, err := e.getHouseholdTask(ctx, id, householdID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
		return err
	}
	if err := e.actions().Append(ctx, tx, t.HouseholdID, t.Title, actorID, domain.ActionDeleted); err != nil {
		return err
	}
	return tx.Commit()
}

// SetAll marks every visible task in the household completed or incomplete.
// Each task runs the full persist+append pipeline in its own transaction, so
// a failure partway leaves earlier tasks applied; callers surface the error
// and publish only the views returned so far.
func (e Engine) SetAll(ctx context.Context, householdID string, completed bool, actorID string) ([]domain.TaskView, error) {
	tasks, _, err := e.visibleTasks(ctx, householdID)
	if err != nil {
		return nil, err
	}
	kind := domain.ActionIncomplete
	status := actionlog.StatusActive
	if completed {
		kind = domain.ActionCompleted
		status = actionlog.StatusCompleted
	}
	var views []domain.TaskView
	for _, t := range tasks {
		t, err := e.applyOne(ctx, t, actorID, kind, false)
		if err != nil {
			return views, err
		}
		views = append(views, e.view(t, status))
	}
	return views, nil
}

// RemoveCompleted hard-deletes every task whose resolved status is completed.
// Matching is by resolved title status, like the rest of the log.
func (e Engine) RemoveCompleted(ctx context.Context, householdID, actorID string) ([]string, error) {
	tasks, statuses, err := e.visibleTasks(ctx, householdID)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, t := range tasks {
		if statuses[t.Title] != actionlog.StatusCompleted {
			continue
		}
		if _, err := e.applyOne(ctx, t, actorID, domain.ActionDeleted, true); err != nil {
			return removed, err
		}
		removed = append(removed, t.ID)
	}
	return removed, nil
}

// RestartDay resets every visible task to active for a new day.
func (e Engine) RestartDay(ctx context.Context, householdID, actorID string) ([]domain.TaskView, error) {
	tasks, _, err := e.visibleTasks(ctx, householdID)
	if err != nil {
		return nil, err
	}
	var views []domain.TaskView
	for _, t := range tasks {
		t, err := e.applyOne(ctx, t, actorID, domain.ActionIncomplete, false)
		if err != nil {
			return views, err
		}
		views = append(views, e.view(t, actionlog.StatusActive))
	}
	return views, nil
}

// applyOne runs one task through persist+append in its own transaction and
// returns the task with the timestamp that was written.
func (e Engine) applyOne(ctx context.Context, t domain.Task, actorID, kind string, deleteRow bool) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if deleteRow {
		if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return t, err
		}
	} else {
		u := repo.TaskUpdate{UpdatedAt: e.now().UTC().Format(time.RFC3339)}
		if err := e.Repo.UpdateTask(ctx, tx, t.ID, u); err != nil {
			return t, err
		}
		t.UpdatedAt = u.UpdatedAt
	}
	if err := e.actions().Append(ctx, tx, t.HouseholdID, t.Title, actorID, kind); err != nil {
		return t, err
	}
	return t, tx.Commit()
}

// visibleTasks loads the household's tasks and batch-resolved statuses,
// filtered to titles not resolved as deleted.
func (e Engine) visibleTasks(ctx context.Context, householdID string) ([]domain.Task, map[string]actionlog.Status, error) {
	tasks, err := e.Repo.ListTasks(ctx, householdID)
	if err != nil {
		return nil, nil, err
	}
	statuses, err := e.Resolver.ResolveBatch(ctx, householdID)
	if err != nil {
		return nil, nil, err
	}
	visible := tasks[:0]
	for _, t := range tasks {
		if statuses[t.Title] == actionlog.StatusDeleted {
			continue
		}
		visible = append(visible, t)
	}
	return visible, statuses, nil
}

// Snapshot is the full reconciliation state pushed to a freshly joined
// connection: every non-deleted task with resolved flags, plus the
// household members.
type Snapshot struct {
	Tasks []domain.TaskView `json:"tasks"`
	Users []string          `json:"users"`
}

func (e Engine) Snapshot(ctx context.Context, householdID string) (Snapshot, error) {
	tasks, statuses, err := e.visibleTasks(ctx, householdID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Tasks: []domain.TaskView{}, Users: []string{}}
	for _, t := range tasks {
		snap.Tasks = append(snap.Tasks, e.view(t, statuses[t.Title]))
	}
	users, err := e.Repo.ListUsers(ctx, householdID)
	if err != nil {
		return Snapshot{}, err
	}
	for _, u := range users {
		snap.Users = append(snap.Users, u.Username)
	}
	return snap, nil
}

// ListTaskViews is the REST read: household tasks with resolved status,
// deleted titles hidden.
func (e Engine) ListTaskViews(ctx context.Context, householdID string) ([]domain.TaskView, error) {
	snap, err := e.Snapshot(ctx, householdID)
	if err != nil {
		return nil, err
	}
	return snap.Tasks, nil
}
