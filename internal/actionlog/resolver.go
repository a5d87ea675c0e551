package actionlog

import (
	"context"

	"hearth/internal/domain"
	"hearth/internal/repo"
)

// Status is the tri-state a title reduces to.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDeleted   Status = "deleted"
)

// Resolver reduces the action log to current statuses.
type Resolver struct {
	Repo repo.Repo
}

func statusOf(kind string) Status {
	switch kind {
	case domain.ActionDeleted:
		return StatusDeleted
	case domain.ActionCompleted:
		return StatusCompleted
	default:
		// created, incomplete, or no action at all
		return StatusActive
	}
}

// Resolve returns the status for one (household, title) pair: the kind of
// the most recent action wins, insertion order breaking timestamp ties.
func (r Resolver) Resolve(ctx context.Context, householdID, taskTitle string) (Status, error) {
	statuses, err := r.ResolveBatch(ctx, householdID)
	if err != nil {
		return StatusActive, err
	}
	if s, ok := statuses[taskTitle]; ok {
		return s, nil
	}
	return StatusActive, nil
}

// ResolveBatch reduces every title in one pass over the household's actions.
// The scan is ordered most-recent-first, so the first kind seen per title is
// the winning one. Listings must use this rather than per-title queries.
func (r Resolver) ResolveBatch(ctx context.Context, householdID string) (map[string]Status, error) {
	actions, err := r.Repo.ListActions(ctx, householdID)
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]Status, len(actions))
	for _, a := range actions {
		if _, seen := statuses[a.TaskTitle]; seen {
			continue
		}
		statuses[a.TaskTitle] = statusOf(a.Kind)
	}
	return statuses, nil
}
