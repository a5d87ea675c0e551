package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"hearth/internal/engine"
	"hearth/internal/repo"
)

// Dispatch routes one decoded client frame. Errors surface as an error
// event to the originating connection only; nothing here is fatal to the
// connection or the process.
func (h *Hub) Dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(c, engine.ValidationError{Field: "event", Reason: "malformed frame"})
		return
	}
	h.metrics.events.WithLabelValues(env.Event).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	var err error
	switch env.Event {
	case EventJoinHousehold:
		err = h.handleJoinHousehold(ctx, c, env.Data)
	case EventTaskCreate:
		err = h.handleTaskCreate(ctx, c, env.Data)
	case EventTaskUpdate:
		err = h.handleTaskUpdate(ctx, c, env.Data)
	case EventTaskToggle:
		err = h.handleTaskToggle(ctx, c, env.Data)
	case EventTaskDelete:
		err = h.handleTaskDelete(ctx, c, env.Data, false)
	case EventTaskHardDelete:
		err = h.handleTaskDelete(ctx, c, env.Data, true)
	case EventTaskSetAll:
		err = h.handleSetAll(ctx, c, env.Data)
	case EventRemoveCompleted:
		err = h.handleRemoveCompleted(ctx, c)
	case EventRestartDay:
		err = h.handleRestartDay(ctx, c)
	default:
		err = engine.ValidationError{Field: "event", Reason: fmt.Sprintf("unknown event %q", env.Event)}
	}
	if err != nil {
		h.log.Warn("event rejected", "event", env.Event, "username", c.session.Username, "error", err)
		h.sendError(c, err)
	}
}

// room returns the session's current room or rejects the mutation.
func (h *Hub) room(c *Client) (string, error) {
	room := h.sessions.room(c.session.ConnID)
	if room == "" {
		return "", ErrNotInRoom
	}
	return room, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var data T
	if len(raw) == 0 {
		return data, engine.ValidationError{Field: "data", Reason: "payload required"}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return data, engine.ValidationError{Field: "data", Reason: err.Error()}
	}
	return data, nil
}

func (h *Hub) handleJoinHousehold(ctx context.Context, c *Client, raw json.RawMessage) error {
	data, err := decode[JoinHouseholdData](raw)
	if err != nil {
		return err
	}
	householdID := data.HouseholdID
	if householdID == "" && data.HouseholdName != "" {
		household, err := h.engine.Repo.GetHouseholdByName(ctx, data.HouseholdName)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				// An unknown name is rejected like any other foreign room.
				return AuthorizationError{HouseholdID: data.HouseholdName}
			}
			return err
		}
		householdID = household.ID
	}
	if householdID == "" {
		return engine.ValidationError{Field: "household_id", Reason: "household_id or household_name required"}
	}
	return h.joinRoom(ctx, c, householdID)
}

func (h *Hub) handleTaskCreate(ctx context.Context, c *Client, raw json.RawMessage) error {
	room, err := h.room(c)
	if err != nil {
		return err
	}
	data, err := decode[TaskCreateData](raw)
	if err != nil {
		return err
	}
	view, err := h.engine.CreateTask(ctx, engine.CreateTaskOptions{
		HouseholdID: room,
		Title:       data.Title,
		AssignedTo:  data.AssignedTo,
		Priority:    data.Priority,
		ActorID:     c.session.Username,
	})
	if err != nil {
		return err
	}
	h.Publish(room, EventTaskCreated, view)
	return nil
}

func (h *Hub) handleTaskUpdate(ctx context.Context, c *Client, raw json.RawMessage) error {
	room, err := h.room(c)
	if err != nil {
		return err
	}
	data, err := decode[TaskUpdateData](raw)
	if err != nil {
		return err
	}
	if data.ID == "" {
		return engine.ValidationError{Field: "id", Reason: "required"}
	}
	view, err := h.engine.UpdateTask(ctx, engine.UpdateTaskOptions{
		ID:          data.ID,
		HouseholdID: room,
		Title:       data.Title,
		AssignedTo:  data.AssignedTo,
		Priority:    data.Priority,
		ActorID:     c.session.Username,
	})
	if err != nil {
		return err
	}
	h.Publish(room, EventTaskUpdated, view)
	return nil
}

func (h *Hub) handleTaskToggle(ctx context.Context, c *Client, raw json.RawMessage) error {
	room, err := h.room(c)
	if err != nil {
		return err
	}
	data, err := decode[TaskToggleData](raw)
	if err != nil {
		return err
	}
	if data.ID == "" {
		return engine.ValidationError{Field: "id", Reason: "required"}
	}
	view, err := h.engine.ToggleTask(ctx, data.ID, room, data.Completed, c.session.Username)
	if err != nil {
		return err
	}
	h.Publish(room, EventTaskUpdated, view)
	return nil
}

func (h *Hub) handleTaskDelete(ctx context.Context, c *Client, raw json.RawMessage, hard bool) error {
	room, err := h.room(c)
	if err != nil {
		return err
	}
	data, err := decode[TaskDeleteData](raw)
	if err != nil {
		return err
	}
	if data.ID == "" {
		return engine.ValidationError{Field: "id", Reason: "required"}
	}
	if hard {
		err = h.engine.HardDeleteTask(ctx, data.ID, room, c.session.Username)
	} else {
		err = h.engine.DeleteTask(ctx, data.ID, room, c.session.Username)
	}
	if err != nil {
		return err
	}
	h.Publish(room, EventTaskDeleted, TaskDeletedData{ID: data.ID})
	return nil
}

func (h *Hub) handleSetAll(ctx context.Context, c *Client, raw json.RawMessage) error {
	room, err := h.room(c)
	if err != nil {
		return err
	}
	data, err := decode[TaskSetAllData](raw)
	if err != nil {
		return err
	}
	views, err := h.engine.SetAll(ctx, room, data.Completed, c.session.Username)
	// Partial failure: broadcast what was applied, then surface the error.
	if len(views) > 0 {
		h.Publish(room, EventTasksUpdated, views)
	}
	return err
}

func (h *Hub) handleRemoveCompleted(ctx context.Context, c *Client) error {
	room, err := h.room(c)
	if err != nil {
		return err
	}
	removed, err := h.engine.RemoveCompleted(ctx, room, c.session.Username)
	for _, id := range removed {
		h.Publish(room, EventTaskDeleted, TaskDeletedData{ID: id})
	}
	return err
}

func (h *Hub) handleRestartDay(ctx context.Context, c *Client) error {
	room, err := h.room(c)
	if err != nil {
		return err
	}
	views, err := h.engine.RestartDay(ctx, room, c.session.Username)
	if len(views) > 0 {
		h.Publish(room, EventTasksUpdated, views)
	}
	return err
}
