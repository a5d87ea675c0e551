package hub

import "encoding/json"

// Client event names.
const (
	EventJoinHousehold   = "join_household"
	EventTaskCreate      = "task:create"
	EventTaskUpdate      = "task:update"
	EventTaskToggle      = "task:toggle"
	EventTaskDelete      = "task:delete"
	EventTaskHardDelete  = "task:hard_delete"
	EventTaskSetAll      = "task:set_all"
	EventRemoveCompleted = "task:remove_completed"
	EventRestartDay      = "restart_day"
)

// Server event names.
const (
	EventSnapshot       = "snapshot"
	EventRoomJoined     = "room:joined"
	EventPresenceUpdate = "presence:update"
	EventTaskCreated    = "task:created"
	EventTaskUpdated    = "task:updated"
	EventTaskDeleted    = "task:deleted"
	EventTasksUpdated   = "tasks:updated"
	EventError          = "error"
)

// Envelope is the wire frame for both directions: an event name and a
// JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client payload schemas. Each mutation kind has an explicit tagged schema
// validated before any handler logic runs.

type JoinHouseholdData struct {
	HouseholdID   string `json:"household_id,omitempty"`
	HouseholdName string `json:"household_name,omitempty"`
}

type TaskCreateData struct {
	Title      string `json:"title"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Priority   string `json:"priority,omitempty"`
}

type TaskUpdateData struct {
	ID         string  `json:"id"`
	Title      *string `json:"title,omitempty"`
	AssignedTo *string `json:"assigned_to,omitempty"`
	Priority   *string `json:"priority,omitempty"`
}

type TaskToggleData struct {
	ID        string `json:"id"`
	Completed bool   `json:"completed"`
}

type TaskDeleteData struct {
	ID string `json:"id"`
}

type TaskSetAllData struct {
	Completed bool `json:"completed"`
}

// Server payloads with structure beyond a task view.

type RoomJoinedData struct {
	HouseholdID string `json:"household_id"`
	Username    string `json:"username"`
}

type PresenceData struct {
	HouseholdID string   `json:"household_id"`
	Online      []string `json:"online"`
}

type TaskDeletedData struct {
	ID string `json:"id"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
