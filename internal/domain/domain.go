package domain

type Household struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type User struct {
	Username    string `json:"username"`
	HouseholdID string `json:"household_id"`
	// PasswordHash never leaves the server.
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID          string  `json:"id"`
	HouseholdID string  `json:"household_id"`
	Title       string  `json:"title"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	Priority    string  `json:"priority"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// Preferences records which chore categories a user favors. A user with no
// saved row reads as the zero value.
type Preferences struct {
	PetCare      bool `json:"pet_care"`
	Laundry      bool `json:"laundry"`
	Cooking      bool `json:"cooking"`
	Organization bool `json:"organization"`
	PlantCare    bool `json:"plant_care"`
	HouseWork    bool `json:"house_work"`
	YardWork     bool `json:"yard_work"`
	FamilyCare   bool `json:"family_care"`
}

// Action log record kinds.
const (
	ActionCreated    = "created"
	ActionCompleted  = "completed"
	ActionIncomplete = "incomplete"
	ActionDeleted    = "deleted"
)

// Action is an append-only status-change record. Actions are keyed by task
// title, not task id: two same-titled tasks in one household share derived
// status, and recreating a deleted title inherits its predecessor's history.
type Action struct {
	ID          int64  `json:"id"`
	HouseholdID string `json:"household_id"`
	TaskTitle   string `json:"task_title"`
	ActorID     string `json:"actor_id"`
	Kind        string `json:"kind" enum:"created,completed,incomplete,deleted"`
	TS          string `json:"ts" format:"date-time"`
}

// TaskView is a Task annotated with status resolved from the action log.
type TaskView struct {
	Task
	Completed bool `json:"completed"`
	Deleted   bool `json:"deleted"`
}
