package server

import (
	"hearth/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	HouseholdName string `json:"household_name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Response payloads

type TokenResponse struct {
	Token       string `json:"token"`
	Username    string `json:"username"`
	HouseholdID string `json:"household_id"`
}

type UserResponse struct {
	Username    string `json:"username"`
	HouseholdID string `json:"household_id"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type TaskResponse struct {
	ID          string  `json:"id"`
	HouseholdID string  `json:"household_id"`
	Title       string  `json:"title"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	Priority    string  `json:"priority"`
	CreatedBy   string  `json:"created_by"`
	Completed   bool    `json:"completed"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type PresenceResponse struct {
	HouseholdID string   `json:"household_id"`
	Online      []string `json:"online"`
}

type ActionResponse struct {
	ID          int64  `json:"id"`
	HouseholdID string `json:"household_id"`
	TaskTitle   string `json:"task_title"`
	ActorID     string `json:"actor_id"`
	Kind        string `json:"kind"`
	TS          string `json:"ts" format:"date-time"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		Username:    u.Username,
		HouseholdID: u.HouseholdID,
		CreatedAt:   u.CreatedAt,
	}
}

func mapUsers(items []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(items))
	for _, u := range items {
		out = append(out, userResponse(u))
	}
	return out
}

func taskResponse(v domain.TaskView) TaskResponse {
	return TaskResponse{
		ID:          v.ID,
		HouseholdID: v.HouseholdID,
		Title:       v.Title,
		AssignedTo:  v.AssignedTo,
		Priority:    v.Priority,
		CreatedBy:   v.CreatedBy,
		Completed:   v.Completed,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
}

func mapTasks(items []domain.TaskView) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, v := range items {
		out = append(out, taskResponse(v))
	}
	return out
}

func actionResponse(a domain.Action) ActionResponse {
	return ActionResponse{
		ID:          a.ID,
		HouseholdID: a.HouseholdID,
		TaskTitle:   a.TaskTitle,
		ActorID:     a.ActorID,
		Kind:        a.Kind,
		TS:          a.TS,
	}
}
