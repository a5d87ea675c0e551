package hearthsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a minimal Hearth HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID          string  `json:"id"`
	HouseholdID string  `json:"household_id"`
	Title       string  `json:"title"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	Priority    string  `json:"priority"`
	Completed   bool    `json:"completed"`
}

// User represents a household member.
type User struct {
	Username    string `json:"username"`
	HouseholdID string `json:"household_id"`
}

// Presence lists who is online in a household.
type Presence struct {
	HouseholdID string   `json:"household_id"`
	Online      []string `json:"online"`
}

// Action is one append-only log entry.
type Action struct {
	ID        int64  `json:"id"`
	TaskTitle string `json:"task_title"`
	ActorID   string `json:"actor_id"`
	Kind      string `json:"kind"`
	TS        string `json:"ts"`
}

// Preferences holds the caller's chore-category preferences.
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

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Register creates a user in an existing household.
func (c *Client) Register(ctx context.Context, username, password, householdName string) (User, error) {
	body := map[string]any{
		"username":       username,
		"password":       password,
		"household_name": householdName,
	}
	var resp User
	err := c.do(ctx, http.MethodPost, "v0/auth/register", body, &resp)
	return resp, err
}

// Login exchanges credentials for a token and stores it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body := map[string]any{
		"username": username,
		"password": password,
	}
	var resp struct {
		Token       string `json:"token"`
		Username    string `json:"username"`
		HouseholdID string `json:"household_id"`
	}
	if err := c.do(ctx, http.MethodPost, "v0/auth/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// Tasks returns the caller's visible tasks.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "v0/tasks", nil, &resp)
	return resp, err
}

// Users returns the caller's household members.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var resp []User
	err := c.do(ctx, http.MethodGet, "v0/users", nil, &resp)
	return resp, err
}

// Presence returns who is online in the caller's household.
func (c *Client) Presence(ctx context.Context) (Presence, error) {
	var resp Presence
	err := c.do(ctx, http.MethodGet, "v0/presence", nil, &resp)
	return resp, err
}

// Preferences returns the caller's saved chore preferences.
func (c *Client) Preferences(ctx context.Context) (Preferences, error) {
	var resp Preferences
	err := c.do(ctx, http.MethodGet, "v0/preferences", nil, &resp)
	return resp, err
}

// SavePreferences replaces the caller's chore preferences.
func (c *Client) SavePreferences(ctx context.Context, p Preferences) error {
	return c.do(ctx, http.MethodPut, "v0/preferences", p, nil)
}

// Log returns recent household actions.
func (c *Client) Log(ctx context.Context, limit int) ([]Action, error) {
	endpoint := "v0/log"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Action
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Envelope is one socket frame in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Socket is a live connection to the sync hub.
type Socket struct {
	conn *websocket.Conn
}

// Connect dials the sync hub using the client's bearer token.
func (c *Client) Connect(ctx context.Context) (*Socket, error) {
	if c.BearerToken == "" {
		return nil, fmt.Errorf("login first: bearer token required")
	}
	u, err := url.Parse(c.base())
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	header := http.Header{"Authorization": {"Bearer " + c.BearerToken}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status=%d: %w", u.String(), resp.StatusCode, err)
		}
		return nil, err
	}
	return &Socket{conn: conn}, nil
}

// Send writes one event frame.
func (s *Socket) Send(event string, data any) error {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		env.Data = raw
	}
	return s.conn.WriteJSON(env)
}

// Next blocks until the next server frame arrives.
func (s *Socket) Next() (Envelope, error) {
	var env Envelope
	if err := s.conn.ReadJSON(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// JoinHousehold switches the connection into a household room by name.
func (s *Socket) JoinHousehold(name string) error {
	return s.Send("join_household", map[string]string{"household_name": name})
}

// CreateTask asks the hub to create a task.
func (s *Socket) CreateTask(title, assignedTo, priority string) error {
	body := map[string]any{"title": title}
	if assignedTo != "" {
		body["assigned_to"] = assignedTo
	}
	if priority != "" {
		body["priority"] = priority
	}
	return s.Send("task:create", body)
}

// ToggleTask marks a task done or not done.
func (s *Socket) ToggleTask(id string, completed bool) error {
	return s.Send("task:toggle", map[string]any{"id": id, "completed": completed})
}

// Close shuts the connection down.
func (s *Socket) Close() error {
	return s.conn.Close()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
