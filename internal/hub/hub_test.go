package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"hearth/internal/auth"
	"hearth/internal/db"
	"hearth/internal/domain"
	"hearth/internal/engine"
	"hearth/internal/migrate"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	for id, name := range map[string]string{"hh-1": "home", "hh-2": "next door"} {
		h := domain.Household{ID: id, Name: name, CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z"}
		if err := eng.Repo.InsertHousehold(ctx, h); err != nil {
			t.Fatalf("seed household: %v", err)
		}
	}
	return New(Config{
		Engine:   eng,
		Auth:     auth.Service{Repo: eng.Repo, Secret: "test-secret"},
		Logger:   slog.New(slog.NewTextHandler(testWriter{t}, nil)),
		Registry: prometheus.NewRegistry(),
	})
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// newTestClient attaches a connectionless client so Dispatch and Publish can
// run without a websocket peer.
func newTestClient(h *Hub, username, householdID string) *Client {
	s := &Session{
		ConnID:      uuid.NewString(),
		Username:    username,
		HouseholdID: householdID,
	}
	c := &Client{
		hub:     h,
		session: s,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
	}
	h.sessions.put(s)
	return c
}

func dispatch(t *testing.T, h *Hub, c *Client, event string, data any) {
	t.Helper()
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatal(err)
		}
		env.Data = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	h.Dispatch(c, frame)
}

// drain empties the client's send queue into decoded envelopes.
func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case msg := <-c.send:
			var env Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				t.Fatalf("bad frame %s: %v", msg, err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func eventNames(envs []Envelope) []string {
	names := make([]string, 0, len(envs))
	for _, e := range envs {
		names = append(names, e.Event)
	}
	return names
}

func findEvent(envs []Envelope, name string) (Envelope, bool) {
	for _, e := range envs {
		if e.Event == name {
			return e, true
		}
	}
	return Envelope{}, false
}

func join(t *testing.T, h *Hub, c *Client) {
	t.Helper()
	dispatch(t, h, c, EventJoinHousehold, JoinHouseholdData{HouseholdID: c.session.HouseholdID})
	envs := drain(t, c)
	if _, ok := findEvent(envs, EventRoomJoined); !ok {
		t.Fatalf("join failed, got events %v", eventNames(envs))
	}
}

func TestJoinOwnHousehold(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, "alice", "hh-1")
	dispatch(t, h, c, EventJoinHousehold, JoinHouseholdData{HouseholdID: "hh-1"})

	envs := drain(t, c)
	for _, want := range []string{EventRoomJoined, EventSnapshot, EventPresenceUpdate} {
		if _, ok := findEvent(envs, want); !ok {
			t.Fatalf("missing %s in %v", want, eventNames(envs))
		}
	}
	if room := h.sessions.room(c.session.ConnID); room != "hh-1" {
		t.Fatalf("expected room hh-1, got %q", room)
	}
}

func TestJoinByHouseholdName(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, "alice", "hh-1")
	dispatch(t, h, c, EventJoinHousehold, JoinHouseholdData{HouseholdName: "home"})
	if room := h.sessions.room(c.session.ConnID); room != "hh-1" {
		t.Fatalf("expected room hh-1, got %q", room)
	}
}

func TestJoinForeignHouseholdRejected(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, "alice", "hh-1")
	dispatch(t, h, c, EventJoinHousehold, JoinHouseholdData{HouseholdID: "hh-2"})

	envs := drain(t, c)
	errEvent, ok := findEvent(envs, EventError)
	if !ok {
		t.Fatalf("expected error event, got %v", eventNames(envs))
	}
	var data ErrorData
	if err := json.Unmarshal(errEvent.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Code != CodeAuthorization {
		t.Fatalf("expected %s, got %s", CodeAuthorization, data.Code)
	}
	if room := h.sessions.room(c.session.ConnID); room != "" {
		t.Fatalf("rejected join must not change room, got %q", room)
	}
}

func TestUnknownHouseholdNameRejected(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, "alice", "hh-1")
	dispatch(t, h, c, EventJoinHousehold, JoinHouseholdData{HouseholdName: "no such place"})

	envs := drain(t, c)
	errEvent, ok := findEvent(envs, EventError)
	if !ok {
		t.Fatalf("expected error event, got %v", eventNames(envs))
	}
	var data ErrorData
	if err := json.Unmarshal(errEvent.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Code != CodeAuthorization {
		t.Fatalf("unknown name should reject like a foreign room, got %s", data.Code)
	}
}

func TestMutationBeforeJoinRejected(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, "alice", "hh-1")
	dispatch(t, h, c, EventTaskCreate, TaskCreateData{Title: "Sneaky chore"})

	envs := drain(t, c)
	errEvent, ok := findEvent(envs, EventError)
	if !ok {
		t.Fatalf("expected error event, got %v", eventNames(envs))
	}
	var data ErrorData
	if err := json.Unmarshal(errEvent.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Code != CodeNotInRoom {
		t.Fatalf("expected %s, got %s", CodeNotInRoom, data.Code)
	}
	// Rejected mutation must leave no trace in the log.
	actions, err := h.engine.Repo.ListActions(context.Background(), "hh-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 0 {
		t.Fatalf("rejected mutation appended actions: %v", actions)
	}
}

func TestUnknownEventRejected(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, "alice", "hh-1")
	join(t, h, c)
	dispatch(t, h, c, "task:explode", map[string]string{"id": "x"})

	envs := drain(t, c)
	errEvent, ok := findEvent(envs, EventError)
	if !ok {
		t.Fatalf("expected error event, got %v", eventNames(envs))
	}
	var data ErrorData
	if err := json.Unmarshal(errEvent.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Code != CodeValidation {
		t.Fatalf("expected %s, got %s", CodeValidation, data.Code)
	}
}

func TestUnknownPayloadFieldRejected(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, "alice", "hh-1")
	join(t, h, c)
	dispatch(t, h, c, EventTaskCreate, map[string]any{"title": "ok", "surprise": true})

	envs := drain(t, c)
	errEvent, ok := findEvent(envs, EventError)
	if !ok {
		t.Fatalf("expected error event, got %v", eventNames(envs))
	}
	var data ErrorData
	if err := json.Unmarshal(errEvent.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Code != CodeValidation {
		t.Fatalf("expected %s, got %s", CodeValidation, data.Code)
	}
}

func TestBroadcastStaysInRoom(t *testing.T) {
	h := newTestHub(t)
	alice := newTestClient(h, "alice", "hh-1")
	bob := newTestClient(h, "bob", "hh-1")
	carol := newTestClient(h, "carol", "hh-2")
	join(t, h, alice)
	join(t, h, bob)
	join(t, h, carol)
	drain(t, alice)
	drain(t, bob)
	drain(t, carol)

	dispatch(t, h, alice, EventTaskCreate, TaskCreateData{Title: "Walk dog"})

	for _, c := range []*Client{alice, bob} {
		envs := drain(t, c)
		if _, ok := findEvent(envs, EventTaskCreated); !ok {
			t.Fatalf("%s missed task:created, got %v", c.session.Username, eventNames(envs))
		}
	}
	if envs := drain(t, carol); len(envs) != 0 {
		t.Fatalf("hh-2 received hh-1 traffic: %v", eventNames(envs))
	}
}

func TestErrorGoesToSenderOnly(t *testing.T) {
	h := newTestHub(t)
	alice := newTestClient(h, "alice", "hh-1")
	bob := newTestClient(h, "bob", "hh-1")
	join(t, h, alice)
	join(t, h, bob)
	drain(t, alice)
	drain(t, bob)

	dispatch(t, h, alice, EventTaskToggle, TaskToggleData{ID: "missing", Completed: true})

	envs := drain(t, alice)
	if _, ok := findEvent(envs, EventError); !ok {
		t.Fatalf("sender should see the error, got %v", eventNames(envs))
	}
	if envs := drain(t, bob); len(envs) != 0 {
		t.Fatalf("error leaked to another member: %v", eventNames(envs))
	}
}

func TestRejoinReplaysSnapshot(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, "alice", "hh-1")
	join(t, h, c)
	dispatch(t, h, c, EventTaskCreate, TaskCreateData{Title: "Groceries"})
	drain(t, c)

	dispatch(t, h, c, EventJoinHousehold, JoinHouseholdData{HouseholdID: "hh-1"})
	envs := drain(t, c)
	snapEvent, ok := findEvent(envs, EventSnapshot)
	if !ok {
		t.Fatalf("rejoin must replay a snapshot, got %v", eventNames(envs))
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(snapEvent.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].Title != "Groceries" {
		t.Fatalf("snapshot missing created task: %+v", snap.Tasks)
	}
}

func TestSetAllBroadcastsBatch(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, "alice", "hh-1")
	join(t, h, c)
	dispatch(t, h, c, EventTaskCreate, TaskCreateData{Title: "One"})
	dispatch(t, h, c, EventTaskCreate, TaskCreateData{Title: "Two"})
	drain(t, c)

	dispatch(t, h, c, EventTaskSetAll, TaskSetAllData{Completed: true})
	envs := drain(t, c)
	batch, ok := findEvent(envs, EventTasksUpdated)
	if !ok {
		t.Fatalf("expected tasks:updated, got %v", eventNames(envs))
	}
	var views []domain.TaskView
	if err := json.Unmarshal(batch.Data, &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views in batch, got %d", len(views))
	}
	for _, v := range views {
		if !v.Completed {
			t.Fatalf("view %q not completed", v.Title)
		}
	}
}

func TestToggleAfterDeleteReportsNotFound(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, "alice", "hh-1")
	join(t, h, c)
	dispatch(t, h, c, EventTaskCreate, TaskCreateData{Title: "Rake leaves"})
	envs := drain(t, c)
	created, ok := findEvent(envs, EventTaskCreated)
	if !ok {
		t.Fatalf("missing task:created: %v", eventNames(envs))
	}
	var view domain.TaskView
	if err := json.Unmarshal(created.Data, &view); err != nil {
		t.Fatal(err)
	}
	dispatch(t, h, c, EventTaskDelete, TaskDeleteData{ID: view.ID})
	drain(t, c)

	dispatch(t, h, c, EventTaskToggle, TaskToggleData{ID: view.ID, Completed: true})
	envs = drain(t, c)
	errEvent, ok := findEvent(envs, EventError)
	if !ok {
		t.Fatalf("expected error event, got %v", eventNames(envs))
	}
	var data ErrorData
	if err := json.Unmarshal(errEvent.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Code != CodeNotFound {
		t.Fatalf("expected %s, got %s", CodeNotFound, data.Code)
	}
	snap := snapshotFor(t, h, c)
	for _, v := range snap.Tasks {
		if v.ID == view.ID {
			t.Fatalf("deleted task resurfaced in snapshot: %+v", v)
		}
	}
}

// snapshotFor rejoins the client's room and decodes the replayed snapshot.
func snapshotFor(t *testing.T, h *Hub, c *Client) engine.Snapshot {
	t.Helper()
	dispatch(t, h, c, EventJoinHousehold, JoinHouseholdData{HouseholdID: c.session.HouseholdID})
	envs := drain(t, c)
	snapEvent, ok := findEvent(envs, EventSnapshot)
	if !ok {
		t.Fatalf("missing snapshot: %v", eventNames(envs))
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(snapEvent.Data, &snap); err != nil {
		t.Fatal(err)
	}
	return snap
}

func TestRemoveCompletedBroadcastsDeletes(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(h, "alice", "hh-1")
	join(t, h, c)
	dispatch(t, h, c, EventTaskCreate, TaskCreateData{Title: "Done chore"})
	envs := drain(t, c)
	created, ok := findEvent(envs, EventTaskCreated)
	if !ok {
		t.Fatalf("missing task:created: %v", eventNames(envs))
	}
	var view domain.TaskView
	if err := json.Unmarshal(created.Data, &view); err != nil {
		t.Fatal(err)
	}
	dispatch(t, h, c, EventTaskToggle, TaskToggleData{ID: view.ID, Completed: true})
	drain(t, c)

	dispatch(t, h, c, EventRemoveCompleted, nil)
	envs = drain(t, c)
	deleted, ok := findEvent(envs, EventTaskDeleted)
	if !ok {
		t.Fatalf("expected task:deleted, got %v", eventNames(envs))
	}
	var data TaskDeletedData
	if err := json.Unmarshal(deleted.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.ID != view.ID {
		t.Fatalf("expected deleted id %s, got %s", view.ID, data.ID)
	}
}

func TestDisconnectUpdatesPresence(t *testing.T) {
	h := newTestHub(t)
	alice := newTestClient(h, "alice", "hh-1")
	bob := newTestClient(h, "bob", "hh-1")
	join(t, h, alice)
	join(t, h, bob)
	drain(t, alice)
	drain(t, bob)

	h.disconnect(alice)

	online := h.OnlineUsernames("hh-1")
	if len(online) != 1 || online[0] != "bob" {
		t.Fatalf("expected only bob online, got %v", online)
	}
	envs := drain(t, bob)
	presence, ok := findEvent(envs, EventPresenceUpdate)
	if !ok {
		t.Fatalf("expected presence:update after disconnect, got %v", eventNames(envs))
	}
	var data PresenceData
	if err := json.Unmarshal(presence.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Online) != 1 || data.Online[0] != "bob" {
		t.Fatalf("presence payload wrong: %v", data.Online)
	}
}
