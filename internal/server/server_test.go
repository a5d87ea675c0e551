package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hearth/internal/auth"
	"hearth/internal/db"
	"hearth/internal/domain"
	"hearth/internal/engine"
	"hearth/internal/hub"
	"hearth/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	ctx := context.Background()
	h := domain.Household{ID: "hh-1", Name: "home", CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z"}
	if err := e.Repo.InsertHousehold(ctx, h); err != nil {
		t.Fatalf("seed household: %v", err)
	}
	svc := auth.Service{Repo: e.Repo, Secret: "test-secret", TokenTTL: time.Hour}
	registry := prometheus.NewRegistry()
	wsHub := hub.New(hub.Config{Engine: e, Auth: svc, Registry: registry})
	handler, err := New(Config{
		Engine:   e,
		Auth:     svc,
		BasePath: "/v0",
		Hub:      wsHub,
		Presence: wsHub,
		Registry: registry,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func registerAndLogin(t *testing.T, s *testServer, username string) string {
	t.Helper()
	res, body := doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/auth/register", RegisterRequest{
		Username:      username,
		Password:      "hunter2",
		HouseholdName: "home",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register: status=%d body=%s", res.StatusCode, body)
	}
	res, body = doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/auth/login", LoginRequest{
		Username: username,
		Password: "hunter2",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: status=%d body=%s", res.StatusCode, body)
	}
	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if token.Token == "" || token.HouseholdID != "hh-1" {
		t.Fatalf("unexpected token response: %+v", token)
	}
	return token.Token
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(t)
	res, body := doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: status=%d body=%s", res.StatusCode, body)
	}
}

func TestTasksRequireAuth(t *testing.T) {
	s := newTestServer(t)
	res, _ := doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/tasks", nil, map[string]string{
		"Authorization": "Bearer garbage",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestRegisterLoginAndListTasks(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "alice")

	if _, err := s.Engine.CreateTask(context.Background(), engine.CreateTaskOptions{
		HouseholdID: "hh-1",
		Title:       "Groceries",
		ActorID:     "alice",
	}); err != nil {
		t.Fatal(err)
	}

	res, body := doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/tasks", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("tasks: status=%d body=%s", res.StatusCode, body)
	}
	var tasks []TaskResponse
	if err := json.Unmarshal(body, &tasks); err != nil {
		t.Fatalf("decode tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Groceries" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestRegisterUnknownHousehold(t *testing.T) {
	s := newTestServer(t)
	res, body := doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/auth/register", RegisterRequest{
		Username:      "alice",
		Password:      "hunter2",
		HouseholdName: "nowhere",
	}, nil)
	if res.StatusCode == http.StatusCreated {
		t.Fatalf("register into unknown household should fail, body=%s", body)
	}
}

func TestLoginBadPassword(t *testing.T) {
	s := newTestServer(t)
	registerAndLogin(t, s, "alice")
	res, body := doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/auth/login", LoginRequest{
		Username: "alice",
		Password: "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", res.StatusCode, body)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != "authentication_error" {
		t.Fatalf("expected authentication_error, got %q", envelope.Error.Code)
	}
}

func TestListUsersAndPresence(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "alice")
	registerAndLogin(t, s, "bob")

	res, body := doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/users", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("users: status=%d body=%s", res.StatusCode, body)
	}
	var users []UserResponse
	if err := json.Unmarshal(body, &users); err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %+v", users)
	}

	res, body = doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/presence", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("presence: status=%d body=%s", res.StatusCode, body)
	}
	var presence PresenceResponse
	if err := json.Unmarshal(body, &presence); err != nil {
		t.Fatal(err)
	}
	if presence.HouseholdID != "hh-1" || len(presence.Online) != 0 {
		t.Fatalf("expected empty presence for hh-1, got %+v", presence)
	}
}

func TestLogEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "alice")
	if _, err := s.Engine.CreateTask(context.Background(), engine.CreateTaskOptions{
		HouseholdID: "hh-1",
		Title:       "Dishes",
		ActorID:     "alice",
	}); err != nil {
		t.Fatal(err)
	}
	res, body := doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/log?limit=10", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("log: status=%d body=%s", res.StatusCode, body)
	}
	var actions []ActionResponse
	if err := json.Unmarshal(body, &actions); err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].Kind != domain.ActionCreated {
		t.Fatalf("unexpected log: %+v", actions)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "alice")
	headers := map[string]string{"Authorization": "Bearer " + token}

	res, body := doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/preferences", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get preferences: status=%d body=%s", res.StatusCode, body)
	}
	var prefs domain.Preferences
	if err := json.Unmarshal(body, &prefs); err != nil {
		t.Fatal(err)
	}
	if prefs != (domain.Preferences{}) {
		t.Fatalf("expected zero preferences before save, got %+v", prefs)
	}

	want := domain.Preferences{PetCare: true, Cooking: true}
	res, body = doJSON(t, s.Client(), http.MethodPut, s.URL+"/v0/preferences", want, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("save preferences: status=%d body=%s", res.StatusCode, body)
	}

	res, body = doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/preferences", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reread preferences: status=%d body=%s", res.StatusCode, body)
	}
	if err := json.Unmarshal(body, &prefs); err != nil {
		t.Fatal(err)
	}
	if prefs != want {
		t.Fatalf("preferences did not round-trip: got %+v want %+v", prefs, want)
	}
}
