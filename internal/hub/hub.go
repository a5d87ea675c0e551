// Package hub is the realtime core: it authenticates websocket connections,
// isolates them into per-household rooms, routes task mutations through the
// engine, and fans resulting events out to room members. Registries are
// owned by the Hub instance so tests construct isolated hubs per case.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"hearth/internal/auth"
	"hearth/internal/engine"
)

type Config struct {
	Engine         engine.Engine
	Auth           auth.Service
	Logger         *slog.Logger
	Registry       prometheus.Registerer
	AllowedOrigins []string
}

type Hub struct {
	engine   engine.Engine
	auth     auth.Service
	log      *slog.Logger
	sessions *sessionRegistry
	rooms    *roomManager
	metrics  *metrics
	upgrader websocket.Upgrader
}

func New(cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		engine:   cfg.Engine,
		auth:     cfg.Auth,
		log:      logger,
		sessions: newSessionRegistry(),
		rooms:    newRoomManager(),
		metrics:  newMetrics(cfg.Registry),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil // gorilla's same-origin default
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP upgrades a connection. The bearer token (Authorization header
// or token query parameter) is verified before the upgrade; a missing or
// bad token refuses the connection outright, no anonymous session exists.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := ""
	if t, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		token = t
	} else {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		http.Error(w, "authentication token required", http.StatusUnauthorized)
		return
	}
	ident, err := h.auth.Verify(token)
	if err != nil {
		http.Error(w, "invalid authentication token", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := h.connect(conn, ident)
	go c.writePump()
	go c.readPump()

	// Auto-join the session's own household and push the first snapshot.
	if err := h.joinRoom(r.Context(), c, ident.HouseholdID); err != nil {
		h.sendError(c, err)
	}
}

func (h *Hub) connect(conn *websocket.Conn, ident auth.Identity) *Client {
	s := &Session{
		ConnID:      uuid.NewString(),
		Username:    ident.Username,
		HouseholdID: ident.HouseholdID,
	}
	c := &Client{
		hub:     h,
		conn:    conn,
		session: s,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
	}
	h.sessions.put(s)
	h.metrics.connections.Inc()
	h.log.Info("connected", "username", s.Username, "household", s.HouseholdID)
	return c
}

func (h *Hub) disconnect(c *Client) {
	room := h.sessions.room(c.session.ConnID)
	h.rooms.leave(c)
	h.sessions.remove(c.session.ConnID)
	c.stop()
	h.metrics.connections.Dec()
	h.log.Info("disconnected", "username", c.session.Username)
	if room != "" {
		h.publishPresence(room)
	}
}

// joinRoom validates the target household against the session, switches
// room membership, and replays the snapshot. Shared by the connect-time
// auto-join and the explicit join_household event.
func (h *Hub) joinRoom(ctx context.Context, c *Client, householdID string) error {
	if householdID != c.session.HouseholdID {
		return AuthorizationError{HouseholdID: householdID}
	}
	h.rooms.join(c, householdID)
	h.sessions.setRoom(c.session.ConnID, householdID)

	h.sendEvent(c, EventRoomJoined, RoomJoinedData{
		HouseholdID: householdID,
		Username:    c.session.Username,
	})
	snap, err := h.engine.Snapshot(ctx, householdID)
	if err != nil {
		return err
	}
	h.sendEvent(c, EventSnapshot, snap)
	h.publishPresence(householdID)
	return nil
}

// Publish delivers an event to every connection in the household's room,
// and only those. Fire-and-forget: a full send queue drops the message for
// that connection; the next snapshot self-heals.
func (h *Hub) Publish(householdID, event string, payload any) {
	msg, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error("encode event", "event", event, "error", err)
		return
	}
	h.metrics.broadcasts.WithLabelValues(event).Inc()
	for _, c := range h.rooms.members(householdID) {
		if !c.enqueue(msg) {
			h.metrics.dropped.Inc()
			h.log.Warn("dropped message", "event", event, "username", c.session.Username)
		}
	}
}

// sendEvent targets a single connection, same non-blocking rules.
func (h *Hub) sendEvent(c *Client, event string, payload any) {
	msg, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error("encode event", "event", event, "error", err)
		return
	}
	if !c.enqueue(msg) {
		h.metrics.dropped.Inc()
	}
}

func (h *Hub) sendError(c *Client, err error) {
	h.sendEvent(c, EventError, ErrorData{Code: errorCode(err), Message: err.Error()})
}

func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// OnlineUsernames lists distinct usernames attached to connections in the
// household's room. Best-effort, never authoritative.
func (h *Hub) OnlineUsernames(householdID string) []string {
	members := h.rooms.members(householdID)
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, c := range members {
		if _, ok := seen[c.session.Username]; ok {
			continue
		}
		seen[c.session.Username] = struct{}{}
		out = append(out, c.session.Username)
	}
	return out
}

func (h *Hub) publishPresence(householdID string) {
	h.Publish(householdID, EventPresenceUpdate, PresenceData{
		HouseholdID: householdID,
		Online:      h.OnlineUsernames(householdID),
	})
}

// dispatchTimeout bounds one mutation's storage work.
const dispatchTimeout = 10 * time.Second
