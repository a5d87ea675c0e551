// Package presence exposes "who is online in household X" across process
// boundaries over NATS request/reply. Presence is best-effort, never
// authoritative: a query that fails or times out reports nobody online.
package presence

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	subjectPrefix  = "hearth.presence."
	defaultTimeout = 2 * time.Second
)

type reply struct {
	Online []string `json:"online"`
}

// Source answers presence queries; the hub implements it.
type Source interface {
	OnlineUsernames(householdID string) []string
}

// Responder serves presence queries for one server process.
type Responder struct {
	sub *nats.Subscription
}

func StartResponder(nc *nats.Conn, source Source, logger *slog.Logger) (*Responder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sub, err := nc.Subscribe(subjectPrefix+"*", func(msg *nats.Msg) {
		householdID := strings.TrimPrefix(msg.Subject, subjectPrefix)
		data, err := json.Marshal(reply{Online: source.OnlineUsernames(householdID)})
		if err != nil {
			logger.Error("encode presence reply", "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			logger.Warn("presence respond failed", "household", householdID, "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return &Responder{sub: sub}, nil
}

func (r *Responder) Close() error {
	return r.sub.Unsubscribe()
}

// Client queries presence from another process.
type Client struct {
	NC      *nats.Conn
	Timeout time.Duration
}

// OnlineUsernames asks the serving process who is online. Any failure,
// including no responder at all, degrades to an empty set.
func (c Client) OnlineUsernames(householdID string) []string {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	msg, err := c.NC.Request(subjectPrefix+householdID, nil, timeout)
	if err != nil {
		return []string{}
	}
	var r reply
	if err := json.Unmarshal(msg.Data, &r); err != nil || r.Online == nil {
		return []string{}
	}
	return r.Online
}
