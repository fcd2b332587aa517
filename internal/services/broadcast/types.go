package broadcast

import (
	"sync"
	"time"

	"dropwatch/internal/drops"
)

type Config struct {
	HeartbeatInterval time.Duration // default 30s
	WriteTimeout      time.Duration // default 10s
}

// Message is one frame on the live channel. Two kinds exist:
// "ping" keepalives and "drop" payloads. There is no replay: consumers
// see only events published after they connect.
type Message struct {
	Type string       `json:"type"` // "ping" | "drop"
	Time time.Time    `json:"time"`
	Drop *drops.Event `json:"drop,omitempty"`
	// DedupeKey lets consumers suppress the rare duplicate (reconnect
	// races, multiple dropwatch instances). Set on "drop" frames only.
	DedupeKey string `json:"dedupe_key,omitempty"`
}

// Conn is the slice of a websocket connection the hub uses.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// consumer wraps one live connection. writeMu serializes heartbeat and
// drop frames; gorilla connections don't support concurrent writers.
type consumer struct {
	id      string
	conn    Conn
	writeMu sync.Mutex
}

func (c *consumer) write(msg Message, deadline time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(deadline))
	}
	return c.conn.WriteJSON(msg)
}
