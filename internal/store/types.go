package store

import (
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("reminder not found")

// Config configures persistence.
//
// Driver values:
//   - "file":   full-state JSON snapshot, atomically replaced (default)
//   - "sqlite": SQLite database file
//   - "none":   in-memory only
type Config struct {
	Driver        string
	Path          string
	FlushInterval time.Duration // 0 means default (2s)
	BusyTimeout   time.Duration // sqlite only
}

// Reminder is a pending scheduled notification.
//
// PhoneNumber is digits only, normalized to international form before it
// reaches the store. TriggerAt carries local wall-clock semantics and is
// persisted as RFC 3339. Field names round-trip with the HTTP API and the
// snapshot file.
type Reminder struct {
	ID          int64     `json:"id"`
	PhoneNumber string    `json:"phoneNumber"`
	TriggerAt   time.Time `json:"triggerAt"`
	Message     string    `json:"message"`
	Recurring   bool      `json:"recurring"`
	Attempts    int       `json:"attempts,omitempty"`
}

// SentRecord is a reminder frozen at the moment of successful delivery.
type SentRecord struct {
	Reminder
	SentAt time.Time `json:"sentAt"`
}

// DeadRecord is a reminder that exhausted its delivery attempts.
type DeadRecord struct {
	Reminder
	FailedAt  time.Time `json:"failedAt"`
	LastError string    `json:"lastError,omitempty"`
}

// state is the full persisted form: three append-free arrays, rewritten in
// full on every snapshot.
type state struct {
	Pending []Reminder   `json:"reminders"`
	Sent    []SentRecord `json:"sentReminders"`
	Dead    []DeadRecord `json:"deadReminders"`
}

// persister mirrors committed in-memory state to durable storage.
type persister interface {
	Save(st state) error
	Load() (state, error)
	Close() error
}

// idGen issues unix-milli based IDs, strictly increasing per process.
// The original scheme (current time in millis) collides when two reminders
// are created within the same millisecond; the guard bumps instead.
type idGen struct {
	mu   sync.Mutex
	last int64
}

func (g *idGen) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := time.Now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// reserve makes sure future IDs stay above IDs restored from a snapshot.
func (g *idGen) reserve(id int64) {
	g.mu.Lock()
	if id > g.last {
		g.last = id
	}
	g.mu.Unlock()
}
