// Package gateway is the delivery channel capability: send a text to a
// phone number, with an asynchronously reported session lifecycle.
//
// The scheduler and dispatcher treat a send that fails because the session
// is not ready exactly like any other delivery failure: the reminder stays
// pending and is retried on the next tick.
package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrNotReady = errors.New("gateway session not ready")

type State string

const (
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateDisconnected State = "disconnected"
	StateAuthFailed   State = "auth_failed"
)

// SessionEvent reports a session state change. PairingCode is only set while
// connecting, for channels that need a one-time login artifact.
type SessionEvent struct {
	State       State
	PairingCode string
	Error       string
	At          time.Time
}

// Sender is the consumed delivery capability.
type Sender interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Send delivers text to a normalized (digits-only international)
	// phone number. It fails fast with ErrNotReady while the session is
	// not ready.
	Send(ctx context.Context, phoneNumber, text string) error

	State() State
	Events() <-chan SessionEvent

	// Pairing returns the most recent pairing artifact, or "" for
	// channels without a pairing step.
	Pairing() string
}

// Config selects the driver. See config.GatewayConfig for field semantics.
type Config struct {
	Driver      string
	AccountSID  string
	AuthToken   string
	FromNumber  string
	SendTimeout time.Duration
}

// New initializes the configured sender.
func New(cfg Config) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "noop":
		return newNoop(), nil
	case "twilio":
		return newTwilio(cfg)
	default:
		return nil, errors.New("unknown gateway driver: " + cfg.Driver)
	}
}

// session tracks the current state and fans it out to one subscriber
// channel, dropping events when the subscriber lags. The last pairing code
// is retained so the HTTP API can expose it to a client that missed the
// connecting event.
type session struct {
	mu      sync.Mutex
	state   State
	pairing string
	events  chan SessionEvent
}

func newSession() *session {
	return &session{state: StateConnecting, events: make(chan SessionEvent, 16)}
}

func (s *session) current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) pairingCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairing
}

func (s *session) set(st State, pairingCode, errMsg string) {
	s.mu.Lock()
	changed := s.state != st || pairingCode != ""
	s.state = st
	if pairingCode != "" {
		s.pairing = pairingCode
	}
	s.mu.Unlock()
	if !changed {
		return
	}
	ev := SessionEvent{State: st, PairingCode: pairingCode, Error: errMsg, At: time.Now()}
	select {
	case s.events <- ev:
	default:
	}
}
