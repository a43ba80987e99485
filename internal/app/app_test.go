package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"payremind/internal/eventbus"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppStartStop(t *testing.T) {
	path := writeConfig(t, `{"logging": {"level": "error"}}`)

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The bus log loop runs for the whole app lifetime; publishing must
	// never block even with nobody else draining.
	for i := 0; i < 256; i++ {
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderSent})
	}

	select {
	case <-a.Done():
		t.Fatalf("app stopped prematurely: %v", a.Err())
	case <-time.After(100 * time.Millisecond):
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done must be closed after Stop")
	}
	if err := a.Err(); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
}

func TestAppNewRejectsBadConfig(t *testing.T) {
	path := writeConfig(t, `{"store": {"driver": "cassette-tape"}}`)
	if _, err := New(path); err == nil {
		t.Fatalf("unknown store driver must fail New")
	}
}
