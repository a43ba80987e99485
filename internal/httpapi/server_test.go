package httpapi

import (
	"context"
	"net"
	"testing"
	"time"

	"payremind/internal/reminders"
	"payremind/internal/store"
	logx "payremind/pkg/logx"
)

func newServerAt(t *testing.T, addr string) *Server {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "none"}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	svc := reminders.New(st, "62", logx.Nop())
	return New(Config{Addr: addr}, svc, readySender{}, time.UTC, logx.Nop())
}

func TestRunReturnsBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()

	srv := newServerAt(t, ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Run(ctx); err == nil {
		t.Fatalf("Run must fail when the address is already taken")
	}
}

func TestRunReturnsNilOnShutdown(t *testing.T) {
	srv := newServerAt(t, "127.0.0.1:0")
	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after Stop")
	}
}
