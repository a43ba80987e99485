package store

import (
	"path/filepath"
	"testing"
	"time"

	logx "payremind/pkg/logx"
)

func TestSQLiteRestoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.db")
	cfg := Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}

	s, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	trigger := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)
	pending := Reminder{ID: s.NextID(), PhoneNumber: "628111", TriggerAt: trigger, Message: "bayar", Recurring: true, Attempts: 2}
	s.Put(pending)

	sentID := s.NextID()
	s.Put(Reminder{ID: sentID, PhoneNumber: "628222", TriggerAt: trigger.AddDate(0, -1, 0), Message: "lunas"})
	sentAt := trigger.Add(-30 * 24 * time.Hour)
	if _, ok := s.MarkSent(sentID, sentAt); !ok {
		t.Fatalf("MarkSent failed")
	}

	deadID := s.NextID()
	s.Put(Reminder{ID: deadID, PhoneNumber: "628333", TriggerAt: trigger, Message: "gagal"})
	if _, dead, ok := s.FailAttempt(deadID, 1, trigger.Add(time.Hour), "gateway refused"); !ok || !dead {
		t.Fatalf("FailAttempt did not dead-letter")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, ok := s2.Get(pending.ID)
	if !ok {
		t.Fatalf("pending reminder lost")
	}
	if !got.TriggerAt.Equal(trigger) || !got.Recurring || got.Attempts != 2 {
		t.Fatalf("pending reminder mutated: %+v", got)
	}

	rec, ok := s2.GetSent(sentID)
	if !ok {
		t.Fatalf("sent record lost")
	}
	if !rec.SentAt.Equal(sentAt) {
		t.Fatalf("sentAt mutated: %v", rec.SentAt)
	}

	dead := s2.ListDead()
	if len(dead) != 1 || dead[0].ID != deadID || dead[0].LastError != "gateway refused" {
		t.Fatalf("unexpected dead records: %+v", dead)
	}
}

func TestSQLiteRequiresPath(t *testing.T) {
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatalf("sqlite driver without path must fail")
	}
}
