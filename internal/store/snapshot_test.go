package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "payremind/pkg/logx"
)

func TestFilePersisterAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	p := &filePersister{path: path}

	st := state{
		Pending: []Reminder{{ID: 1, PhoneNumber: "628111", TriggerAt: time.Now(), Message: "x"}},
		Sent:    []SentRecord{},
		Dead:    []DeadRecord{},
	}
	if err := p.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file must not survive a successful save")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	for _, key := range []string{"reminders", "sentReminders", "deadReminders"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("snapshot missing %q", key)
		}
	}
}

func TestOpenCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open must tolerate a damaged mirror: %v", err)
	}
	defer s.Close()
	if got := s.ListPending(); len(got) != 0 {
		t.Fatalf("expected empty state after corrupt restore, got %d", len(got))
	}
}

func TestRunFlusherWritesAfterMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(Config{Driver: "file", Path: path, FlushInterval: 10 * time.Millisecond}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.RunFlusher(ctx)
	}()

	s.Put(Reminder{ID: s.NextID(), PhoneNumber: "628111", TriggerAt: time.Now(), Message: "x"})

	deadline := time.After(2 * time.Second)
	for {
		if raw, err := os.ReadFile(path); err == nil {
			var st state
			if json.Unmarshal(raw, &st) == nil && len(st.Pending) == 1 {
				break
			}
		}
		select {
		case <-deadline:
			t.Fatalf("flusher never wrote the mutation")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("flusher did not stop on context cancel")
	}
}
