package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunFlusher mirrors in-memory mutations to the persistence backend. Writes
// are batched: after a mutation marks the store dirty, the flusher waits one
// flush interval so bursts collapse into a single snapshot. A final flush
// happens on shutdown via Close().
func (s *Store) RunFlusher(ctx context.Context) error {
	if s.persist == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.dirty:
			// Coalesce mutations that land close together.
			t := time.NewTimer(s.flushIv)
			select {
			case <-ctx.Done():
				t.Stop()
				s.Flush()
				return nil
			case <-t.C:
			}
			// Drain the wakeup slot so changes made during the write get
			// their own cycle.
			select {
			case <-s.dirty:
			default:
			}
			s.Flush()
		}
	}
}

// filePersister writes the full state as one JSON document. The write goes
// to a temp file first and then replaces the durable file, so a crash
// mid-write never corrupts previously durable state.
type filePersister struct {
	path string
}

func openFilePersister(cfg Config) (persister, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &filePersister{path: path}, nil
}

func (p *filePersister) Save(st state) error {
	tmp := p.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}

func (p *filePersister) Load() (state, error) {
	var st state
	f, err := os.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return state{}, err
	}
	return st, nil
}

func (p *filePersister) Close() error { return nil }
