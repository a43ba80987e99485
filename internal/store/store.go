package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	logx "payremind/pkg/logx"
)

type Store struct {
	log logx.Logger

	mu      sync.Mutex
	pending map[int64]Reminder
	sent    map[int64]SentRecord
	dead    map[int64]DeadRecord

	ids idGen

	persist persister
	flushIv time.Duration

	// dirty is a single-slot wakeup for the flusher.
	dirty chan struct{}
}

// Open initializes the configured store and loads any persisted state.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	var p persister
	var err error
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		p = nil
	case "file":
		p, err = openFilePersister(cfg)
	case "sqlite", "sqlite3":
		p, err = openSQLitePersister(cfg)
	default:
		return nil, errors.New("unknown store driver: " + cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	iv := cfg.FlushInterval
	if iv <= 0 {
		iv = 2 * time.Second
	}

	s := &Store{
		log:     log,
		pending: map[int64]Reminder{},
		sent:    map[int64]SentRecord{},
		dead:    map[int64]DeadRecord{},
		persist: p,
		flushIv: iv,
		dirty:   make(chan struct{}, 1),
	}

	if p != nil {
		st, err := p.Load()
		if err != nil {
			// A damaged mirror must not stop the process; start fresh and
			// let the next snapshot replace it.
			log.Error("restore failed; starting with empty state", logx.Err(err))
		} else {
			s.restore(st)
			log.Info("state restored",
				logx.Int("pending", len(s.pending)),
				logx.Int("sent", len(s.sent)),
				logx.Int("dead", len(s.dead)))
		}
	}
	return s, nil
}

func (s *Store) restore(st state) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range st.Pending {
		s.pending[r.ID] = r
		s.ids.reserve(r.ID)
	}
	for _, r := range st.Sent {
		s.sent[r.ID] = r
		s.ids.reserve(r.ID)
	}
	for _, r := range st.Dead {
		s.dead[r.ID] = r
		s.ids.reserve(r.ID)
	}
}

// NextID issues a fresh reminder ID.
func (s *Store) NextID() int64 { return s.ids.next() }

// Put upserts a reminder into the pending collection.
func (s *Store) Put(r Reminder) {
	s.mu.Lock()
	s.pending[r.ID] = r
	s.mu.Unlock()
	s.markDirty()
}

// Remove deletes a pending reminder and reports whether it existed.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	_, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok {
		s.markDirty()
	}
	return ok
}

// Update applies fn to a pending reminder under the store lock, so a
// concurrent MarkSent can never interleave between the read and the write.
// fn sees a copy; the ID is fixed by the caller's key. Returns the updated
// reminder, or false when the ID is not pending.
func (s *Store) Update(id int64, fn func(r *Reminder)) (Reminder, bool) {
	s.mu.Lock()
	r, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		return Reminder{}, false
	}
	fn(&r)
	r.ID = id
	s.pending[id] = r
	s.mu.Unlock()
	s.markDirty()
	return r, true
}

// UpdateSent applies fn to a sent record under the store lock. Same contract
// as Update, for the sent collection.
func (s *Store) UpdateSent(id int64, fn func(rec *SentRecord)) (SentRecord, bool) {
	s.mu.Lock()
	rec, ok := s.sent[id]
	if !ok {
		s.mu.Unlock()
		return SentRecord{}, false
	}
	fn(&rec)
	rec.ID = id
	s.sent[id] = rec
	s.mu.Unlock()
	s.markDirty()
	return rec, true
}

// Get returns a pending reminder by ID.
func (s *Store) Get(id int64) (Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.pending[id]
	return r, ok
}

// GetSent returns a sent record by ID.
func (s *Store) GetSent(id int64) (SentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sent[id]
	return r, ok
}

// Due returns copies of all pending reminders with TriggerAt <= now, sorted
// by (TriggerAt, ID) so the order is stable within one scan.
func (s *Store) Due(now time.Time) []Reminder {
	s.mu.Lock()
	out := make([]Reminder, 0, 8)
	for _, r := range s.pending {
		if !r.TriggerAt.After(now) {
			out = append(out, r)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].TriggerAt.Equal(out[j].TriggerAt) {
			return out[i].TriggerAt.Before(out[j].TriggerAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MarkSent atomically moves a reminder from pending to sent. It is a benign
// no-op when the ID is not pending anymore: a concurrent edit or delete may
// legitimately race with a scan.
func (s *Store) MarkSent(id int64, at time.Time) (SentRecord, bool) {
	s.mu.Lock()
	r, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		return SentRecord{}, false
	}
	delete(s.pending, id)
	rec := SentRecord{Reminder: r, SentAt: at}
	s.sent[id] = rec
	s.mu.Unlock()
	s.markDirty()
	return rec, true
}

// FailAttempt records a failed delivery in one step: it bumps the attempt
// counter and, when maxAttempts > 0 and the new count reaches it, moves the
// reminder to the dead-letter collection under the same lock acquisition. An
// edit that wins the lock first is therefore never dead-lettered with a stale
// error. Returns the new count, whether the reminder was dead-lettered, and
// whether the ID was still pending. maxAttempts <= 0 means unlimited retries.
func (s *Store) FailAttempt(id int64, maxAttempts int, at time.Time, reason string) (int, bool, bool) {
	s.mu.Lock()
	r, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		return 0, false, false
	}
	r.Attempts++
	n := r.Attempts
	dead := maxAttempts > 0 && n >= maxAttempts
	if dead {
		delete(s.pending, id)
		s.dead[id] = DeadRecord{Reminder: r, FailedAt: at, LastError: reason}
	} else {
		s.pending[id] = r
	}
	s.mu.Unlock()
	s.markDirty()
	return n, dead, true
}

// RescheduleNow moves a sent record back to pending with the same ID,
// distinct from the automatic month rollover. The attempt counter restarts.
func (s *Store) RescheduleNow(id int64) (Reminder, bool) {
	s.mu.Lock()
	rec, ok := s.sent[id]
	if !ok {
		s.mu.Unlock()
		return Reminder{}, false
	}
	delete(s.sent, id)
	r := rec.Reminder
	r.Attempts = 0
	s.pending[id] = r
	s.mu.Unlock()
	s.markDirty()
	return r, true
}

// RemoveSent deletes a sent record and reports whether it existed.
func (s *Store) RemoveSent(id int64) bool {
	s.mu.Lock()
	_, ok := s.sent[id]
	delete(s.sent, id)
	s.mu.Unlock()
	if ok {
		s.markDirty()
	}
	return ok
}

// ListPending returns all pending reminders sorted by (TriggerAt, ID).
func (s *Store) ListPending() []Reminder {
	s.mu.Lock()
	out := make([]Reminder, 0, len(s.pending))
	for _, r := range s.pending {
		out = append(out, r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TriggerAt.Equal(out[j].TriggerAt) {
			return out[i].TriggerAt.Before(out[j].TriggerAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListSent returns all sent records, most recent first.
func (s *Store) ListSent() []SentRecord {
	s.mu.Lock()
	out := make([]SentRecord, 0, len(s.sent))
	for _, r := range s.sent {
		out = append(out, r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.After(out[j].SentAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// ListDead returns all dead-letter records, most recent first.
func (s *Store) ListDead() []DeadRecord {
	s.mu.Lock()
	out := make([]DeadRecord, 0, len(s.dead))
	for _, r := range s.dead {
		out = append(out, r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FailedAt.Equal(out[j].FailedAt) {
			return out[i].FailedAt.After(out[j].FailedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Store) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// snapshot copies the committed in-memory state. The copy happens under the
// mutex, so a snapshot never observes a half-applied mutation.
func (s *Store) snapshot() state {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := state{
		Pending: make([]Reminder, 0, len(s.pending)),
		Sent:    make([]SentRecord, 0, len(s.sent)),
		Dead:    make([]DeadRecord, 0, len(s.dead)),
	}
	for _, r := range s.pending {
		st.Pending = append(st.Pending, r)
	}
	for _, r := range s.sent {
		st.Sent = append(st.Sent, r)
	}
	for _, r := range s.dead {
		st.Dead = append(st.Dead, r)
	}
	sort.Slice(st.Pending, func(i, j int) bool { return st.Pending[i].ID < st.Pending[j].ID })
	sort.Slice(st.Sent, func(i, j int) bool { return st.Sent[i].ID < st.Sent[j].ID })
	sort.Slice(st.Dead, func(i, j int) bool { return st.Dead[i].ID < st.Dead[j].ID })
	return st
}

// Flush writes the current state to the durability mirror. Write failures
// are logged; the in-memory state keeps serving.
func (s *Store) Flush() {
	if s.persist == nil {
		return
	}
	st := s.snapshot()
	if err := s.persist.Save(st); err != nil {
		s.log.Error("snapshot write failed", logx.Err(err))
	}
}

// Close flushes outstanding state and releases the persistence backend.
func (s *Store) Close() error {
	s.Flush()
	if s.persist == nil {
		return nil
	}
	return s.persist.Close()
}
