// Package scheduler runs the due-reminder scan loop: a fixed-interval tick
// that selects overdue reminders and hands them to the dispatcher as one
// batch. Two ticks never overlap for the same store; an in-progress scan
// makes the next tick a skip, never a queue.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"payremind/internal/eventbus"
	"payremind/internal/store"
	logx "payremind/pkg/logx"
)

// Dispatcher consumes one batch of due reminders. The call blocks until the
// whole batch is resolved, which is what makes the skip-if-running guard
// meaningful.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch []store.Reminder)
}

type Config struct {
	Enabled  bool
	Interval time.Duration // default 60s
	Timezone string        // IANA TZ, e.g. "Asia/Jakarta"
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	store    *store.Store
	dispatch Dispatcher

	loc *time.Location
	c   *cron.Cron

	runCtx context.Context

	// busy guards against overlapping ticks.
	busy    atomic.Bool
	skipped atomic.Uint64
}

func New(cfg Config, st *store.Store, d Dispatcher, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	return &Service{cfg: cfg, store: st, dispatch: d, log: log, bus: bus}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply updates interval/timezone; a changed value restarts the cron driver.
func (s *Service) Apply(cfg Config) {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := cfg.Interval != s.cfg.Interval ||
		strings.TrimSpace(cfg.Timezone) != strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg

	if s.c == nil || !changed {
		return
	}
	s.stopCronLocked()
	s.startCronLocked()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx = ctx
	s.startCronLocked()
	s.log.Info("scanner started",
		logx.Duration("interval", s.cfg.Interval),
		logx.String("tz", s.loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("scanner stopped", logx.Uint64("skipped_ticks", s.skipped.Load()))
}

func (s *Service) startCronLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithLocation(s.loc))
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := s.c.AddFunc(spec, s.tick); err != nil {
		// @every with a positive duration always parses; guard anyway.
		s.log.Error("scan schedule rejected", logx.String("spec", spec), logx.Err(err))
		return
	}
	s.c.Start()
}

func (s *Service) stopCronLocked() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// tick runs one scan. The central concurrency invariant lives here: if the
// previous tick is still delivering, this one is dropped entirely so a slow
// gateway cannot cause duplicate sends.
func (s *Service) tick() {
	if !s.busy.CompareAndSwap(false, true) {
		n := s.skipped.Add(1)
		s.log.Info("scan still running; tick skipped", logx.Uint64("total_skipped", n))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeScanSkipped})
		}
		return
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	ctx := s.runCtx
	loc := s.loc
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	now := time.Now().In(loc)
	batch := s.store.Due(now)
	if len(batch) == 0 {
		s.log.Debug("scan found nothing due", logx.Time("now", now))
		return
	}

	s.log.Debug("scan found due reminders", logx.Int("count", len(batch)), logx.Time("now", now))
	s.dispatch.Dispatch(ctx, batch)
}
