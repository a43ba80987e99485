// Package dispatch delivers due reminders through the gateway and drives
// the resulting state transitions: pending -> sent on success (plus the
// recurring rollover), pending -> dead-letter when attempts run out.
package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"payremind/internal/eventbus"
	"payremind/internal/gateway"
	"payremind/internal/store"
	logx "payremind/pkg/logx"
)

// recipientPattern is the normalized form a recipient must match at the
// moment of delivery, independent of what the store accepted earlier.
var recipientPattern = regexp.MustCompile(`^\d+$`)

type Config struct {
	Workers     int           // concurrent deliveries per batch, default 4
	RatePerSec  int           // gateway send pacing, default 3
	MaxAttempts int           // dead-letter after this many failures; 0 = retry forever
	SendTimeout time.Duration // per-delivery bound, default 10s
}

// Outcome is the event payload published per delivery.
type Outcome struct {
	ID          int64  `json:"id"`
	PhoneNumber string `json:"phoneNumber"`
	Attempts    int    `json:"attempts,omitempty"`
	Error       string `json:"error,omitempty"`
}

type Coordinator struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log    logx.Logger
	bus    eventbus.Bus
	store  *store.Store
	sender gateway.Sender
}

func New(cfg Config, st *store.Store, sender gateway.Sender, log logx.Logger, bus eventbus.Bus) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Coordinator{log: log, bus: bus, store: st, sender: sender}
	c.applyLocked(cfg)
	return c
}

func (c *Coordinator) Apply(cfg Config) {
	c.mu.Lock()
	c.applyLocked(cfg)
	c.mu.Unlock()
}

func (c *Coordinator) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	c.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block hard.
	c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Dispatch resolves one batch of due reminders. Deliveries fan out across a
// bounded worker set; each reminder is processed at most once per batch and
// outcomes are independent: some may archive while others stay pending.
func (c *Coordinator) Dispatch(ctx context.Context, batch []store.Reminder) {
	if len(batch) == 0 {
		return
	}
	c.mu.Lock()
	cfg := c.cfg
	lim := c.limiter
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, r := range batch {
		r := r
		g.Go(func() error {
			// Per-reminder failures are independent; never cancel siblings.
			c.deliver(gctx, cfg, lim, r)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) deliver(ctx context.Context, cfg Config, lim *rate.Limiter, r store.Reminder) {
	if ctx.Err() != nil {
		return
	}

	err := c.send(ctx, cfg, lim, r)
	if err == nil {
		c.archive(r)
		return
	}

	// Failure path: the reminder stays pending untouched apart from its
	// attempt counter and reappears in the next scan. A send failing because
	// the gateway session is down takes the same path as any other error.
	// Bump and dead-letter happen in one store op so a concurrent edit can
	// never land between them.
	attempts, dead, ok := c.store.FailAttempt(r.ID, cfg.MaxAttempts, time.Now(), err.Error())
	if !ok {
		// Deleted or sent elsewhere while we were sending; nothing to retry.
		c.log.Debug("failed delivery for reminder no longer pending", logx.Int64("id", r.ID))
		return
	}

	if dead {
		c.log.Error("reminder dead-lettered",
			logx.Int64("id", r.ID),
			logx.Int("attempts", attempts),
			logx.Err(err))
		c.publish(eventbus.TypeReminderDeadLetter, Outcome{ID: r.ID, PhoneNumber: r.PhoneNumber, Attempts: attempts, Error: err.Error()})
		return
	}

	c.log.Warn("delivery failed; reminder stays pending",
		logx.Int64("id", r.ID),
		logx.Int("attempts", attempts),
		logx.Err(err))
	c.publish(eventbus.TypeReminderFailed, Outcome{ID: r.ID, PhoneNumber: r.PhoneNumber, Attempts: attempts, Error: err.Error()})
}

func (c *Coordinator) send(ctx context.Context, cfg Config, lim *rate.Limiter, r store.Reminder) error {
	if !recipientPattern.MatchString(r.PhoneNumber) {
		return fmt.Errorf("malformed recipient %q", r.PhoneNumber)
	}
	if r.Message == "" {
		return fmt.Errorf("empty message")
	}

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}

	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	return c.sender.Send(sctx, r.PhoneNumber, r.Message)
}

// archive performs the success transition: move to sent history and, for
// recurring reminders, insert the next month's occurrence.
func (c *Coordinator) archive(r store.Reminder) {
	now := time.Now()
	rec, ok := c.store.MarkSent(r.ID, now)
	if !ok {
		// A concurrent edit or delete won the race after the send went out.
		// The message is delivered but there is nothing left to archive.
		c.log.Debug("delivered reminder no longer pending", logx.Int64("id", r.ID))
		return
	}

	c.log.Info("reminder delivered",
		logx.Int64("id", rec.ID),
		logx.String("phone", rec.PhoneNumber))
	c.publish(eventbus.TypeReminderSent, Outcome{ID: rec.ID, PhoneNumber: rec.PhoneNumber})

	if !rec.Recurring {
		return
	}
	next := Successor(rec.Reminder, c.store.NextID())
	c.store.Put(next)
	c.log.Info("recurring reminder rolled over",
		logx.Int64("id", rec.ID),
		logx.Int64("next_id", next.ID),
		logx.Time("next_trigger_at", next.TriggerAt))
	c.publish(eventbus.TypeReminderRecurred, Outcome{ID: next.ID, PhoneNumber: next.PhoneNumber})
}

func (c *Coordinator) publish(typ string, data Outcome) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
