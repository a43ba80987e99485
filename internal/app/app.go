// Package app wires configuration, storage, the delivery gateway, the scan
// loop and the HTTP API into one supervised process.
package app

import (
	"context"
	"fmt"
	"time"

	"payremind/internal/config"
	"payremind/internal/dispatch"
	"payremind/internal/eventbus"
	"payremind/internal/gateway"
	"payremind/internal/httpapi"
	"payremind/internal/reminders"
	"payremind/internal/runtime/supervisor"
	"payremind/internal/scheduler"
	"payremind/internal/store"
	logx "payremind/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  *store.Store
	sender gateway.Sender
	svc    *reminders.Service
	coord  *dispatch.Coordinator
	sched  *scheduler.Service
	api    *httpapi.Server

	httpEnabled bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	stCfg, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(stCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}
	log.Info("store opened", logx.String("driver", stCfg.Driver))

	gwCfg, err := mapGatewayConfig(cfg)
	if err != nil {
		return nil, err
	}
	sender, err := gateway.New(gwCfg)
	if err != nil {
		return nil, err
	}

	svc := reminders.New(st, cfg.Gateway.DefaultCountryCode, log.With(logx.String("comp", "reminders")))

	dpCfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	coord := dispatch.New(dpCfg, st, sender, log.With(logx.String("comp", "dispatch")), bus)

	scCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scCfg, st, coord, log.With(logx.String("comp", "scheduler")), bus)

	apiCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	api := httpapi.New(apiCfg, svc, sender, serviceLocation(cfg), log.With(logx.String("comp", "http")))

	return &App{
		cfgPath:     cfgPath,
		cfgm:        cfgm,
		log:         log,
		logs:        logSvc,
		bus:         bus,
		store:       st,
		sender:      sender,
		svc:         svc,
		coord:       coord,
		sched:       sched,
		api:         api,
		httpEnabled: cfg.HTTP.Enabled,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapGatewayConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStoreConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDispatchConfig(cfg); err != nil {
			return err
		}
		if _, err := mapHTTPConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.sender.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("store.flush", func(c context.Context) error {
		return a.store.RunFlusher(c)
	})

	// Session state changes are operational signals, not delivery outcomes.
	a.sup.Go0("gateway.events", func(c context.Context) {
		events := a.sender.Events()
		for {
			select {
			case <-c.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				fields := []logx.Field{logx.String("state", string(ev.State))}
				if ev.PairingCode != "" {
					fields = append(fields, logx.String("pairing_code", ev.PairingCode))
				}
				if ev.Error != "" {
					fields = append(fields, logx.String("err", ev.Error))
				}
				switch ev.State {
				case gateway.StateAuthFailed, gateway.StateDisconnected:
					a.log.Warn("gateway session", fields...)
				default:
					a.log.Info("gateway session", fields...)
				}
				a.bus.Publish(eventbus.Event{Type: eventbus.TypeGatewaySession, Time: ev.At, Data: ev})
			}
		}
	})

	// Audit trail for everything the components publish. The bus is
	// non-blocking, so a wedged log sink drops events instead of stalling
	// a dispatch worker.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event",
					logx.String("type", ev.Type),
					logx.Time("time", ev.Time),
					logx.Any("data", ev.Data))
			}
		}
	})

	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}

	if a.httpEnabled {
		a.sup.Go("http.serve", a.api.Run)
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	// The watcher self-heals inside one run, but a hard failure (fsnotify
	// exhaustion, deleted config dir) is retried with backoff rather than
	// taking the process down.
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated hot-reloaded config into the running
// components. Store, gateway and HTTP listeners are not restarted live;
// changes there log a restart-required warning instead.
func (a *App) applyConfig(ctx context.Context, old, cfg *config.Config) {
	if old != nil && old.Store != cfg.Store {
		a.log.Warn("store config changed; restart required for changes to take effect")
	}
	if old != nil && old.Gateway != cfg.Gateway {
		a.log.Warn("gateway config changed; restart required for changes to take effect")
	}
	if old != nil && old.HTTP != cfg.HTTP {
		a.log.Warn("http config changed; restart required for changes to take effect")
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if dpCfg, err := mapDispatchConfig(cfg); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.coord.Apply(dpCfg)
	}

	prevEnabled := a.sched.Enabled()
	scCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(scCfg)
		switch {
		case prevEnabled && !scCfg.Enabled:
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		case !prevEnabled && scCfg.Enabled:
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
		}
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.String("err", stepCtx.Err().Error()))
		}
	}

	if a.httpEnabled {
		step("http", 3*time.Second, a.api.Stop)
	}
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("gateway", 2*time.Second, a.sender.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)

	// Last: final snapshot and persister teardown, after all writers stopped.
	step("store", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
