package app

import (
	"fmt"
	"strings"
	"time"

	"payremind/internal/config"
	"payremind/internal/dispatch"
	"payremind/internal/gateway"
	"payremind/internal/httpapi"
	"payremind/internal/scheduler"
	"payremind/internal/store"
)

// The map* helpers translate the on-disk config into component configs.
// Each one also serves as validation for hot reloads: a mapping error
// rejects the new config before anything is applied.

func mapGatewayConfig(cfg *config.Config) (gateway.Config, error) {
	gc := cfg.Gateway
	timeout, err := config.DurationField("gateway.send_timeout", gc.SendTimeout, 10*time.Second)
	if err != nil {
		return gateway.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(gc.Driver))
	if driver == "twilio" {
		if gc.AccountSID == "" || gc.AuthToken == "" || gc.FromNumber == "" {
			return gateway.Config{}, fmt.Errorf("gateway: account_sid, auth_token and from_number are required for driver=twilio")
		}
	}
	return gateway.Config{
		Driver:      gc.Driver,
		AccountSID:  gc.AccountSID,
		AuthToken:   gc.AuthToken,
		FromNumber:  gc.FromNumber,
		SendTimeout: timeout,
	}, nil
}

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	sc := cfg.Store
	flush, err := config.DurationField("store.flush_interval", sc.FlushInterval, 2*time.Second)
	if err != nil {
		return store.Config{}, err
	}
	busy, err := config.DurationField("store.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return store.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "file", "none":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(sc.Path) == "" {
			return store.Config{}, fmt.Errorf("store.path is required when store.driver=sqlite")
		}
		driver = "sqlite"
	default:
		return store.Config{}, fmt.Errorf("store.driver: unknown %q", sc.Driver)
	}
	return store.Config{
		Driver:        driver,
		Path:          sc.Path,
		FlushInterval: flush,
		BusyTimeout:   busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	interval, err := config.DurationField("scheduler.interval", sc.Interval, time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	if tz := strings.TrimSpace(sc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	return scheduler.Config{
		Enabled:  sc.Enabled,
		Interval: interval,
		Timezone: sc.Timezone,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	dc := cfg.Dispatch
	timeout, err := config.DurationField("dispatch.send_timeout", dc.SendTimeout, 10*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	if dc.Workers < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.workers must be >= 0")
	}
	if dc.RatePerSec < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.rate_per_sec must be >= 0")
	}
	maxAttempts := 25
	if dc.MaxAttempts != nil {
		if *dc.MaxAttempts < 0 {
			return dispatch.Config{}, fmt.Errorf("dispatch.max_attempts must be >= 0")
		}
		maxAttempts = *dc.MaxAttempts
	}
	return dispatch.Config{
		Workers:     dc.Workers,
		RatePerSec:  dc.RatePerSec,
		MaxAttempts: maxAttempts,
		SendTimeout: timeout,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	hc := cfg.HTTP
	readTimeout, err := config.DurationField("http.read_timeout", hc.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	writeTimeout, err := config.DurationField("http.write_timeout", hc.WriteTimeout, 30*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:         hc.Addr,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}, nil
}

// serviceLocation resolves the scheduler timezone once for both the scan
// loop and the HTTP layer's date parsing.
func serviceLocation(cfg *config.Config) *time.Location {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
