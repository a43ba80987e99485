package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"logging": {"level": "debug", "console": true},
		"http": {"enabled": true, "addr": ":3000"},
		"gateway": {"driver": "noop", "default_country_code": "62"},
		"scheduler": {"enabled": true, "interval": "30s", "timezone": "Asia/Jakarta"},
		"store": {"driver": "file", "path": "data/reminders.json"},
		"dispatch": {"workers": 2, "rate_per_sec": 5}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Interval != "30s" || cfg.Scheduler.Timezone != "Asia/Jakarta" {
		t.Fatalf("unexpected scheduler config: %+v", cfg.Scheduler)
	}
	if cfg.Dispatch.MaxAttempts != nil {
		t.Fatalf("omitted max_attempts must stay nil")
	}
	if m.Get() != cfg {
		t.Fatalf("Get must return the committed config")
	}
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
  console: true
gateway:
  driver: twilio
  account_sid: AC123
  auth_token: secret
  from_number: "+14155550100"
scheduler:
  enabled: true
  interval: 1m
store:
  driver: sqlite
  path: data/reminders.db
dispatch:
  max_attempts: 0
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Driver != "twilio" || cfg.Gateway.AccountSID != "AC123" {
		t.Fatalf("unexpected gateway config: %+v", cfg.Gateway)
	}
	if cfg.Dispatch.MaxAttempts == nil || *cfg.Dispatch.MaxAttempts != 0 {
		t.Fatalf("explicit max_attempts=0 must survive parsing")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "config.json", `{"schedulerr": {"enabled": true}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("unknown key must be rejected")
	}

	path = writeConfig(t, "config.yaml", "scheduler:\n  intervall: 30s\n")
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("unknown nested yaml key must be rejected")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}} {"extra": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("trailing JSON document must be rejected")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	path := writeConfig(t, "config.json", `{}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatalf("subscriber got wrong config")
		}
	default:
		t.Fatalf("subscriber never received the publish")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("unsubscribed channel must be closed")
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	path := writeConfig(t, "config.json", `{}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got != second {
		t.Fatalf("a full subscriber must keep the newest config")
	}
}

func TestReloadValidatorRejects(t *testing.T) {
	path := writeConfig(t, "config.json", `{"scheduler": {"enabled": true, "interval": "30s"}}`)
	m := NewManager(path)
	committed, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Scheduler.Interval == "bad" {
			return errInvalidInterval
		}
		return nil
	})

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	if err := os.WriteFile(path, []byte(`{"scheduler": {"enabled": true, "interval": "bad"}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m.reload(context.Background())

	if m.Get() != committed {
		t.Fatalf("rejected config must not be committed")
	}
	select {
	case <-ch:
		t.Fatalf("rejected config must not be published")
	default:
	}

	if err := os.WriteFile(path, []byte(`{"scheduler": {"enabled": true, "interval": "45s"}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m.reload(context.Background())

	got := m.Get()
	if got == committed || got.Scheduler.Interval != "45s" {
		t.Fatalf("valid config must be committed, got %+v", got.Scheduler)
	}
	select {
	case cfg := <-ch:
		if cfg != got {
			t.Fatalf("published config differs from committed one")
		}
	default:
		t.Fatalf("valid config must be published")
	}
}

var errInvalidInterval = errors.New("invalid interval")

func TestDurationField(t *testing.T) {
	if _, err := DurationField("x", "abc", time.Second); err == nil {
		t.Fatalf("junk duration must be rejected")
	}
	if _, err := DurationField("x", "-5s", time.Second); err == nil {
		t.Fatalf("negative duration must be rejected")
	}
	for _, raw := range []string{"", "  ", "0s"} {
		d, err := DurationField("x", raw, 2*time.Second)
		if err != nil || d != 2*time.Second {
			t.Fatalf("%q must yield the default, got (%v, %v)", raw, d, err)
		}
	}
	d, err := DurationField("x", "500ms", 2*time.Second)
	if err != nil || d != 500*time.Millisecond {
		t.Fatalf("explicit value must win, got (%v, %v)", d, err)
	}
}
