package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleYAML = `
telegram:
  token: "123:abc"
  broadcast_chat_ids: [-1001234567890]
  poll_timeout: "10s"
logging:
  level: "debug"
  console: true
api:
  timeout: "5s"
  retry_max: 2
monitor:
  stock_schedule: "*/2 * * * *"
notifications:
  stock_changes: false
  min_quantity: 2
  dedup_window: "15m"
data:
  dir: "./data"
  backup_keep: 5
history:
  driver: "file"
  path: "./data/history"
`

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.BroadcastChatIDs) != 1 || cfg.Telegram.BroadcastChatIDs[0] != -1001234567890 {
		t.Fatalf("broadcast ids = %+v", cfg.Telegram.BroadcastChatIDs)
	}
	if cfg.Notifications.StockChangesEnabled() {
		t.Fatal("explicit false lost in parsing")
	}
	if cfg.Notifications.WeatherEventsEnabled() != true {
		t.Fatal("omitted weather_events must default to enabled")
	}
	if cfg.Notifications.MinQuantity != 2 || cfg.Notifications.DedupWindow != "15m" {
		t.Fatalf("notifications = %+v", cfg.Notifications)
	}
	if cfg.Data.BackupKeep != 5 {
		t.Fatalf("backup_keep = %d", cfg.Data.BackupKeep)
	}
	if cfg.History == nil || cfg.History.Driver != "file" {
		t.Fatalf("history = %+v", cfg.History)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{
		"telegram": {"token": "123:abc"},
		"logging": {"level": "info", "console": true},
		"api": {},
		"monitor": {},
		"notifications": {},
		"data": {"dir": "./data"}
	}`))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Data.Dir != "./data" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  tokken_typo: "oops"
`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"telegram": {"token": "a"}} {"extra": 1}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestLoadCommitsAndGetReturnsIt(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestSubscribePublishDropOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b) // buffer full: the stale item is dropped, newest kept

	select {
	case got := <-ch:
		if got != b {
			t.Fatal("expected the newest config after overflow")
		}
	case <-time.After(time.Second):
		t.Fatal("no config published")
	}
}

func TestReloadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", sampleYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return os.ErrInvalid
		}
		return nil
	})

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	// A broken edit must never reach subscribers or replace the committed
	// config.
	if err := os.WriteFile(path, []byte(`telegram: {token: ""}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())

	select {
	case cfg := <-ch:
		t.Fatalf("rejected config was published: %+v", cfg)
	case <-time.After(50 * time.Millisecond):
	}
	if m.Get().Telegram.Token != "123:abc" {
		t.Fatal("rejected config replaced the committed one")
	}

	// A valid edit goes through.
	if err := os.WriteFile(path, []byte(`telegram: {token: "456:def"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	select {
	case cfg := <-ch:
		if cfg.Telegram.Token != "456:def" {
			t.Fatalf("unexpected published config: %+v", cfg)
		}
	case <-time.After(time.Second):
		t.Fatal("valid reload was not published")
	}
}

func TestReloadSkipsUnchangedContent(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", sampleYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	m.reload(context.Background())
	select {
	case <-ch:
		t.Fatal("unchanged content was republished")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty is zero", raw: "", want: 0},
		{name: "seconds", raw: "10s", want: 10 * time.Second},
		{name: "minutes", raw: "30m", want: 30 * time.Minute},
		{name: "garbage", raw: "soon", wantErr: true},
		{name: "negative", raw: "-5s", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationField("test.field", tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationField(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	if d, err := ParseDurationOrDefault("test.field", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("ParseDurationOrDefault = %v, %v", d, err)
	}
}
