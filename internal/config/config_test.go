package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

const validYAML = `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: "debug"
  console: true
catalog:
  timeout: "5s"
  retry_max: 1
watcher:
  poll_interval: "24h"
`

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "config.yaml", validYAML)
	m := NewManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Logging.Level != "debug" || cfg.Catalog.RetryMax != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram":{"token":"123:abc"},"logging":{"level":"info","console":true,"file":{"enabled":false}},"catalog":{},"watcher":{}}`)
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	p := writeFile(t, "config.yaml", validYAML+"\nbogus: true\n")
	m := NewManager(p)
	if _, err := m.Load(); err == nil {
		t.Fatal("unknown top-level field must be rejected")
	}
}

func TestLoadRejectsMissingToken(t *testing.T) {
	p := writeFile(t, "config.yaml", strings.Replace(validYAML, `"123:abc"`, `""`, 1))
	m := NewManager(p)
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	p := writeFile(t, "config.yaml", strings.Replace(validYAML, `"24h"`, `"soon"`, 1))
	m := NewManager(p)
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "watcher.poll_interval") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 5)
	if err != nil || d != 5 {
		t.Fatalf("(%v, %v)", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-3s", 5); err == nil {
		t.Fatal("negative duration must fail")
	}
}

func TestSummarizeChange(t *testing.T) {
	oldCfg := &Config{}
	newCfg := &Config{}
	newCfg.Logging.Level = "debug"
	newCfg.Watcher.PollInterval = "12h"

	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := "logging,watcher"
	if got := strings.Join(changed, ","); got != want {
		t.Fatalf("changed = %q, want %q", got, want)
	}

	// Omitted notifier section equals runtime defaults.
	withDefault := &Config{Notifier: &NotifierConfig{RatePerSec: 3}}
	if changed, _ := SummarizeChange(&Config{}, withDefault); len(changed) != 0 {
		t.Fatalf("default notifier reported as change: %v", changed)
	}
}

func TestSubscribePublishLatestWins(t *testing.T) {
	p := writeFile(t, "config.yaml", validYAML)
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{}
	m.publish(first)
	m.publish(second) // buffer full: oldest dropped, newest kept

	got := <-ch
	if got != second {
		t.Fatal("subscriber must see the newest config")
	}
}
