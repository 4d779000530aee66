package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	p := write(t, `
sources:
  - name: web
    path: /var/log/nginx/access.log
    format: access
alerts:
  flushInterval: 30s
`)
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Alerts.FlushInterval != 30*time.Second || c.Alerts.EvidenceLines != 10 {
		t.Fatalf("alerts=%+v", c.Alerts)
	}
	if c.Tail.PollInterval != 500*time.Millisecond || c.Tail.WaitInterval != 5*time.Second {
		t.Fatalf("tail=%+v", c.Tail)
	}
	if c.Anomaly.WindowSize != 2000 || c.Anomaly.RetrainEvery != 200 || c.Anomaly.MinSamples != 200 || c.Anomaly.Contamination != 0.01 {
		t.Fatalf("anomaly=%+v", c.Anomaly)
	}
	if c.Reports.EvidenceChars != 300 || c.Events.Path == "" {
		t.Fatalf("reports=%+v events=%+v", c.Reports, c.Events)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(c.SourcePaths(), ","); got != "/var/log/auth.log,/var/log/nginx/access.log" {
		t.Fatalf("sources=%s", got)
	}
	if !c.Anomaly.Enabled {
		t.Fatal("anomaly detection should be on by default")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no sources", "sources: []\n"},
		{"bad format", "sources:\n  - path: /x\n    format: json\n"},
		{"min above window", "sources:\n  - path: /x\nanomaly:\n  windowSize: 100\n  minSamples: 500\n"},
		{"contamination", "sources:\n  - path: /x\nanomaly:\n  contamination: 0.9\n"},
		{"telegram without token", "sources:\n  - path: /x\nnotify:\n  telegram:\n    enabled: true\n"},
		{"bad period", "sources:\n  - path: /x\nreports:\n  schedules:\n    - period: yearly\n      cron: '0 0 * * *'\n"},
	}
	for _, tt := range tests {
		if _, err := Load(write(t, tt.body)); err == nil {
			t.Fatalf("%s: expected validation error", tt.name)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("THREATMON_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("THREATMON_TELEGRAM_CHAT_ID", "99")
	t.Setenv("THREATMON_KAFKA_BROKERS", "k1:9092,k2:9092")
	c, err := Load(write(t, "sources:\n  - path: /var/log/auth.log\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !c.Notify.Telegram.Enabled || c.Notify.Telegram.Token != "123:abc" || c.Notify.Telegram.ChatID != "99" {
		t.Fatalf("telegram=%+v", c.Notify.Telegram)
	}
	if k := c.Notify.Kafka; !k.Enabled || len(k.Brokers) != 2 || k.Topic != "threatmon.alerts" {
		t.Fatalf("kafka=%+v", k)
	}
}

func TestLoadEnvFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(p, []byte("THREATMON_TEST_VALUE=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("THREATMON_TEST_VALUE", "")
	os.Unsetenv("THREATMON_TEST_VALUE")
	if err := LoadEnv(p, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("THREATMON_TEST_VALUE") != "from-dotenv" {
		t.Fatal(".env value not loaded")
	}
}
