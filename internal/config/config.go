package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Source struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path" validate:"required"`
	Format string `yaml:"format" validate:"omitempty,oneof=access auth raw"` // vazio: detecta pelo nome
}

type Schedule struct {
	Period string `yaml:"period" validate:"oneof=day daily today week weekly month monthly"`
	Cron   string `yaml:"cron" validate:"required"`
}

type Config struct {
	Sources []Source `yaml:"sources" validate:"required,min=1,dive"`

	Events struct {
		Path        string `yaml:"path" validate:"required"`
		MaxEvidence int    `yaml:"maxEvidence" validate:"gte=0"`
	} `yaml:"events"`

	State struct {
		Path string `yaml:"path" validate:"required"`
	} `yaml:"state"`

	RulesFile string `yaml:"rulesFile"`

	Alerts struct {
		FlushInterval time.Duration `yaml:"flushInterval" validate:"gt=0"`
		EvidenceLines int           `yaml:"evidenceLines" validate:"gt=0"`
	} `yaml:"alerts"`

	Tail struct {
		PollInterval time.Duration `yaml:"pollInterval" validate:"gt=0"`
		WaitInterval time.Duration `yaml:"waitInterval" validate:"gt=0"`
	} `yaml:"tail"`

	Anomaly struct {
		Enabled       bool    `yaml:"enabled"`
		WindowSize    int     `yaml:"windowSize" validate:"gt=0"`
		RetrainEvery  int     `yaml:"retrainEvery" validate:"gt=0"`
		MinSamples    int     `yaml:"minSamples" validate:"gt=1,ltefield=WindowSize"`
		Contamination float64 `yaml:"contamination" validate:"gt=0,lte=0.5"`
		Trees         int     `yaml:"trees" validate:"gt=0"`
		SampleSize    int     `yaml:"sampleSize" validate:"gt=1"`
		Seed          int64   `yaml:"seed"`
	} `yaml:"anomaly"`

	Notify struct {
		QueueSize int  `yaml:"queueSize" validate:"gt=0"`
		Startup   bool `yaml:"startup"`
		Telegram  struct {
			Enabled bool   `yaml:"enabled"`
			Token   string `yaml:"token" validate:"required_if=Enabled true"`
			ChatID  string `yaml:"chatID" validate:"required_if=Enabled true"`
		} `yaml:"telegram"`
		Slack struct {
			Enabled bool   `yaml:"enabled"`
			Webhook string `yaml:"webhook" validate:"required_if=Enabled true"`
		} `yaml:"slack"`
		Kafka struct {
			Enabled bool     `yaml:"enabled"`
			Brokers []string `yaml:"brokers" validate:"required_if=Enabled true"`
			Topic   string   `yaml:"topic" validate:"required_if=Enabled true"`
		} `yaml:"kafka"`
	} `yaml:"notify"`

	Reports struct {
		EvidenceLines int        `yaml:"evidenceLines" validate:"gt=0"`
		EvidenceChars int        `yaml:"evidenceChars" validate:"gt=0"`
		Schedules     []Schedule `yaml:"schedules" validate:"dive"`
	} `yaml:"reports"`

	Server struct {
		Enabled     bool     `yaml:"enabled"`
		Addr        string   `yaml:"addr"`
		AuthToken   string   `yaml:"authToken"`
		CORSOrigins []string `yaml:"corsOrigins"`
	} `yaml:"server"`

	Tracing struct {
		Enabled      bool    `yaml:"enabled"`
		ServiceName  string  `yaml:"serviceName"`
		OTLPEndpoint string  `yaml:"otlpEndpoint"`
		SampleRatio  float64 `yaml:"sampleRatio" validate:"gte=0,lte=1"`
	} `yaml:"tracing"`
}

// Default mirrors the classic single-host setup: sshd auth log plus nginx.
func Default() *Config {
	c := &Config{
		Sources: []Source{
			{Path: "/var/log/auth.log", Format: "auth"},
			{Path: "/var/log/nginx/access.log", Format: "access"},
		},
	}
	c.applyDefaults()
	c.Anomaly.Enabled = true
	c.Notify.Startup = true
	return c
}

func (c *Config) applyDefaults() {
	if c.Events.Path == "" {
		c.Events.Path = "data/events.jsonl"
	}
	if c.State.Path == "" {
		c.State.Path = "data/threatmon.db"
	}
	if c.Alerts.FlushInterval == 0 {
		c.Alerts.FlushInterval = 60 * time.Second
	}
	if c.Alerts.EvidenceLines == 0 {
		c.Alerts.EvidenceLines = 10
	}
	if c.Tail.PollInterval == 0 {
		c.Tail.PollInterval = 500 * time.Millisecond
	}
	if c.Tail.WaitInterval == 0 {
		c.Tail.WaitInterval = 5 * time.Second
	}
	a := &c.Anomaly
	a.WindowSize = ifZero(a.WindowSize, 2000)
	a.RetrainEvery = ifZero(a.RetrainEvery, 200)
	a.MinSamples = ifZero(a.MinSamples, 200)
	a.Trees = ifZero(a.Trees, 100)
	a.SampleSize = ifZero(a.SampleSize, 256)
	if a.Contamination == 0 {
		a.Contamination = 0.01
	}
	if a.Seed == 0 {
		a.Seed = 42
	}
	c.Notify.QueueSize = ifZero(c.Notify.QueueSize, 256)
	c.Reports.EvidenceLines = ifZero(c.Reports.EvidenceLines, 10)
	c.Reports.EvidenceChars = ifZero(c.Reports.EvidenceChars, 300)
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "go-threat-monitor"
	}
	if c.Tracing.OTLPEndpoint == "" {
		c.Tracing.OTLPEndpoint = "localhost:4317"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1.0
	}
}

// LoadEnv reads .env style files into the process environment. Missing
// files are ignored; existing variables are not overwritten.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML file (defaults only when it does not exist), applies
// environment overrides for secrets and validates the result.
func Load(path string) (*Config, error) {
	var c *Config
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c = Default()
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		c = &Config{}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		c.applyDefaults()
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("THREATMON_TELEGRAM_TOKEN"); v != "" {
		c.Notify.Telegram.Token = v
	}
	if v := os.Getenv("THREATMON_TELEGRAM_CHAT_ID"); v != "" {
		c.Notify.Telegram.ChatID = v
	}
	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID != "" {
		c.Notify.Telegram.Enabled = true
	}
	if v := os.Getenv("THREATMON_SLACK_WEBHOOK"); v != "" {
		c.Notify.Slack.Webhook = v
		c.Notify.Slack.Enabled = true
	}
	if v := os.Getenv("THREATMON_KAFKA_BROKERS"); v != "" {
		c.Notify.Kafka.Brokers = strings.Split(v, ",")
		c.Notify.Kafka.Enabled = true
		if c.Notify.Kafka.Topic == "" {
			c.Notify.Kafka.Topic = "threatmon.alerts"
		}
	}
	if v := os.Getenv("THREATMON_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("THREATMON_EVENTS_PATH"); v != "" {
		c.Events.Path = v
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SourcePaths lists the configured files in order, as shown in alerts.
func (c *Config) SourcePaths() []string {
	out := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, s.Path)
	}
	return out
}

func ifZero(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}
