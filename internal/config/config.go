package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the hub.
type Config struct {
	Port      int             `yaml:"port"`
	Version   string          `yaml:"version"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Auth      AuthConfig      `yaml:"auth"`
	Webhooks  WebhookConfig   `yaml:"webhooks"`
	Detection DetectionConfig `yaml:"detection"`
	SLA       SLAConfig       `yaml:"sla"`
	Ingest    IngestConfig    `yaml:"ingest"`
	// SeedDemo loads demo sessions, actions and escalations at startup.
	// Unless set explicitly it is on only for the memory store.
	SeedDemo bool `yaml:"seedDemo"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

type StoreConfig struct {
	// Kind selects the record store: "memory" or "postgres".
	Kind        string `yaml:"kind"`
	DataDir     string `yaml:"dataDir"`
	PostgresURL string `yaml:"postgresUrl"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

type AuthConfig struct {
	// APIKeys enables API key auth on /api routes when non-empty.
	APIKeys []string `yaml:"apiKeys"`
	// CORSOrigins lists allowed browser origins.
	CORSOrigins []string `yaml:"corsOrigins"`
}

type WebhookConfig struct {
	URLs       []string      `yaml:"urls"`
	Secret     string        `yaml:"secret"`
	MaxElapsed time.Duration `yaml:"maxElapsed"`
}

type DetectionConfig struct {
	// Anomaly enables the prompt-injection anomaly rule.
	Anomaly bool `yaml:"anomaly"`
	// ExclusiveScoring scores each action type by its own tier only.
	ExclusiveScoring bool `yaml:"exclusiveScoring"`
}

type SLAConfig struct {
	Interval time.Duration `yaml:"interval"`
	DueSoon  time.Duration `yaml:"dueSoon"`
}

type IngestConfig struct {
	// RatePerSecond limits POST /api/agent-actions. Zero disables the limit.
	RatePerSecond float64 `yaml:"ratePerSecond"`
	Burst         int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:    8080,
		Version: "0.1.0",
		Log:     LogConfig{Level: "info", Format: "console"},
		Store: StoreConfig{
			Kind:    "memory",
			DataDir: "",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "agentcontrol-hub",
		},
		Auth: AuthConfig{CORSOrigins: []string{"*"}},
		Webhooks: WebhookConfig{
			MaxElapsed: 30 * time.Second,
		},
		Detection: DetectionConfig{Anomaly: true},
		SLA:       SLAConfig{Interval: 30 * time.Second, DueSoon: time.Minute},
		Ingest:    IngestConfig{RatePerSecond: 50, Burst: 100},
		SeedDemo:  true,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// HUB_CONFIG_FILE (or path, when non-empty), then HUB_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	var explicit struct {
		SeedDemo *bool `yaml:"seedDemo"`
	}

	if path == "" {
		path = os.Getenv("HUB_CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &explicit); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	cfg.SeedDemo = cfg.Store.Kind == "memory"
	if explicit.SeedDemo != nil {
		cfg.SeedDemo = *explicit.SeedDemo
	}
	cfg.SeedDemo = envBool("HUB_SEED_DEMO", cfg.SeedDemo)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = envInt("HUB_PORT", c.Port)
	c.Version = envStr("HUB_VERSION", c.Version)
	c.Log.Level = envStr("HUB_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envStr("HUB_LOG_FORMAT", c.Log.Format)

	c.Store.Kind = envStr("HUB_STORE", c.Store.Kind)
	c.Store.DataDir = envStr("HUB_DATA_DIR", c.Store.DataDir)
	c.Store.PostgresURL = envStr("DATABASE_URL", c.Store.PostgresURL)

	c.Telemetry.Enabled = envBool("OTEL_ENABLED", c.Telemetry.Enabled)
	c.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)

	c.Auth.APIKeys = envList("HUB_API_KEYS", c.Auth.APIKeys)
	c.Auth.CORSOrigins = envList("HUB_CORS_ORIGINS", c.Auth.CORSOrigins)

	c.Webhooks.URLs = envList("HUB_WEBHOOK_URLS", c.Webhooks.URLs)
	c.Webhooks.Secret = envStr("HUB_WEBHOOK_SECRET", c.Webhooks.Secret)
	c.Webhooks.MaxElapsed = envDuration("HUB_WEBHOOK_MAX_ELAPSED", c.Webhooks.MaxElapsed)

	c.Detection.Anomaly = envBool("HUB_DETECT_ANOMALY", c.Detection.Anomaly)
	c.Detection.ExclusiveScoring = envBool("HUB_EXCLUSIVE_SCORING", c.Detection.ExclusiveScoring)

	c.SLA.Interval = envDuration("HUB_SLA_INTERVAL", c.SLA.Interval)
	c.SLA.DueSoon = envDuration("HUB_SLA_DUE_SOON", c.SLA.DueSoon)

	c.Ingest.RatePerSecond = envFloat("HUB_INGEST_RATE", c.Ingest.RatePerSecond)
	c.Ingest.Burst = envInt("HUB_INGEST_BURST", c.Ingest.Burst)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Store.Kind {
	case "memory":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres store requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown store kind %q (want memory or postgres)", c.Store.Kind)
	}
	if c.SLA.Interval <= 0 {
		return fmt.Errorf("sla interval must be positive")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
