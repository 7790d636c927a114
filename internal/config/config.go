// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type GatewayConfig struct {
	BaseURL           string        `yaml:"base_url"`
	StreamEndpoint    string        `yaml:"stream_endpoint"` // POST, returns {job_id, stream_url}
	DirectEndpoint    string        `yaml:"direct_endpoint"` // POST, synchronous round trip
	StreamPath        string        `yaml:"stream_path"`     // GET <stream_path><job_id>, text/event-stream
	HealthEndpoint    string        `yaml:"health_endpoint"`
	APIKey            string        `yaml:"api_key"`
	APIKeyHeader      string        `yaml:"api_key_header"`
	JWTSecret         string        `yaml:"jwt_secret"` // when set, requests carry a signed bearer token
	TargetType        string        `yaml:"target_type"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout"` // negative disables the safety timer
	ConcurrentLimit   int           `yaml:"concurrent_limit"`    // max in-flight gateway calls, 0 = unlimited
}

type FeatureFlags struct {
	EnableStreaming *bool `yaml:"enable_streaming"`
	FallbackToSync  *bool `yaml:"fallback_to_sync"`
}

// Streaming reports whether the streaming path is attempted first.
func (f FeatureFlags) Streaming() bool { return f.EnableStreaming == nil || *f.EnableStreaming }

// Fallback reports whether a failed streaming attempt is retried synchronously.
func (f FeatureFlags) Fallback() bool { return f.FallbackToSync == nil || *f.FallbackToSync }

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HistoryConfig struct {
	Backend      string `yaml:"backend"` // memory|redis|postgres
	Conversation string `yaml:"conversation"`
	MaxMessages  int    `yaml:"max_messages"`
	// EncryptionKey enables AES-GCM sealing of message content at rest (16, 24 or 32 bytes).
	EncryptionKey string `yaml:"encryption_key"`
	// Retention prunes older messages on backends without TTL; 0 keeps everything.
	Retention time.Duration `yaml:"retention"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the /metrics listener
}

type MockGatewayConfig struct {
	Addr       string        `yaml:"addr"`
	Workers    int           `yaml:"workers"`
	APIKey     string        `yaml:"api_key"`
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenDelay time.Duration `yaml:"token_delay"`
}

type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway"`
	Features    FeatureFlags      `yaml:"features"`
	Log         LogConfig         `yaml:"log"`
	History     HistoryConfig     `yaml:"history"`
	Redis       RedisConfig       `yaml:"redis"`
	Database    DatabaseConfig    `yaml:"database"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Locale      string            `yaml:"locale"`
	MockGateway MockGatewayConfig `yaml:"mock_gateway"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. A missing file is not an error:
// defaults and environment overrides still produce a usable config.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// Parse builds a config from raw YAML, used by tests and embedded setups.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CONDUCTOR_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("CONDUCTOR_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("CONDUCTOR_JWT_SECRET"); v != "" {
		cfg.Gateway.JWTSecret = v
		cfg.MockGateway.JWTSecret = v
	}
	if v := os.Getenv("CONDUCTOR_HISTORY_KEY"); v != "" {
		cfg.History.EncryptionKey = v
	}
}

func applyDefaults(cfg *Config) {
	g := &cfg.Gateway
	if g.BaseURL == "" {
		g.BaseURL = "http://localhost:5006"
	}
	g.BaseURL = strings.TrimRight(g.BaseURL, "/")
	if g.StreamEndpoint == "" {
		g.StreamEndpoint = "/api/v1/stream-execute"
	}
	if g.DirectEndpoint == "" {
		g.DirectEndpoint = "/api/v1/execute-direct"
	}
	if g.StreamPath == "" {
		g.StreamPath = "/api/v1/stream/"
	}
	if !strings.HasSuffix(g.StreamPath, "/") {
		g.StreamPath += "/"
	}
	if g.HealthEndpoint == "" {
		g.HealthEndpoint = "/health"
	}
	if g.APIKeyHeader == "" {
		g.APIKeyHeader = "X-API-Key"
	}
	if g.TargetType == "" {
		g.TargetType = "conductor"
	}
	if g.RequestTimeout <= 0 {
		g.RequestTimeout = 30 * time.Second
	}
	if g.StreamIdleTimeout == 0 {
		g.StreamIdleTimeout = 60 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = "memory"
	}
	cfg.History.Backend = strings.ToLower(cfg.History.Backend)
	if cfg.History.Conversation == "" {
		cfg.History.Conversation = "default"
	}
	if cfg.History.MaxMessages <= 0 {
		cfg.History.MaxMessages = 100
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Locale == "" {
		cfg.Locale = "pt"
	}

	if cfg.MockGateway.Addr == "" {
		cfg.MockGateway.Addr = ":5006"
	}
	if cfg.MockGateway.Workers <= 0 {
		cfg.MockGateway.Workers = 4
	}
	if cfg.MockGateway.TokenDelay <= 0 {
		cfg.MockGateway.TokenDelay = 50 * time.Millisecond
	}
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("gateway.base_url is not an absolute URL: %q", c.Gateway.BaseURL)
	}
	switch c.History.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for history.backend=redis")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for history.backend=postgres")
		}
	default:
		return fmt.Errorf("unknown history.backend %q", c.History.Backend)
	}
	switch len(c.History.EncryptionKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("history.encryption_key must be 16, 24, or 32 bytes; got %d", len(c.History.EncryptionKey))
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}
