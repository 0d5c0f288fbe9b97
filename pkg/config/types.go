package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Security  SecurityConfig  `yaml:"security"`
	Chat      ChatConfig      `yaml:"chat"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds http listener settings.
type ServerConfig struct {
	Address        string    `yaml:"address"`
	Port           int       `yaml:"port"`
	MaxBodySize    SizeBytes `yaml:"max_body_size"`
	ReadTimeout    Duration  `yaml:"read_timeout"`
	WriteTimeout   Duration  `yaml:"write_timeout"`
	IdleTimeout    Duration  `yaml:"idle_timeout"`
	ShutdownWindow Duration  `yaml:"shutdown_window"`
}

// StorageConfig selects and configures the key-value backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // pebble | sqlite | postgres
	Path   string `yaml:"path"`   // pebble directory
	DSN    string `yaml:"dsn"`    // sqlite file or postgres dsn
	// Sync forces an fsync on every pebble commit.
	Sync *bool `yaml:"sync"`
}

// SecurityConfig holds auth, cors and rate limiting settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend []string `yaml:"backend"`
	} `yaml:"api_keys"`
	// SigningKeys verify bearer tokens; the first one signs new tokens.
	SigningKeys []string `yaml:"signing_keys"`
	TokenTTL    Duration `yaml:"token_ttl"`
	Issuer      string   `yaml:"issuer"`
	AdminUserID string   `yaml:"admin_user_id"`
}

// ChatConfig holds message log and aggregation policy.
type ChatConfig struct {
	MaxMessageBytes  SizeBytes `yaml:"max_message_bytes"`
	SummarySource    string    `yaml:"summary_source"` // table | scan
	LegacyVisibility bool      `yaml:"legacy_visibility"`
	AdminDisplayName string    `yaml:"admin_display_name"`
}

// ReconcileConfig controls the scheduled summary rebuild.
type ReconcileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	OnStart bool   `yaml:"on_start"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TelemetryConfig controls sampling and slow-operation thresholds.
type TelemetryConfig struct {
	// SampleRate is the fraction of slow traces logged; 0 disables them.
	SampleRate    *float64 `yaml:"sample_rate"`
	SlowThreshold Duration `yaml:"slow_threshold"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
