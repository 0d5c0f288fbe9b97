package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// server defaults
	defaultPort           = 8080
	defaultMaxBodySize    = 1 << 20 // 1 MiB
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultIdleTimeout    = 30 * time.Second
	defaultShutdownWindow = 20 * time.Second
	// storage defaults
	defaultDriver      = "pebble"
	defaultStoragePath = "./.chatdesk"
	// security defaults
	defaultRateRPS   = 50
	defaultRateBurst = 100
	defaultTokenTTL  = 24 * time.Hour
	defaultIssuer    = "chatdesk"
	// chat defaults
	defaultMaxMessageBytes  = 4 * 1024
	defaultSummarySource    = SummarySourceTable
	defaultAdminDisplayName = "Admin"
	// reconcile defaults
	defaultReconcileCron = "*/15 * * * *"
	// telemetry defaults
	defaultTelemetrySampleRate = 1.0
	defaultTelemetrySlowMs     = 200
)

const (
	SummarySourceTable = "table"
	SummarySourceScan  = "scan"
)

var (
	cfgMu     sync.RWMutex
	globalCfg *Config
)

// SetConfig installs the process-wide effective config.
func SetConfig(c *Config) {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	globalCfg = c
}

// GetConfig returns the process-wide config, or an empty one with defaults applied.
func GetConfig() *Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	if globalCfg == nil {
		c := &Config{}
		c.ApplyDefaults()
		return c
	}
	return globalCfg
}

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// SyncWrites reports whether pebble commits should fsync. Defaults to true.
func (c *Config) SyncWrites() bool {
	if c.Storage.Sync == nil {
		return true
	}
	return *c.Storage.Sync
}

// TelemetrySampleRate returns the configured slow-trace sample rate.
// Defaults to 1 when unset.
func (c *Config) TelemetrySampleRate() float64 {
	if c.Telemetry.SampleRate == nil {
		return defaultTelemetrySampleRate
	}
	return *c.Telemetry.SampleRate
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every zero value that has a default. It never
// overrides a value that was set.
func (c *Config) ApplyDefaults() {
	// server
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.MaxBodySize == 0 {
		c.Server.MaxBodySize = SizeBytes(defaultMaxBodySize)
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(defaultReadTimeout)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(defaultIdleTimeout)
	}
	if c.Server.ShutdownWindow == 0 {
		c.Server.ShutdownWindow = Duration(defaultShutdownWindow)
	}

	// storage
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = defaultDriver
	}
	if c.Storage.Driver == "pebble" && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = defaultStoragePath
	}

	// security
	if c.Security.RateLimit.RPS <= 0 {
		c.Security.RateLimit.RPS = defaultRateRPS
	}
	if c.Security.RateLimit.Burst <= 0 {
		c.Security.RateLimit.Burst = defaultRateBurst
	}
	if c.Security.TokenTTL == 0 {
		c.Security.TokenTTL = Duration(defaultTokenTTL)
	}
	if c.Security.Issuer == "" {
		c.Security.Issuer = defaultIssuer
	}

	// chat
	if c.Chat.MaxMessageBytes == 0 {
		c.Chat.MaxMessageBytes = SizeBytes(defaultMaxMessageBytes)
	}
	if c.Chat.SummarySource == "" {
		c.Chat.SummarySource = defaultSummarySource
	}
	if c.Chat.AdminDisplayName == "" {
		c.Chat.AdminDisplayName = defaultAdminDisplayName
	}

	// reconcile
	if c.Reconcile.Cron == "" {
		c.Reconcile.Cron = defaultReconcileCron
	}

	// logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	// telemetry
	if c.Telemetry.SlowThreshold == 0 {
		c.Telemetry.SlowThreshold = Duration(time.Duration(defaultTelemetrySlowMs) * time.Millisecond)
	}
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv(envPrefix + "CONFIG"); p != "" {
		return p
	}
	return flagPath
}
