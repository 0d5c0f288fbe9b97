package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func validBase() *Config {
	c := &Config{}
	c.Security.SigningKeys = []string{"0123456789abcdef0123"}
	c.Security.AdminUserID = "admin-1"
	return c
}

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults()

	assert.Equal(t, "0.0.0.0:8080", c.Addr())
	assert.Equal(t, "pebble", c.Storage.Driver)
	assert.Equal(t, defaultStoragePath, c.Storage.Path)
	assert.Equal(t, SizeBytes(4096), c.Chat.MaxMessageBytes)
	assert.Equal(t, SummarySourceTable, c.Chat.SummarySource)
	assert.Equal(t, "Admin", c.Chat.AdminDisplayName)
	assert.Equal(t, 24*time.Hour, c.Security.TokenTTL.Duration())
	assert.True(t, c.SyncWrites())
}

func TestParseConfigEnvsOverlaysBase(t *testing.T) {
	base := validBase()
	base.Server.Port = 9000
	base.Chat.SummarySource = SummarySourceTable

	out, res := ParseConfigEnvs(base, envMap(map[string]string{
		"CHATDESK_ADDR":              "127.0.0.1:7070",
		"CHATDESK_SIGNING_KEYS":      " new-key-000000000000 , old-key-000000000000 ",
		"CHATDESK_MAX_MESSAGE_BYTES": "2KiB",
		"CHATDESK_LEGACY_VISIBILITY": "yes",
		"CHATDESK_SUMMARY_SOURCE":    "SCAN",
		"CHATDESK_STORAGE_SYNC":      "false",
		"CHATDESK_TOKEN_TTL":         "90m",
	}))

	require.True(t, res.EnvUsed)
	assert.Len(t, res.Keys, 7)
	assert.Equal(t, "127.0.0.1", out.Server.Address)
	assert.Equal(t, 7070, out.Server.Port)
	assert.Equal(t, []string{"new-key-000000000000", "old-key-000000000000"}, out.Security.SigningKeys)
	assert.Equal(t, SizeBytes(2048), out.Chat.MaxMessageBytes)
	assert.True(t, out.Chat.LegacyVisibility)
	assert.Equal(t, SummarySourceScan, out.Chat.SummarySource)
	assert.False(t, out.SyncWrites())
	assert.Equal(t, 90*time.Minute, out.Security.TokenTTL.Duration())

	// base is untouched
	assert.Equal(t, 9000, base.Server.Port)
	assert.Equal(t, SummarySourceTable, base.Chat.SummarySource)
}

func TestLoadEffectiveConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
server:
  port: 8181
storage:
  driver: pebble
  path: /from/file
security:
  signing_keys: ["file-key-0000000000000"]
  admin_user_id: admin-1
chat:
  max_message_bytes: 8KB
reconcile:
  enabled: true
  cron: "0 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	flags := Flags{Config: path, DB: "/from/flag", Set: map[string]bool{"config": true, "db": true}}
	fileCfg, found, err := ParseConfigFile(flags)
	require.NoError(t, err)
	require.True(t, found)

	eff, err := LoadEffectiveConfig(flags, fileCfg, found, envMap(map[string]string{
		"CHATDESK_SERVER_PORT": "8282",
	}))
	require.NoError(t, err)

	assert.Equal(t, "defaults+config+env+flags", eff.Source)
	assert.Equal(t, "0.0.0.0:8282", eff.Addr)
	assert.Equal(t, "/from/flag", eff.Config.Storage.Path)
	assert.Equal(t, SizeBytes(8000), eff.Config.Chat.MaxMessageBytes)
	assert.Equal(t, "0 * * * *", eff.Config.Reconcile.Cron)
	require.NoError(t, ValidateConfig(eff))
}

func TestLoadEffectiveConfigMissingExplicitFile(t *testing.T) {
	flags := Flags{Config: "/does/not/exist.yaml", Set: map[string]bool{"config": true}}
	fileCfg, found, err := ParseConfigFile(flags)
	require.NoError(t, err)
	_, err = LoadEffectiveConfig(flags, fileCfg, found, envMap(nil))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, false},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, false},
		{"sqlite with dsn", func(c *Config) { c.Storage.Driver = "sqlite"; c.Storage.DSN = "chat.db" }, true},
		{"no signing keys", func(c *Config) { c.Security.SigningKeys = nil }, false},
		{"short signing key", func(c *Config) { c.Security.SigningKeys = []string{"short"} }, false},
		{"missing admin", func(c *Config) { c.Security.AdminUserID = "" }, false},
		{"admin with colon", func(c *Config) { c.Security.AdminUserID = "a:b" }, false},
		{"bad summary source", func(c *Config) { c.Chat.SummarySource = "cache" }, false},
		{"message larger than body", func(c *Config) { c.Chat.MaxMessageBytes = c.Server.MaxBodySize + 1 }, false},
		{"bad cron", func(c *Config) { c.Reconcile.Enabled = true; c.Reconcile.Cron = "every minute" }, false},
		{"bad cron but disabled", func(c *Config) { c.Reconcile.Cron = "every minute" }, true},
		{"sample rate out of range", func(c *Config) { r := 2.0; c.Telemetry.SampleRate = &r }, false},
		{"sample rate zero", func(c *Config) { r := 0.0; c.Telemetry.SampleRate = &r }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validBase()
			c.ApplyDefaults()
			tt.mutate(c)
			err := ValidateConfig(EffectiveConfigResult{Config: c})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTelemetrySampleRateZeroIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telemetry:\n  sample_rate: 0\n"), 0o600))

	c, err := LoadConfigFile(path)
	require.NoError(t, err)
	c.ApplyDefaults()
	require.NotNil(t, c.Telemetry.SampleRate)
	assert.Zero(t, c.TelemetrySampleRate())

	unset := &Config{}
	unset.ApplyDefaults()
	assert.Equal(t, 1.0, unset.TelemetrySampleRate())

	out, _ := ParseConfigEnvs(unset, envMap(map[string]string{"CHATDESK_TELEMETRY_SAMPLE_RATE": "0"}))
	assert.Zero(t, out.TelemetrySampleRate())
}
