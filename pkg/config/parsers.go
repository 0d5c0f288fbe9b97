package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "CHATDESK_"

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Driver string
	DSN    string
	Config string
	Set    map[string]bool
}

// holds the results of applying environment overrides
type EnvResult struct {
	EnvUsed bool
	Keys    []string
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	Source string // e.g. "defaults+config+env+flags"
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	if cfgPath == "" {
		return &Config{}, false, nil
	}
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// reads CHATDESK_* variables through lookup and overlays them on a copy of base
func ParseConfigEnvs(base *Config, lookup func(string) string) (*Config, EnvResult) {
	if lookup == nil {
		lookup = os.Getenv
	}
	names := []string{
		"ADDR", "SERVER_ADDRESS", "SERVER_PORT", "MAX_BODY_SIZE",
		"STORAGE_DRIVER", "STORAGE_PATH", "DB_PATH", "STORAGE_DSN", "STORAGE_SYNC",
		"CORS_ORIGINS", "RATE_RPS", "RATE_BURST", "IP_WHITELIST",
		"API_BACKEND_KEYS", "SIGNING_KEYS", "TOKEN_TTL", "TOKEN_ISSUER", "ADMIN_USER_ID",
		"MAX_MESSAGE_BYTES", "SUMMARY_SOURCE", "LEGACY_VISIBILITY", "ADMIN_DISPLAY_NAME",
		"RECONCILE_ENABLED", "RECONCILE_CRON", "RECONCILE_ON_START",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT",
		"TELEMETRY_SAMPLE_RATE", "TELEMETRY_SLOW_THRESHOLD",
	}
	envs := make(map[string]string, len(names))
	var res EnvResult
	for _, n := range names {
		if v := strings.TrimSpace(lookup(envPrefix + n)); v != "" {
			envs[n] = v
			res.Keys = append(res.Keys, envPrefix+n)
		}
	}
	res.EnvUsed = len(res.Keys) > 0

	out := &Config{}
	if base != nil {
		*out = *base
	}

	// parse helpers
	parseList := func(v string) []string {
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}
	parseBool := func(v string) bool {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		default:
			return false
		}
	}

	if v := envs["ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			out.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				out.Server.Port = pi
			}
		} else {
			out.Server.Address = v
		}
	} else {
		if host := envs["SERVER_ADDRESS"]; host != "" {
			out.Server.Address = host
		}
		if port := envs["SERVER_PORT"]; port != "" {
			if pi, err := strconv.Atoi(port); err == nil {
				out.Server.Port = pi
			}
		}
	}
	if v := envs["MAX_BODY_SIZE"]; v != "" {
		if s, err := parseSize(v); err == nil {
			out.Server.MaxBodySize = s
		}
	}

	if v := envs["STORAGE_DRIVER"]; v != "" {
		out.Storage.Driver = strings.ToLower(v)
	}
	if v := envs["STORAGE_PATH"]; v != "" {
		out.Storage.Path = v
	} else if v := envs["DB_PATH"]; v != "" {
		out.Storage.Path = v
	}
	if v := envs["STORAGE_DSN"]; v != "" {
		out.Storage.DSN = v
	}
	if v := envs["STORAGE_SYNC"]; v != "" {
		b := parseBool(v)
		out.Storage.Sync = &b
	}

	if v := envs["CORS_ORIGINS"]; v != "" {
		out.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := envs["RATE_RPS"]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out.Security.RateLimit.RPS = f
		}
	}
	if v := envs["RATE_BURST"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			out.Security.RateLimit.Burst = n
		}
	}
	if v := envs["IP_WHITELIST"]; v != "" {
		out.Security.IPWhitelist = parseList(v)
	}
	if v := envs["API_BACKEND_KEYS"]; v != "" {
		out.Security.APIKeys.Backend = parseList(v)
	}
	if v := envs["SIGNING_KEYS"]; v != "" {
		out.Security.SigningKeys = parseList(v)
	}
	if v := envs["TOKEN_TTL"]; v != "" {
		if d, err := parseDuration(v); err == nil {
			out.Security.TokenTTL = d
		}
	}
	if v := envs["TOKEN_ISSUER"]; v != "" {
		out.Security.Issuer = v
	}
	if v := envs["ADMIN_USER_ID"]; v != "" {
		out.Security.AdminUserID = v
	}

	if v := envs["MAX_MESSAGE_BYTES"]; v != "" {
		if s, err := parseSize(v); err == nil {
			out.Chat.MaxMessageBytes = s
		}
	}
	if v := envs["SUMMARY_SOURCE"]; v != "" {
		out.Chat.SummarySource = strings.ToLower(v)
	}
	if v := envs["LEGACY_VISIBILITY"]; v != "" {
		out.Chat.LegacyVisibility = parseBool(v)
	}
	if v := envs["ADMIN_DISPLAY_NAME"]; v != "" {
		out.Chat.AdminDisplayName = v
	}

	if v := envs["RECONCILE_ENABLED"]; v != "" {
		out.Reconcile.Enabled = parseBool(v)
	}
	if v := envs["RECONCILE_CRON"]; v != "" {
		out.Reconcile.Cron = v
	}
	if v := envs["RECONCILE_ON_START"]; v != "" {
		out.Reconcile.OnStart = parseBool(v)
	}

	if v := envs["LOG_LEVEL"]; v != "" {
		out.Logging.Level = v
	}
	if v := envs["LOG_FORMAT"]; v != "" {
		out.Logging.Format = v
	}
	if v := envs["LOG_OUTPUT"]; v != "" {
		out.Logging.Output = v
	}

	if v := envs["TELEMETRY_SAMPLE_RATE"]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out.Telemetry.SampleRate = &f
		}
	}
	if v := envs["TELEMETRY_SLOW_THRESHOLD"]; v != "" {
		if d, err := parseDuration(v); err == nil {
			out.Telemetry.SlowThreshold = d
		}
	}
	return out, res
}

// layers defaults < config file < env < flags and returns the effective config.
// an explicitly requested config file that does not exist is an error.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, lookup func(string) string) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	sources := []string{"defaults"}

	if flags.Set["config"] && !fileExists {
		return res, fmt.Errorf("config file %s not found", flags.Config)
	}
	base := &Config{}
	if fileExists && fileCfg != nil {
		base = fileCfg
		sources = append(sources, "config")
	}

	cfg, envRes := ParseConfigEnvs(base, lookup)
	if envRes.EnvUsed {
		sources = append(sources, "env")
	}

	flagsUsed := false
	if flags.Set["addr"] {
		if h, _, err := net.SplitHostPort(flags.Addr); err == nil {
			cfg.Server.Address = h
			cfg.Server.Port = parsePortFromAddr(flags.Addr)
		} else {
			return res, fmt.Errorf("invalid --addr %q: %w", flags.Addr, err)
		}
		flagsUsed = true
	}
	if flags.Set["db"] {
		cfg.Storage.Path = flags.DB
		flagsUsed = true
	}
	if flags.Set["driver"] {
		cfg.Storage.Driver = strings.ToLower(flags.Driver)
		flagsUsed = true
	}
	if flags.Set["dsn"] {
		cfg.Storage.DSN = flags.DSN
		flagsUsed = true
	}
	if flagsUsed {
		sources = append(sources, "flags")
	}

	cfg.ApplyDefaults()
	res.Config = cfg
	res.Addr = cfg.Addr()
	res.Source = strings.Join(sources, "+")
	return res, nil
}

// extracts port integer from host:port string
func parsePortFromAddr(a string) int {
	if a == "" {
		return 0
	}
	if _, p, err := net.SplitHostPort(a); err == nil {
		if pi, err := strconv.Atoi(p); err == nil {
			return pi
		}
	}
	return 0
}
