package config

import (
	"fmt"
	"strings"

	"github.com/adhocore/gronx"

	"chatdesk/pkg/store/keys"
)

const minSigningKeyLen = 16

// fail fast on critical errors; expects defaults to be applied
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}

	switch cfg.Storage.Driver {
	case "pebble":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage path is empty: set --db flag, CHATDESK_STORAGE_PATH env, or storage.path in config")
		}
	case "sqlite", "postgres":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", cfg.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage.driver %q: expected pebble, sqlite or postgres", cfg.Storage.Driver)
	}

	if len(cfg.Security.SigningKeys) == 0 {
		return fmt.Errorf("no signing keys: set security.signing_keys or CHATDESK_SIGNING_KEYS")
	}
	for i, k := range cfg.Security.SigningKeys {
		if len(k) < minSigningKeyLen {
			return fmt.Errorf("security.signing_keys[%d] is shorter than %d bytes", i, minSigningKeyLen)
		}
	}
	if err := keys.ValidateIdentity(cfg.Security.AdminUserID); err != nil {
		return fmt.Errorf("security.admin_user_id: %w", err)
	}

	if cfg.Chat.MaxMessageBytes <= 0 {
		return fmt.Errorf("chat.max_message_bytes must be positive")
	}
	if cfg.Chat.MaxMessageBytes > cfg.Server.MaxBodySize {
		return fmt.Errorf("chat.max_message_bytes (%s) exceeds server.max_body_size (%s)", cfg.Chat.MaxMessageBytes, cfg.Server.MaxBodySize)
	}
	switch cfg.Chat.SummarySource {
	case SummarySourceTable, SummarySourceScan:
	default:
		return fmt.Errorf("invalid chat.summary_source %q: expected table or scan", cfg.Chat.SummarySource)
	}

	if r := cfg.TelemetrySampleRate(); r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0,1]")
	}

	if cfg.Reconcile.Enabled {
		if !gronx.IsValid(cfg.Reconcile.Cron) {
			return fmt.Errorf("invalid reconcile.cron: %q is not a valid cron expression", cfg.Reconcile.Cron)
		}
	}
	return nil
}
