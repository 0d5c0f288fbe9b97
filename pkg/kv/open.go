package kv

import (
	"fmt"

	"chatdesk/pkg/config"
	"chatdesk/pkg/logger"
)

// Open returns the Store selected by storage.driver.
func Open(cfg config.StorageConfig, syncWrites bool) (Store, error) {
	switch cfg.Driver {
	case "", "pebble":
		s, err := OpenPebble(cfg.Path, syncWrites)
		if err != nil {
			return nil, err
		}
		logger.Info("store_opened", "driver", "pebble", "path", cfg.Path, "sync", syncWrites)
		return s, nil
	case "sqlite", "postgres":
		s, err := OpenGorm(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		logger.Info("store_opened", "driver", cfg.Driver)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
