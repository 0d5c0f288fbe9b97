package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"chatdesk/pkg/config"
	"chatdesk/pkg/logger"
)

// Flags holds the global flag values shared by every subcommand.
type Flags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	DB         string
	Driver     string
	DSN        string
	Addr       string
}

// effective layers defaults, config file, env and flags, then starts the logger.
func (f *Flags) effective(c *cli.Command) (config.EffectiveConfigResult, error) {
	cf := config.Flags{
		Addr:   f.Addr,
		DB:     f.DB,
		Driver: f.Driver,
		DSN:    f.DSN,
		Config: f.ConfigPath,
		Set: map[string]bool{
			"addr":   c.IsSet("addr"),
			"db":     c.IsSet("db"),
			"driver": c.IsSet("driver"),
			"dsn":    c.IsSet("dsn"),
			"config": c.IsSet("config"),
		},
	}

	fileCfg, fileExists, err := config.ParseConfigFile(cf)
	if err != nil {
		return config.EffectiveConfigResult{}, fmt.Errorf("load config file: %w", err)
	}
	eff, err := config.LoadEffectiveConfig(cf, fileCfg, fileExists, os.Getenv)
	if err != nil {
		return config.EffectiveConfigResult{}, fmt.Errorf("build effective config: %w", err)
	}

	if c.IsSet("log-level") {
		eff.Config.Logging.Level = f.LogLevel
	}
	if c.IsSet("log-format") {
		eff.Config.Logging.Format = f.LogFormat
	}
	if err := logger.Init(logger.Options{
		Level:      eff.Config.Logging.Level,
		Format:     eff.Config.Logging.Format,
		OutputPath: eff.Config.Logging.Output,
	}); err != nil {
		return config.EffectiveConfigResult{}, fmt.Errorf("init logger: %w", err)
	}

	config.SetConfig(eff.Config)
	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr, "driver", eff.Config.Storage.Driver)
	return eff, nil
}
