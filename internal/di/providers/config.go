package providers

import (
	"github.com/samber/do/v2"

	"github.com/tickitapp/tickit-sync/internal/config"
	"github.com/tickitapp/tickit-sync/internal/logger"
)

// ConfigPath is the resolved location of the config file, whether or not it exists.
type ConfigPath string

// ProvideConfigPath resolves the config file location from the --config flag.
func ProvideConfigPath(i do.Injector) (ConfigPath, error) {
	flags := do.MustInvoke[Flags](i)

	path, err := config.ResolvePath(flags.ConfigPath)
	if err != nil {
		return "", err
	}
	return ConfigPath(path), nil
}

// ProvideConfig provides the application configuration with flag overrides applied.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	flags := do.MustInvoke[Flags](i)
	path := do.MustInvoke[ConfigPath](i)

	cfg, _, err := config.Load(string(path))
	if err != nil {
		return nil, err
	}

	if flags.Port != 0 {
		cfg.Server.Port = flags.Port
	}
	if flags.Bind != "" {
		cfg.Server.Bind = flags.Bind
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoggerHandle wraps the logger so its log file is closed on shutdown.
type LoggerHandle struct {
	*logger.Logger
}

// Shutdown implements do.Shutdownable.
func (h *LoggerHandle) Shutdown() error {
	return h.Close()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*LoggerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	path := do.MustInvoke[ConfigPath](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
		File: logger.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   true,
		},
	})

	log.Info("Starting tickit-sync",
		"environment", cfg.App.Environment,
		"log_level", cfg.Log.Level,
		"config", string(path),
		"database", cfg.Database.Path,
		"driver", cfg.Database.Driver,
	)

	return &LoggerHandle{Logger: log}, nil
}
