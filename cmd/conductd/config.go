package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conducthq/conduct"
	"github.com/conducthq/conduct/store"
	"github.com/conducthq/conduct/store/memory"

	bunstore "github.com/conducthq/conduct/store/bun"
)

// fileConfig maps the YAML config file.
type fileConfig struct {
	Server struct {
		Addr           string `yaml:"addr"`
		IdentityHeader string `yaml:"identity_header"`
	} `yaml:"server"`

	Store struct {
		Driver string `yaml:"driver"` // memory, sqlite, postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`

	Engine struct {
		GlobalHeavySlots  int           `yaml:"global_heavy_slots"`
		PerUserHeavySlots int           `yaml:"per_user_heavy_slots"`
		SubmitRate        float64       `yaml:"submit_rate"`
		SubmitBurst       int           `yaml:"submit_burst"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"engine"`

	// Quota maps command name to the monthly per-user run limit.
	// Unlisted commands are unlimited; a zero limit disables a command.
	Quota map[string]int `yaml:"quota"`

	Log struct {
		Level string `yaml:"level"` // debug, info, warn, error
	} `yaml:"log"`
}

func defaultFileConfig() *fileConfig {
	cfg := &fileConfig{}
	cfg.Server.Addr = ":8080"
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = "file:conduct.db"

	defaults := conduct.DefaultConfig()
	cfg.Engine.GlobalHeavySlots = defaults.GlobalHeavySlots
	cfg.Engine.PerUserHeavySlots = defaults.PerUserHeavySlots
	cfg.Engine.ShutdownTimeout = defaults.ShutdownTimeout
	cfg.Log.Level = "info"
	return cfg
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := defaultFileConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (cfg *fileConfig) engineConfig() conduct.Config {
	return conduct.Config{
		GlobalHeavySlots:  cfg.Engine.GlobalHeavySlots,
		PerUserHeavySlots: cfg.Engine.PerUserHeavySlots,
		SubmitRate:        cfg.Engine.SubmitRate,
		SubmitBurst:       cfg.Engine.SubmitBurst,
		ShutdownTimeout:   cfg.Engine.ShutdownTimeout,
	}
}

func (cfg *fileConfig) openStore(logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		return bunstore.OpenSQLite(cfg.Store.DSN, bunstore.WithLogger(logger))
	case "postgres":
		return bunstore.OpenPostgres(cfg.Store.DSN, bunstore.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (cfg *fileConfig) newLogger() *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
