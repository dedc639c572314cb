package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"feedstore/internal/bootstrap/logging"
	"feedstore/internal/errs"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	App   AppConfig   `mapstructure:"app"`
	Log   LogConfig   `mapstructure:"log"`
	Store StoreConfig `mapstructure:"store"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Backend     string        `mapstructure:"backend"`
	Path        string        `mapstructure:"path"`
	Codec       string        `mapstructure:"codec"`
	ReadOnly    bool          `mapstructure:"read_only"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// DefaultPath is used when store.path is empty.
func DefaultPath(backend string) string {
	if backend == BackendSQLite {
		return ".feedstore/feed.sqlite"
	}
	return ".feedstore/feed.store"
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FEEDSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("feedstore")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("store_path", cfg.Store.Path),
	)

	return cfg, nil
}

func normalize(cfg *Config) error {
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	switch cfg.Store.Backend {
	case BackendFile:
		switch strings.ToLower(strings.TrimSpace(cfg.Store.Codec)) {
		case "", "json", "toml":
		default:
			return fmt.Errorf("unsupported store.codec %q", cfg.Store.Codec)
		}
		if cfg.Store.ReadOnly {
			return errors.New("store.read_only is only supported by the sqlite backend")
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("unsupported store.backend %q", cfg.Store.Backend)
	}

	cfg.Store.Path = strings.TrimSpace(cfg.Store.Path)
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultPath(cfg.Store.Backend)
	}
	if cfg.Store.BusyTimeout < 0 {
		return errors.New("store.busy_timeout must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "feedstore")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "")
	v.SetDefault("store.codec", "json")
	v.SetDefault("store.read_only", false)
	v.SetDefault("store.busy_timeout", 5*time.Second)
}
