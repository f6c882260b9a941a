// Package config loads the storage-layer configuration from a YAML file
// supplied by the host at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marwick-io/ledgerstore/dialect"
	"github.com/marwick-io/ledgerstore/migrate"
	"github.com/marwick-io/ledgerstore/pool"
)

// Duration decodes YAML strings like "30s" or "5m" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ---

type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Pool       PoolConfig       `yaml:"pool"`
	Health     HealthConfig     `yaml:"health"`
	Migrations MigrationsConfig `yaml:"migrations"`
	Log        LogConfig        `yaml:"log"`
}

// StoreConfig selects the backing store. Dialect "sqlite" uses Path;
// "mysql" uses the network parameters.
type StoreConfig struct {
	Dialect  string `yaml:"dialect"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type PoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	AcquireTimeout  Duration `yaml:"acquire_timeout"`
}

type HealthConfig struct {
	ProbeInterval      Duration `yaml:"probe_interval"`
	ProbeTimeout       Duration `yaml:"probe_timeout"`
	ReconnectAttempts  int      `yaml:"reconnect_attempts"`
	ReconnectBaseDelay Duration `yaml:"reconnect_base_delay"`
}

type MigrationsConfig struct {
	Table   string `yaml:"table"`
	AutoRun bool   `yaml:"auto_run"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"`
}

// Default returns the configuration used when the file leaves a section
// out.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Dialect: "sqlite",
			Path:    "ledgerstore.db",
		},
		Pool: PoolConfig{
			MaxOpenConns:   pool.DefaultMaxOpenConns,
			MaxIdleConns:   pool.DefaultMaxIdleConns,
			AcquireTimeout: Duration(pool.DefaultAcquireTimeout),
		},
		Health: HealthConfig{
			ProbeInterval:      Duration(pool.DefaultProbeInterval),
			ProbeTimeout:       Duration(pool.DefaultProbeTimeout),
			ReconnectAttempts:  pool.DefaultReconnectAttempts,
			ReconnectBaseDelay: Duration(pool.DefaultReconnectBaseDelay),
		},
		Migrations: MigrationsConfig{
			Table:   migrate.DefaultHistoryTable,
			AutoRun: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path and overlays it on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var (
	ErrMissingPath     = errors.New("store.path is required for the sqlite dialect")
	ErrMissingHost     = errors.New("store.host is required for the mysql dialect")
	ErrMissingDatabase = errors.New("store.database is required for the mysql dialect")
)

func (c Config) Validate() error {
	switch c.Store.Dialect {
	case "sqlite":
		if c.Store.Path == "" {
			return ErrMissingPath
		}
	case "mysql":
		if c.Store.Host == "" {
			return ErrMissingHost
		}
		if c.Store.Database == "" {
			return ErrMissingDatabase
		}
	default:
		return fmt.Errorf("%w: %q", dialect.ErrUnknownDialect, c.Store.Dialect)
	}

	if c.Pool.MaxOpenConns < 0 || c.Pool.MaxIdleConns < 0 {
		return errors.New("pool connection bounds must not be negative")
	}
	return nil
}

// DialectParams maps the store section onto dialect connection
// parameters.
func (c Config) DialectParams() dialect.Params {
	return dialect.Params{
		Host:     c.Store.Host,
		Port:     c.Store.Port,
		User:     c.Store.User,
		Password: c.Store.Password,
		Database: c.Store.Database,
		Path:     c.Store.Path,
	}
}

// PoolSettings maps the pool and health sections onto the pool manager
// configuration.
func (c Config) PoolSettings() pool.Config {
	return pool.Config{
		MaxOpenConns:       c.Pool.MaxOpenConns,
		MaxIdleConns:       c.Pool.MaxIdleConns,
		ConnMaxLifetime:    c.Pool.ConnMaxLifetime.Std(),
		AcquireTimeout:     c.Pool.AcquireTimeout.Std(),
		ProbeInterval:      c.Health.ProbeInterval.Std(),
		ProbeTimeout:       c.Health.ProbeTimeout.Std(),
		ReconnectAttempts:  c.Health.ReconnectAttempts,
		ReconnectBaseDelay: c.Health.ReconnectBaseDelay.Std(),
	}
}

// EngineSettings maps the migrations section onto the engine
// configuration.
func (c Config) EngineSettings() migrate.Config {
	return migrate.Config{
		HistoryTable: c.Migrations.Table,
		AutoRun:      c.Migrations.AutoRun,
	}
}
