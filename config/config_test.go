package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwick-io/ledgerstore/config"
	"github.com/marwick-io/ledgerstore/dialect"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledgerstore.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
store:
  dialect: mysql
  host: db.internal
  port: 3307
  user: econ
  password: hunter2
  database: economy
pool:
  max_open_conns: 25
  max_idle_conns: 5
  conn_max_lifetime: 30m
  acquire_timeout: 2s
health:
  probe_interval: 15s
  probe_timeout: 3s
  reconnect_attempts: 5
  reconnect_base_delay: 10s
migrations:
  table: economy_schema_log
  auto_run: false
log:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Store.Dialect)
	assert.Equal(t, "db.internal", cfg.Store.Host)
	assert.Equal(t, 3307, cfg.Store.Port)
	assert.Equal(t, "economy", cfg.Store.Database)

	settings := cfg.PoolSettings()
	assert.Equal(t, 25, settings.MaxOpenConns)
	assert.Equal(t, 5, settings.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, settings.ConnMaxLifetime)
	assert.Equal(t, 2*time.Second, settings.AcquireTimeout)
	assert.Equal(t, 15*time.Second, settings.ProbeInterval)
	assert.Equal(t, 5, settings.ReconnectAttempts)
	assert.Equal(t, 10*time.Second, settings.ReconnectBaseDelay)

	engine := cfg.EngineSettings()
	assert.Equal(t, "economy_schema_log", engine.HistoryTable)
	assert.False(t, engine.AutoRun)

	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
store:
  dialect: sqlite
  path: /var/lib/economy/store.db
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/economy/store.db", cfg.Store.Path)
	assert.Equal(t, 30*time.Second, cfg.Health.ProbeInterval.Std())
	assert.Equal(t, 3, cfg.Health.ReconnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.Health.ReconnectBaseDelay.Std())
	assert.Equal(t, "schema_history", cfg.Migrations.Table)
	assert.True(t, cfg.Migrations.AutoRun)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadBadDuration(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
store:
  dialect: sqlite
  path: store.db
health:
  probe_interval: soon
`)

	_, err := config.Load(path)
	assert.Error(t, err)
}

var validateTests = []struct { // nolint:gochecknoglobals
	name     string
	mutate   func(*config.Config)
	expected error
}{
	/* s0 */ {
		name:   "test s0: default config is valid",
		mutate: func(c *config.Config) {},
	},
	/* e0 */ {
		name:     "test e0: sqlite without path",
		mutate:   func(c *config.Config) { c.Store.Path = "" },
		expected: config.ErrMissingPath,
	},
	/* e1 */ {
		name: "test e1: mysql without host",
		mutate: func(c *config.Config) {
			c.Store.Dialect = "mysql"
			c.Store.Database = "economy"
		},
		expected: config.ErrMissingHost,
	},
	/* e2 */ {
		name: "test e2: mysql without database",
		mutate: func(c *config.Config) {
			c.Store.Dialect = "mysql"
			c.Store.Host = "db.internal"
		},
		expected: config.ErrMissingDatabase,
	},
	/* e3 */ {
		name:     "test e3: unknown dialect",
		mutate:   func(c *config.Config) { c.Store.Dialect = "oracle" },
		expected: dialect.ErrUnknownDialect,
	},
}

func TestValidate(t *testing.T) {
	t.Parallel()

	for _, test := range validateTests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			test.mutate(&cfg)

			err := cfg.Validate()
			if test.expected == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, test.expected)
			}
		})
	}
}
