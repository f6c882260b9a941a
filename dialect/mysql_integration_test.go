package dialect_test

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/marwick-io/ledgerstore/builtin"
	"github.com/marwick-io/ledgerstore/dialect"
	"github.com/marwick-io/ledgerstore/migrate"
	"github.com/marwick-io/ledgerstore/migration"
	"github.com/marwick-io/ledgerstore/pool"
)

// RDBMS versions to test against. The builtin index migration relies on
// CREATE INDEX IF NOT EXISTS, so the networked variant is exercised
// against MariaDB.
var mysqlVersions = []string{ // nolint:gochecknoglobals
	"mariadb:10.6",
}

func TestBuiltinSetAgainstMySQL(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping integration test for dialect/mysql")
	}

	for _, version := range mysqlVersions {
		version := version
		t.Run(version, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			rootPassword := randomPassword(t)

			container := makeMySQLContainer(t, ctx, version, rootPassword)
			defer func() {
				require.NoError(t, container.Terminate(ctx))
			}()

			host, err := container.Host(ctx)
			require.NoError(t, err)
			port, err := container.MappedPort(ctx, "3306")
			require.NoError(t, err)

			params := dialect.Params{
				Host:     host,
				Port:     port.Int(),
				User:     "root",
				Password: rootPassword,
				Database: "economy",
			}
			createDatabase(t, ctx, params)

			d := dialect.MySQL{}
			dsn, err := d.DSN(params)
			require.NoError(t, err)

			mgr := pool.NewManager(d, dsn, pool.Config{ProbeInterval: time.Hour}, zap.NewNop())
			require.NoError(t, mgr.Initialize(ctx))
			defer func() { _ = mgr.Shutdown() }()

			engine, err := migrate.New(mgr, d, builtin.Set(d), migrate.Config{AutoRun: true}, zap.NewNop())
			require.NoError(t, err)
			require.NoError(t, engine.Initialize(ctx))

			current, err := engine.CurrentVersion(ctx)
			require.NoError(t, err)
			assert.Equal(t, migration.Version("3"), current)

			entries, err := engine.History(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 3)
			for _, entry := range entries {
				assert.True(t, entry.Success)
			}

			rs, err := mgr.ExecuteQuery(ctx, "SELECT display_name FROM accounts ORDER BY id")
			require.NoError(t, err)
			require.Equal(t, 2, rs.Len())

			// Round trip: undo everything.
			require.NoError(t, engine.RollbackTo(ctx, ""))

			rs, err = mgr.ExecuteQuery(ctx,
				"SELECT table_name FROM information_schema.tables WHERE table_schema = 'economy' AND table_name = 'accounts'")
			require.NoError(t, err)
			assert.Equal(t, 0, rs.Len())
		})
	}
}

func makeMySQLContainer(t *testing.T, ctx context.Context, version, rootPassword string) testcontainers.Container {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        version,
		ExposedPorts: []string{"3306/tcp"},
		WaitingFor:   wait.ForListeningPort("3306"),
		Env: map[string]string{
			"MARIADB_ROOT_PASSWORD": rootPassword,
		},
		Cmd: []string{
			"--table_definition_cache=10",
			"--performance_schema=0",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	return container
}

// createDatabase waits out the server warm-up; the listening port can be
// up before the server accepts credentials.
func createDatabase(t *testing.T, ctx context.Context, params dialect.Params) {
	t.Helper()

	dsn := fmt.Sprintf("root:%s@tcp(%s:%d)/mysql", params.Password, params.Host, params.Port)
	conn, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	defer conn.Close()

	deadline := time.Now().Add(60 * time.Second)
	for {
		_, err = conn.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS economy")
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("database never became ready: %s", err)
		}
		time.Sleep(time.Second)
	}
}

func randomPassword(t *testing.T) string {
	t.Helper()

	const length = 8
	b := make([]byte, length)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return fmt.Sprintf("%x", b)[:length]
}
