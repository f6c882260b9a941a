package dialect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwick-io/ledgerstore/dialect"
)

func TestNew(t *testing.T) {
	t.Parallel()

	mysql, err := dialect.New("mysql")
	require.NoError(t, err)
	assert.Equal(t, "mysql", mysql.DriverName())

	sqlite, err := dialect.New("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", sqlite.DriverName())

	_, err = dialect.New("oracle")
	assert.ErrorIs(t, err, dialect.ErrUnknownDialect)
}

func TestMySQLDSN(t *testing.T) {
	t.Parallel()

	dsn, err := dialect.MySQL{}.DSN(dialect.Params{
		Host:     "db.internal",
		Port:     3307,
		User:     "econ",
		Password: "hunter2",
		Database: "economy",
	})
	require.NoError(t, err)

	assert.Contains(t, dsn, "db.internal:3307")
	assert.Contains(t, dsn, "econ:hunter2@")
	assert.Contains(t, dsn, "/economy")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "multiStatements=true")
}

func TestMySQLDSNDefaultPort(t *testing.T) {
	t.Parallel()

	dsn, err := dialect.MySQL{}.DSN(dialect.Params{Host: "localhost", Database: "economy"})
	require.NoError(t, err)
	assert.Contains(t, dsn, "localhost:3306")
}

func TestMySQLDSNErrors(t *testing.T) {
	t.Parallel()

	_, err := dialect.MySQL{}.DSN(dialect.Params{Database: "economy"})
	assert.Error(t, err)

	_, err = dialect.MySQL{}.DSN(dialect.Params{Host: "localhost"})
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	t.Parallel()

	dsn, err := dialect.SQLite{}.DSN(dialect.Params{Path: "/var/lib/economy/store.db"})
	require.NoError(t, err)
	assert.Contains(t, dsn, "file:/var/lib/economy/store.db")
	assert.Contains(t, dsn, "busy_timeout")

	_, err = dialect.SQLite{}.DSN(dialect.Params{})
	assert.Error(t, err)
}

func TestQuoteIdentifier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "`schema_history`", dialect.MySQL{}.QuoteIdentifier("schema_history"))
	assert.Equal(t, "`weird``name`", dialect.MySQL{}.QuoteIdentifier("weird`name"))

	assert.Equal(t, `"schema_history"`, dialect.SQLite{}.QuoteIdentifier("schema_history"))
	assert.Equal(t, `"weird""name"`, dialect.SQLite{}.QuoteIdentifier(`weird"name`))
}

func TestCreateHistoryTableSQL(t *testing.T) {
	t.Parallel()

	for _, d := range []dialect.Dialect{dialect.MySQL{}, dialect.SQLite{}} {
		ddl := d.CreateHistoryTableSQL("schema_history")
		assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS")
		assert.Contains(t, ddl, "schema_history")
		for _, column := range []string{"version", "description", "checksum", "execution_time", "success", "executed_at"} {
			assert.Contains(t, ddl, column)
		}
	}
}
