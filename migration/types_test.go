package migration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marwick-io/ledgerstore/migration"
)

var compareTests = []struct { // nolint:gochecknoglobals
	name     string
	left     migration.Version
	right    migration.Version
	expected int
}{
	/* s0 */ {name: "test s0: equal single segments", left: "1", right: "1", expected: 0},
	/* s1 */ {name: "test s1: less single segments", left: "1", right: "2", expected: -1},
	/* s2 */ {name: "test s2: greater single segments", left: "3", right: "2", expected: 1},
	/* s3 */ {name: "test s3: numeric not lexicographic", left: "10", right: "2", expected: 1},
	/* s4 */ {name: "test s4: dotted segments", left: "1.2", right: "1.10", expected: -1},
	/* s5 */ {name: "test s5: missing segment counts as zero", left: "1", right: "1.0", expected: 0},
	/* s6 */ {name: "test s6: longer wins on extra nonzero segment", left: "1.0.1", right: "1", expected: 1},
	/* s7 */ {name: "test s7: non-numeric falls back to lexicographic", left: "1.a", right: "1.b", expected: -1},
}

func TestVersionCompare(t *testing.T) {
	t.Parallel()

	for _, test := range compareTests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.expected, test.left.Compare(test.right))
			assert.Equal(t, -test.expected, test.right.Compare(test.left))
		})
	}
}

func TestSortSet(t *testing.T) {
	t.Parallel()

	set := []migration.Migration{
		{Version: "3", Priority: 3, Description: "third", Up: "SELECT 3"},
		{Version: "1", Priority: 1, Description: "first", Up: "SELECT 1"},
		{Version: "2", Priority: 2, Description: "second", Up: "SELECT 2"},
	}

	migration.SortSet(set)

	assert.Equal(t, migration.Version("1"), set[0].Version)
	assert.Equal(t, migration.Version("2"), set[1].Version)
	assert.Equal(t, migration.Version("3"), set[2].Version)
}

func TestSortSetPriorityBeforeVersion(t *testing.T) {
	t.Parallel()

	set := []migration.Migration{
		{Version: "1", Priority: 2},
		{Version: "10", Priority: 1},
		{Version: "2", Priority: 1},
	}

	migration.SortSet(set)

	assert.Equal(t, migration.Version("2"), set[0].Version)
	assert.Equal(t, migration.Version("10"), set[1].Version)
	assert.Equal(t, migration.Version("1"), set[2].Version)
}

var validateTests = []struct { // nolint:gochecknoglobals
	name      string
	migration migration.Migration
	expected  error
}{
	/* s0 */ {
		name:      "test s0: valid migration",
		migration: migration.Migration{Version: "1", Description: "initial", Up: "CREATE TABLE t (id INTEGER)"},
		expected:  nil,
	},
	/* e0 */ {
		name:      "test e0: empty version",
		migration: migration.Migration{Description: "initial", Up: "CREATE TABLE t (id INTEGER)"},
		expected:  migration.ErrEmptyVersion,
	},
	/* e1 */ {
		name:      "test e1: empty description",
		migration: migration.Migration{Version: "1", Up: "CREATE TABLE t (id INTEGER)"},
		expected:  migration.ErrEmptyDescription,
	},
	/* e2 */ {
		name:      "test e2: empty forward script",
		migration: migration.Migration{Version: "1", Description: "initial"},
		expected:  migration.ErrEmptyUpScript,
	},
	/* e3 */ {
		name:      "test e3: whitespace forward script",
		migration: migration.Migration{Version: "1", Description: "initial", Up: "  \n\t "},
		expected:  migration.ErrEmptyUpScript,
	},
}

func TestMigrationValidate(t *testing.T) {
	t.Parallel()

	for _, test := range validateTests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			err := test.migration.Validate()
			if test.expected == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, test.expected)
			}
		})
	}
}

func TestChecksum(t *testing.T) {
	t.Parallel()

	a := migration.Migration{Version: "1", Description: "a", Up: "CREATE TABLE t (id INTEGER)"}
	b := migration.Migration{Version: "1", Description: "a", Up: "CREATE TABLE t (id INTEGER)"}
	c := migration.Migration{Version: "1", Description: "a", Up: "CREATE TABLE u (id INTEGER)"}

	assert.Equal(t, a.Checksum(), b.Checksum())
	assert.NotEqual(t, a.Checksum(), c.Checksum())
	assert.Len(t, a.Checksum(), 64)
}

func TestCanUndo(t *testing.T) {
	t.Parallel()

	assert.True(t, migration.Migration{Down: "DROP TABLE t"}.CanUndo())
	assert.False(t, migration.Migration{}.CanUndo())
	assert.False(t, migration.Migration{Down: "   "}.CanUndo())
}
