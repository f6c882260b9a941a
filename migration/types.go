package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Version identifies one migration. Versions are dotted sequences of
// integers ("1", "2.1", "10.0.3") and compare numerically per segment, so
// that "10" sorts after "2".
type Version string

// Compare returns -1, 0 or 1 ordering v against other. Segments are
// compared as integers; a missing segment counts as zero, so "1" == "1.0".
// Non-numeric segments fall back to lexicographic comparison.
func (v Version) Compare(other Version) int {
	left := strings.Split(string(v), ".")
	right := strings.Split(string(other), ".")

	n := len(left)
	if len(right) > n {
		n = len(right)
	}

	for i := 0; i < n; i++ {
		ls, rs := "0", "0"
		if i < len(left) {
			ls = left[i]
		}
		if i < len(right) {
			rs = right[i]
		}

		ln, lerr := strconv.ParseInt(ls, 10, 64)
		rn, rerr := strconv.ParseInt(rs, 10, 64)

		if lerr != nil || rerr != nil {
			if c := strings.Compare(ls, rs); c != 0 {
				return c
			}
			continue
		}

		switch {
		case ln < rn:
			return -1
		case ln > rn:
			return 1
		}
	}

	return 0
}

func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// ---

// Migration is one versioned schema change. Instances are built once at
// startup and never mutated afterwards.
type Migration struct {
	Version     Version
	Description string
	Up          string // forward script, required
	Down        string // reverse script, empty when the change cannot be undone
	Priority    int    // ordering tiebreak, lower runs first
	Baseline    bool   // marks pre-existing schema instead of creating it
}

var (
	ErrEmptyVersion     = errors.New("migration has an empty version")
	ErrEmptyDescription = errors.New("migration has an empty description")
	ErrEmptyUpScript    = errors.New("migration has an empty forward script")
	ErrDuplicateVersion = errors.New("migration version is already registered")
)

// Validate checks the structural preconditions for applying m.
func (m Migration) Validate() error {
	if strings.TrimSpace(string(m.Version)) == "" {
		return ErrEmptyVersion
	}
	if strings.TrimSpace(m.Description) == "" {
		return ErrEmptyDescription
	}
	if strings.TrimSpace(m.Up) == "" {
		return ErrEmptyUpScript
	}
	return nil
}

// Checksum hashes the forward script text for the audit trail.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.Up))
	return hex.EncodeToString(sum[:])
}

// CanUndo reports whether m carries a reverse script.
func (m Migration) CanUndo() bool {
	return strings.TrimSpace(m.Down) != ""
}

// ---

type Status uint

const (
	Pending Status = iota
	Applied
	Failed
)

// ---

// HistoryEntry is one persisted row of the schema-history table.
type HistoryEntry struct {
	Version       Version
	Description   string
	Checksum      string
	ExecutionTime time.Duration
	Success       bool
	ExecutedAt    time.Time
}

// State pairs a registered migration with what the history table knows
// about it.
type State struct {
	Migration
	Status    Status
	AppliedAt time.Time
}

// ---

// SortSet orders migrations in apply order: priority ascending, then
// version ascending with the numeric comparator.
func SortSet(set []Migration) {
	sort.SliceStable(set, func(i, j int) bool {
		if set[i].Priority != set[j].Priority {
			return set[i].Priority < set[j].Priority
		}
		return set[i].Version.Less(set[j].Version)
	})
}
