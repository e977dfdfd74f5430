// Package migrate implements versioned ClickHouse schema migrations. It
// discovers migration files in a directory, reconciles them against a ledger
// table persisted on the server, and applies or reverts them in strict
// version order.
//
// Concurrent invocations are not guarded against: the ledger provides no
// locking primitive, so running two migrations against the same server at the
// same time is the operator's responsibility to avoid.
package migrate

import (
	"fmt"
	"strconv"
	"time"
)

// Version is the ordering key of a migration, parsed from the 4-digit
// zero-padded prefix of its file name.
type Version uint32

const (
	versionDigits         = 4
	maxVersion    Version = 9999
)

// ParseVersion parses a migration version from its fixed-width file name
// prefix. Prefixes that are not exactly 4 digits are rejected.
func ParseVersion(s string) (Version, error) {
	if len(s) != versionDigits {
		return 0, fmt.Errorf("%w: version prefix %q must be exactly %d digits",
			ErrMalformedName, s, versionDigits)
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid version prefix %q", ErrMalformedName, s)
	}

	return Version(v), nil
}

// String formats the version back to its zero-padded file name prefix.
func (v Version) String() string {
	return fmt.Sprintf("%0*d", versionDigits, uint32(v))
}

// Mode determines the payloads a migration carries.
type Mode uint8

const (
	// Simple migrations have a single SQL payload and can never be reverted.
	Simple Mode = iota
	// Reversible migrations have separate up and down payloads.
	Reversible
)

func (m Mode) String() string {
	switch m {
	case Reversible:
		return "reversible"
	default:
		return "simple"
	}
}

// Direction of a migration run.
type Direction rune

const (
	// Up applies a migration.
	Up Direction = 'u'
	// Down reverts a migration.
	Down Direction = 'd'
)

// Status of a migration version after reconciling local files against the
// ledger.
type Status uint8

const (
	// StatusPending means the migration hasn't been applied yet, or its
	// execution was started but never recorded as finished.
	StatusPending Status = iota
	// StatusApplied means all of the migration's statements executed
	// successfully.
	StatusApplied
	// StatusMissing means the ledger references a version with no
	// corresponding local file.
	StatusMissing
	// StatusConflict means the ledger row and the local file disagree about
	// the migration's name. Conflicting versions are reported but excluded
	// from both up and down plans.
	StatusConflict
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusMissing:
		return "missing"
	case StatusConflict:
		return "conflict"
	default:
		return "pending"
	}
}

// Migration describes a single migration discovered on disk.
type Migration struct {
	Version Version
	Name    string
	Mode    Mode
}

// Filename returns the migration's file name for the given direction.
func (m Migration) Filename(dir Direction) string {
	if m.Mode == Reversible {
		suffix := "up"
		if dir == Down {
			suffix = "down"
		}
		return fmt.Sprintf("%s_%s.%s.sql", m.Version, m.Name, suffix)
	}
	return fmt.Sprintf("%s_%s.sql", m.Version, m.Name)
}

// Entry is a single ledger row.
type Entry struct {
	Version   Version
	Name      string
	Status    Status
	AppliedAt time.Time
}

// State is the reconciled view of one migration version, merging local file
// information with the ledger.
type State struct {
	Migration
	Status    Status
	AppliedAt time.Time
}

// Summary is the full reconciled status view returned by Info.
type Summary struct {
	Migrations []State
	Pending    uint
	Applied    uint
	Missing    uint
	Conflicts  uint
}
