package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chutils/chutils/ch"
)

// DefaultTable is the default name of the migration ledger table.
const DefaultTable = "schema_migrations"

// ledgerShape is the expected ledger column layout, in order. Only the type
// prefix is compared so that Enum8 value lists and DateTime precision don't
// have to match exactly.
var ledgerShape = []struct {
	name    string
	typePfx string
}{
	{"version", "UInt32"},
	{"name", "String"},
	{"status", "Enum8"},
	{"applied_at", "DateTime"},
}

// Ledger is the persisted record of migration state, one row per version,
// stored in a table on the target server.
type Ledger struct {
	db      ch.Querier
	table   string
	timeNow func() time.Time
}

// NewLedger creates a ledger backed by the given table. An empty table name
// selects DefaultTable.
func NewLedger(db ch.Querier, table string, timeNow func() time.Time) *Ledger {
	if table == "" {
		table = DefaultTable
	}
	if timeNow == nil {
		timeNow = time.Now
	}
	return &Ledger{db: db, table: table, timeNow: timeNow}
}

// Table returns the ledger table name.
func (l *Ledger) Table() string {
	return l.table
}

// Ensure creates the ledger table if it doesn't exist, and verifies that the
// existing table has a compatible shape. It is safe to call repeatedly.
func (l *Ledger) Ensure(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	version UInt32,
	name String,
	status Enum8('pending' = 0, 'applied' = 1),
	applied_at DateTime DEFAULT now()
)
ENGINE = MergeTree
ORDER BY (applied_at, version)`, ch.QuoteIdentifier(l.table))

	if err := l.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed creating ledger table %q: %w", l.table, err)
	}

	return l.verifyShape(ctx)
}

func (l *Ledger) verifyShape(ctx context.Context) error {
	rows, err := l.db.Query(ctx, fmt.Sprintf(
		`SELECT name, type FROM system.columns
WHERE database = currentDatabase() AND table = %s
ORDER BY position`, ch.QuoteString(l.table)))
	if err != nil {
		return fmt.Errorf("failed reading ledger table shape: %w", err)
	}
	defer func() { _ = rows.Close() }()

	i := 0
	for rows.Next() {
		var name, typ string
		if err = rows.Scan(&name, &typ); err != nil {
			return fmt.Errorf("failed scanning ledger column: %w", err)
		}
		if i >= len(ledgerShape) {
			return fmt.Errorf("%w: table %q has unexpected column %q",
				ErrLedgerSchema, l.table, name)
		}
		want := ledgerShape[i]
		if name != want.name || !hasTypePrefix(typ, want.typePfx) {
			return fmt.Errorf("%w: table %q column %d is %s %s, expected %s %s",
				ErrLedgerSchema, l.table, i+1, name, typ, want.name, want.typePfx)
		}
		i++
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("failed reading ledger table shape: %w", err)
	}
	if i < len(ledgerShape) {
		return fmt.Errorf("%w: table %q is missing column %q",
			ErrLedgerSchema, l.table, ledgerShape[i].name)
	}

	return nil
}

// Entries returns all ledger rows ordered by (applied_at, version).
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.Query(ctx, fmt.Sprintf(
		`SELECT version, name, status, applied_at FROM %s ORDER BY applied_at, version`,
		ch.QuoteIdentifier(l.table)))
	if err != nil {
		return nil, fmt.Errorf("failed reading ledger entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			status string
		)
		if err = rows.Scan(&e.Version, &e.Name, &status, &e.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed scanning ledger entry: %w", err)
		}
		switch status {
		case "pending":
			e.Status = StatusPending
		case "applied":
			e.Status = StatusApplied
		default:
			return nil, fmt.Errorf("%w: unknown status %q for version %s",
				ErrLedgerSchema, status, e.Version)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading ledger entries: %w", err)
	}

	return entries, nil
}

// RecordPending upserts a pending row for the version, marking that its
// execution is about to start. A crash mid-migration therefore leaves an
// observable pending row, and the version remains in the next up plan.
func (l *Ledger) RecordPending(ctx context.Context, version Version, name string) error {
	return l.upsert(ctx, version, name, "pending")
}

// RecordApplied upserts an applied row for the version. It must only be
// called after all of the migration's statements executed successfully.
func (l *Ledger) RecordApplied(ctx context.Context, version Version, name string) error {
	return l.upsert(ctx, version, name, "applied")
}

// RecordReverted removes the version's row. It must only be called after all
// of the migration's down statements executed successfully.
func (l *Ledger) RecordReverted(ctx context.Context, version Version) error {
	if err := l.delete(ctx, version); err != nil {
		return fmt.Errorf("failed recording version %s as reverted: %w", version, err)
	}
	return nil
}

func (l *Ledger) upsert(ctx context.Context, version Version, name, status string) error {
	if err := l.delete(ctx, version); err != nil {
		return fmt.Errorf("failed recording version %s as %s: %w", version, status, err)
	}
	err := l.db.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (version, name, status, applied_at) VALUES (?, ?, ?, ?)`,
		ch.QuoteIdentifier(l.table)),
		uint32(version), name, status, l.timeNow().UTC())
	if err != nil {
		return fmt.Errorf("failed recording version %s as %s: %w", version, status, err)
	}
	return nil
}

func hasTypePrefix(typ, pfx string) bool {
	return strings.HasPrefix(typ, pfx)
}

// delete uses a lightweight DELETE, which requires ClickHouse >= 22.8.
func (l *Ledger) delete(ctx context.Context, version Version) error {
	return l.db.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE version = ?`, ch.QuoteIdentifier(l.table)),
		uint32(version))
}
