package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/chutils/chutils/ch"
)

// Migrator reconciles local migration files against the ledger and applies or
// reverts migrations in strict version order. All statements within one
// migration, and all migrations within one batch, execute sequentially.
type Migrator struct {
	source *Source
	ledger *Ledger
	db     ch.Querier
	logger *slog.Logger
}

// New creates a migrator.
func New(source *Source, ledger *Ledger, db ch.Querier, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		source: source,
		ledger: ledger,
		db:     db,
		logger: logger.With("component", "migrate"),
	}
}

// Options control planning for a single up or down run.
type Options struct {
	// TargetVersion bounds the plan: inclusive for up (apply through this
	// version), exclusive for down (revert everything after it). When nil, up
	// applies all pending migrations and down reverts only the latest applied
	// one.
	TargetVersion *Version
	// DryRun performs discovery, reconciliation and planning, but executes
	// nothing and leaves the ledger untouched.
	DryRun bool
	// IgnoreMissing reports ledger versions with no local file instead of
	// failing.
	IgnoreMissing bool
}

// Result reports the outcome of an up or down run. On failure part-way
// through a batch, Completed retains the migrations that finished before the
// failing one; their ledger rows are not rolled back.
type Result struct {
	Planned   []Migration
	Completed []Migration
}

// Info returns the merged, ordered status view of all known migration
// versions without mutating anything.
func (m *Migrator) Info(ctx context.Context, ignoreMissing bool) (*Summary, error) {
	states, err := m.reconcile(ctx, ignoreMissing)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Migrations: states}
	for _, s := range states {
		switch s.Status {
		case StatusApplied:
			summary.Applied++
		case StatusMissing:
			summary.Missing++
		case StatusConflict:
			summary.Conflicts++
		default:
			summary.Pending++
		}
	}

	return summary, nil
}

// Up applies pending migrations in ascending version order. With a target
// version, only pending migrations with version <= target are applied.
func (m *Migrator) Up(ctx context.Context, opts Options) (*Result, error) {
	states, err := m.reconcile(ctx, opts.IgnoreMissing)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, s := range states {
		if s.Status != StatusPending {
			continue
		}
		if opts.TargetVersion != nil && s.Version > *opts.TargetVersion {
			continue
		}
		result.Planned = append(result.Planned, s.Migration)
	}

	if opts.DryRun {
		return result, nil
	}

	for _, mig := range result.Planned {
		if err := m.apply(ctx, mig); err != nil {
			return result, err
		}
		result.Completed = append(result.Completed, mig)
	}

	return result, nil
}

// Down reverts applied migrations in descending version order. With a target
// version, all applied migrations with version > target are reverted; without
// one, only the single latest applied migration is. If any migration in the
// plan is not reversible, Down fails before executing anything.
func (m *Migrator) Down(ctx context.Context, opts Options) (*Result, error) {
	states, err := m.reconcile(ctx, opts.IgnoreMissing)
	if err != nil {
		return nil, err
	}

	var applied []Migration
	for _, s := range states {
		if s.Status == StatusApplied {
			applied = append(applied, s.Migration)
		}
	}

	result := &Result{}
	if opts.TargetVersion == nil {
		if len(applied) > 0 {
			result.Planned = applied[len(applied)-1:]
		}
	} else {
		for _, mig := range applied {
			if mig.Version > *opts.TargetVersion {
				result.Planned = append(result.Planned, mig)
			}
		}
	}

	// Descending revert order.
	sort.Slice(result.Planned, func(i, j int) bool {
		return result.Planned[i].Version > result.Planned[j].Version
	})

	// Reversibility is validated for the entire plan before any execution, so
	// a simple migration in range halts the run with zero mutations instead
	// of being skipped.
	for _, mig := range result.Planned {
		if mig.Mode != Reversible {
			return nil, fmt.Errorf("%w: %s_%s", ErrIrreversible, mig.Version, mig.Name)
		}
	}

	if opts.DryRun {
		return result, nil
	}

	for _, mig := range result.Planned {
		if err := m.revert(ctx, mig); err != nil {
			return result, err
		}
		result.Completed = append(result.Completed, mig)
	}

	return result, nil
}

// reconcile merges the local migration files with the ledger into a single
// status view sorted by ascending version. The ledger table is created if it
// doesn't exist yet.
func (m *Migrator) reconcile(ctx context.Context, ignoreMissing bool) ([]State, error) {
	migrations, err := m.source.List()
	if err != nil {
		return nil, err
	}
	if err = m.ledger.Ensure(ctx); err != nil {
		return nil, err
	}
	entries, err := m.ledger.Entries(ctx)
	if err != nil {
		return nil, err
	}

	local := make(map[Version]bool, len(migrations))
	remote := make(map[Version]Entry, len(entries))
	for _, e := range entries {
		remote[e.Version] = e
	}

	states := make([]State, 0, len(migrations))
	for _, mig := range migrations {
		local[mig.Version] = true
		state := State{Migration: mig, Status: StatusPending}
		if e, ok := remote[mig.Version]; ok {
			state.Status = e.Status
			state.AppliedAt = e.AppliedAt
			if e.Name != mig.Name {
				state.Status = StatusConflict
			}
		}
		states = append(states, state)
	}

	for _, e := range entries {
		if local[e.Version] {
			continue
		}
		if !ignoreMissing {
			return nil, fmt.Errorf("%w: version %s (%s) is recorded in the ledger",
				ErrMissingFile, e.Version, e.Name)
		}
		states = append(states, State{
			Migration: Migration{Version: e.Version, Name: e.Name},
			Status:    StatusMissing,
			AppliedAt: e.AppliedAt,
		})
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].Version < states[j].Version
	})

	return states, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	stmts, err := m.source.Load(mig, Up)
	if err != nil {
		return &ExecError{Version: mig.Version, Name: mig.Name, Err: err}
	}

	// The pending row is written before execution, making an interrupted
	// migration observable in the ledger.
	if err = m.ledger.RecordPending(ctx, mig.Version, mig.Name); err != nil {
		return &ExecError{Version: mig.Version, Name: mig.Name, Err: err}
	}

	if err = m.execAll(ctx, mig, stmts); err != nil {
		return err
	}

	if err = m.ledger.RecordApplied(ctx, mig.Version, mig.Name); err != nil {
		return &ExecError{Version: mig.Version, Name: mig.Name, Err: err}
	}

	m.logger.Info("applied migration",
		"version", mig.Version.String(), "name", mig.Name, "statements", len(stmts))

	return nil
}

func (m *Migrator) revert(ctx context.Context, mig Migration) error {
	stmts, err := m.source.Load(mig, Down)
	if err != nil {
		return &ExecError{Version: mig.Version, Name: mig.Name, Err: err}
	}

	if err = m.execAll(ctx, mig, stmts); err != nil {
		return err
	}

	if err = m.ledger.RecordReverted(ctx, mig.Version); err != nil {
		return &ExecError{Version: mig.Version, Name: mig.Name, Err: err}
	}

	m.logger.Info("reverted migration",
		"version", mig.Version.String(), "name", mig.Name, "statements", len(stmts))

	return nil
}

func (m *Migrator) execAll(ctx context.Context, mig Migration, stmts []string) error {
	for i, stmt := range stmts {
		m.logger.Debug("executing statement",
			"version", mig.Version.String(), "statement", i+1, "total", len(stmts))
		if err := m.db.Exec(ctx, stmt); err != nil {
			return &ExecError{
				Version: mig.Version,
				Name:    mig.Name,
				Err:     fmt.Errorf("statement %d: %w", i+1, err),
			}
		}
	}
	return nil
}
