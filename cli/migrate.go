package cli

import (
	"fmt"
	"time"

	actx "github.com/chutils/chutils/app/context"
	aerrors "github.com/chutils/chutils/app/errors"
	"github.com/chutils/chutils/migrate"
)

// Migrate manages versioned schema migrations.
type Migrate struct {
	Add  MigrateAdd  `kong:"cmd,help='Create a new migration file.'"`
	Info MigrateInfo `kong:"cmd,help='Show the status of all migrations.'"`
	Up   MigrateUp   `kong:"cmd,help='Apply pending migrations.'"`
	Down MigrateDown `kong:"cmd,help='Revert applied migrations.'"`
}

// MigrateAdd creates a new migration file with the next available version.
// It never contacts the server.
type MigrateAdd struct {
	Name       string `arg:"" help:"Migration name (letters, digits and underscores)."`
	Reversible bool   `help:"Create an up/down migration pair instead of a single file."`
	Dir        string `default:"migrations" help:"Path to the migrations directory."`
}

// Run the migrate add command.
func (c *MigrateAdd) Run(appCtx *actx.Context) error {
	source := migrate.NewSource(appCtx.FS, c.Dir)
	paths, err := source.Create(c.Name, c.Reversible)
	if err != nil {
		return aerrors.NewWithCause("failed creating migration", err, "name", c.Name)
	}

	for _, path := range paths {
		fmt.Fprintf(appCtx.Stdout, "Created %s\n", path)
	}

	return nil
}

// MigrateInfo shows the merged status of local migration files and the ledger.
type MigrateInfo struct {
	Dir           string `default:"migrations" help:"Path to the migrations directory."`
	Table         string `default:"schema_migrations" help:"Name of the migration ledger table."`
	IgnoreMissing bool   `help:"Don't fail when the ledger references migrations missing locally."`
}

// Run the migrate info command.
func (c *MigrateInfo) Run(appCtx *actx.Context, conn *ConnFlags) error {
	m, err := newMigrator(appCtx, conn, c.Dir, c.Table)
	if err != nil {
		return err
	}

	summary, err := m.Info(appCtx.Ctx, c.IgnoreMissing)
	if err != nil {
		return aerrors.NewWithCause("failed loading migration status", err)
	}

	if len(summary.Migrations) == 0 {
		fmt.Fprintln(appCtx.Stdout, "No migrations found.")
		return nil
	}

	data := make([][]string, len(summary.Migrations))
	for i, s := range summary.Migrations {
		applied := ""
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.Format(time.DateTime)
		}
		data[i] = []string{
			s.Version.String(), s.Name, s.Mode.String(), s.Status.String(), applied,
		}
	}
	err = renderTable([]string{"VERSION", "NAME", "MODE", "STATUS", "APPLIED AT"},
		data, appCtx.Stdout)
	if err != nil {
		return aerrors.NewWithCause("failed rendering migrations table", err)
	}

	fmt.Fprintf(appCtx.Stdout, "\n%d applied, %d pending, %d missing, %d conflicting\n",
		summary.Applied, summary.Pending, summary.Missing, summary.Conflicts)

	return nil
}

// MigrateUp applies pending migrations in ascending version order.
type MigrateUp struct {
	Dir           string `default:"migrations" help:"Path to the migrations directory."`
	Table         string `default:"schema_migrations" help:"Name of the migration ledger table."`
	TargetVersion int    `default:"-1" help:"Apply pending migrations up to and including this version."`
	DryRun        bool   `help:"Report what would be applied without executing anything."`
	IgnoreMissing bool   `help:"Don't fail when the ledger references migrations missing locally."`
}

// Run the migrate up command.
func (c *MigrateUp) Run(appCtx *actx.Context, conn *ConnFlags) error {
	m, err := newMigrator(appCtx, conn, c.Dir, c.Table)
	if err != nil {
		return err
	}

	result, err := m.Up(appCtx.Ctx, migrate.Options{
		TargetVersion: targetVersion(c.TargetVersion),
		DryRun:        c.DryRun,
		IgnoreMissing: c.IgnoreMissing,
	})

	return reportResult(appCtx, result, err, "applied")
}

// MigrateDown reverts applied migrations in descending version order. Without
// a target version only the latest applied migration is reverted.
type MigrateDown struct {
	Dir           string `default:"migrations" help:"Path to the migrations directory."`
	Table         string `default:"schema_migrations" help:"Name of the migration ledger table."`
	TargetVersion int    `default:"-1" help:"Revert all applied migrations after this version."`
	DryRun        bool   `help:"Report what would be reverted without executing anything."`
	IgnoreMissing bool   `help:"Don't fail when the ledger references migrations missing locally."`
}

// Run the migrate down command.
func (c *MigrateDown) Run(appCtx *actx.Context, conn *ConnFlags) error {
	m, err := newMigrator(appCtx, conn, c.Dir, c.Table)
	if err != nil {
		return err
	}

	result, err := m.Down(appCtx.Ctx, migrate.Options{
		TargetVersion: targetVersion(c.TargetVersion),
		DryRun:        c.DryRun,
		IgnoreMissing: c.IgnoreMissing,
	})

	return reportResult(appCtx, result, err, "reverted")
}

func newMigrator(appCtx *actx.Context, conn *ConnFlags, dir, table string) (*migrate.Migrator, error) {
	db, err := conn.connect(appCtx)
	if err != nil {
		return nil, aerrors.NewWithCause("failed connecting to ClickHouse", err)
	}

	source := migrate.NewSource(appCtx.FS, dir)
	ledger := migrate.NewLedger(db, table, appCtx.TimeNow)

	return migrate.New(source, ledger, db, appCtx.Logger), nil
}

func targetVersion(v int) *migrate.Version {
	if v < 0 {
		return nil
	}
	target := migrate.Version(v)
	return &target
}

// reportResult renders the outcome of an up or down run. The verb is the past
// tense "applied"/"reverted". A failed run still reports the migrations that
// completed before the failure; their changes are not rolled back.
func reportResult(appCtx *actx.Context, result *migrate.Result, err error, verb string) error {
	var completed int
	if result != nil {
		completed = len(result.Completed)
		for _, mig := range result.Completed {
			fmt.Fprintf(appCtx.Stdout, "%s %s_%s\n", capitalize(verb), mig.Version, mig.Name)
		}
	}

	if err != nil {
		return aerrors.With(err, "completed", completed)
	}

	switch {
	case len(result.Planned) == 0:
		fmt.Fprintln(appCtx.Stdout, "Nothing to do.")
	case completed == 0:
		// Dry run.
		fmt.Fprintf(appCtx.Stdout, "Would have %s %d migration(s):\n",
			verb, len(result.Planned))
		for _, mig := range result.Planned {
			fmt.Fprintf(appCtx.Stdout, "  %s_%s\n", mig.Version, mig.Name)
		}
	default:
		fmt.Fprintf(appCtx.Stdout, "%s %d migration(s).\n", capitalize(verb), completed)
	}

	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
