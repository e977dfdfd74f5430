package cli

import (
	"fmt"

	actx "github.com/chutils/chutils/app/context"
	aerrors "github.com/chutils/chutils/app/errors"
	"github.com/chutils/chutils/backup"
)

// Restore starts one asynchronous restore per table from a backup store.
type Restore struct {
	storeFlags

	SourceDB      string   `required:"" name:"source-db" help:"Database the backup was taken from."`
	TargetDB      string   `name:"target-db" help:"Database to restore into; defaults to the source database."`
	Table         []string `help:"Tables to restore; defaults to all tables found in the backup."`
	Setting       []string `placeholder:"KEY=VALUE" help:"Additional RESTORE settings."`
	StructureOnly bool     `xor:"mode" help:"Restore only table definitions."`
	DataOnly      bool     `xor:"mode" help:"Restore data into existing, possibly non-empty tables."`
}

// Run the restore command.
func (c *Restore) Run(appCtx *actx.Context, conn *ConnFlags) error {
	store, err := c.store()
	if err != nil {
		return aerrors.With(err, "command", "restore")
	}
	client, err := newBackupClient(appCtx, conn)
	if err != nil {
		return err
	}

	mode := backup.Full
	switch {
	case c.StructureOnly:
		mode = backup.StructureOnly
	case c.DataOnly:
		mode = backup.DataOnly
	}

	ids, err := client.Restore(appCtx.Ctx, backup.RestoreRequest{
		Store:    store,
		SourceDB: c.SourceDB,
		TargetDB: c.TargetDB,
		Tables:   c.Table,
		Settings: c.Setting,
		Mode:     mode,
	})
	if err != nil {
		return aerrors.NewWithCause("failed starting restore", err, "source_db", c.SourceDB)
	}

	fmt.Fprintf(appCtx.Stdout, "Started %d restore(s):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(appCtx.Stdout, "  %s\n", id)
	}

	return nil
}
