package cli

import (
	"errors"
	"fmt"
	"time"

	actx "github.com/chutils/chutils/app/context"
	aerrors "github.com/chutils/chutils/app/errors"
	"github.com/chutils/chutils/backup"
	"github.com/chutils/chutils/xtime"
)

// Backup manages server-side table backups.
type Backup struct {
	Create BackupCreate `kong:"cmd,help='Start an asynchronous backup of one or more tables.'"`
	Status BackupStatus `kong:"cmd,help='Show the status of backup and restore operations.'"`
}

// storeFlags select and configure the backup store. Exactly one store type
// must be chosen.
type storeFlags struct {
	S3URL       string `name:"s3-url" help:"S3 endpoint URL, including the bucket." group:"Store"`
	S3AccessKey string `name:"s3-access-key" help:"S3 access key." group:"Store"`
	S3SecretKey string `name:"s3-secret-key" help:"S3 secret key." group:"Store"`
	S3Prefix    string `name:"s3-prefix" help:"Optional path prefix under the bucket root." group:"Store"`
	DiskName    string `name:"disk-name" help:"Name of a backup disk from the server configuration." group:"Store"`
	DiskPath    string `name:"disk-path" help:"Path on the backup disk." group:"Store"`
	File        string `name:"file" help:"Path on the server filesystem." group:"Store"`
}

func (f *storeFlags) store() (backup.Store, error) {
	var stores []backup.Store
	if f.S3URL != "" || f.S3AccessKey != "" || f.S3SecretKey != "" || f.S3Prefix != "" {
		stores = append(stores, backup.S3{
			URL:       f.S3URL,
			AccessKey: f.S3AccessKey,
			SecretKey: f.S3SecretKey,
			Prefix:    f.S3Prefix,
		})
	}
	if f.DiskName != "" || f.DiskPath != "" {
		stores = append(stores, backup.Disk{Name: f.DiskName, Path: f.DiskPath})
	}
	if f.File != "" {
		stores = append(stores, backup.File{Path: f.File})
	}

	switch len(stores) {
	case 0:
		return nil, errors.New("a backup store must be selected via the --s3-*, --disk-* or --file flags")
	case 1:
		return stores[0], nil
	default:
		return nil, errors.New("only one backup store may be selected")
	}
}

func newBackupClient(appCtx *actx.Context, conn *ConnFlags) (*backup.Client, error) {
	db, err := conn.connect(appCtx)
	if err != nil {
		return nil, aerrors.NewWithCause("failed connecting to ClickHouse", err)
	}

	return backup.New(db,
		backup.WithLogger(appCtx.Logger),
		backup.WithTimeNow(appCtx.TimeNow),
	), nil
}

// BackupCreate starts one asynchronous backup per table.
type BackupCreate struct {
	storeFlags

	Database string   `required:"" help:"Database whose tables will be backed up."`
	Table    []string `help:"Tables to back up; defaults to all tables of the database."`
	Setting  []string `placeholder:"KEY=VALUE" help:"Additional BACKUP settings."`
}

// Run the backup create command.
func (c *BackupCreate) Run(appCtx *actx.Context, conn *ConnFlags) error {
	store, err := c.store()
	if err != nil {
		return aerrors.With(err, "command", "backup create")
	}
	client, err := newBackupClient(appCtx, conn)
	if err != nil {
		return err
	}

	ids, err := client.Backup(appCtx.Ctx, backup.Request{
		Database: c.Database,
		Tables:   c.Table,
		Store:    store,
		Settings: c.Setting,
	})
	if err != nil {
		return aerrors.NewWithCause("failed starting backup", err, "database", c.Database)
	}

	fmt.Fprintf(appCtx.Stdout, "Started %d backup(s):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(appCtx.Stdout, "  %s\n", id)
	}

	return nil
}

// BackupStatus shows the progress of backup and restore operations from the
// system.backups table.
type BackupStatus struct {
	ID           []string      `arg:"" optional:"" help:"Operation IDs to show; defaults to all."`
	Since        string        `default:"24h" help:"Only show operations started within this duration."`
	Wait         bool          `help:"Poll until all shown operations reach a terminal state."`
	PollInterval time.Duration `default:"5s" help:"Polling interval used with --wait."`
}

// Run the backup status command.
func (c *BackupStatus) Run(appCtx *actx.Context, conn *ConnFlags) error {
	since, err := xtime.ParseDuration(c.Since)
	if err != nil {
		return aerrors.NewWithCause("failed parsing --since duration", err, "since", c.Since)
	}
	client, err := newBackupClient(appCtx, conn)
	if err != nil {
		return err
	}

	var statuses []backup.Status
	if c.Wait {
		statuses, err = client.Wait(appCtx.Ctx, c.ID, since, c.PollInterval)
	} else {
		statuses, err = client.Status(appCtx.Ctx, c.ID, since)
	}
	if err != nil {
		return aerrors.NewWithCause("failed loading backup status", err)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(appCtx.Stdout, "No backup operations found.")
		return nil
	}

	data := make([][]string, len(statuses))
	for i, s := range statuses {
		data[i] = []string{
			s.ID,
			s.Name,
			s.State,
			s.TotalSize,
			fmt.Sprintf("%.1f%%", s.Progress),
			s.StartTime.Format(time.DateTime),
			xtime.FormatDuration(s.Duration, time.Second),
			s.Error,
		}
	}
	err = renderTable(
		[]string{"ID", "NAME", "STATUS", "SIZE", "PROGRESS", "STARTED", "DURATION", "ERROR"},
		data, appCtx.Stdout)
	if err != nil {
		return aerrors.NewWithCause("failed rendering status table", err)
	}

	return nil
}
