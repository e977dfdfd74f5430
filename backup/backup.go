// Package backup orchestrates ClickHouse's built-in BACKUP and RESTORE
// engine. All statements run in ASYNC mode; the returned backup IDs can be
// tracked through the system.backups table.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/chutils/chutils/ch"
)

// Client runs backup and restore operations against a ClickHouse server.
type Client struct {
	conn    ch.Conn
	logger  *slog.Logger
	timeNow func() time.Time
}

// Option is a function that allows configuring the client.
type Option func(*Client)

// WithLogger sets the logger used by the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("component", "backup")
	}
}

// WithTimeNow sets the function used to retrieve the current system time.
func WithTimeNow(timeNow func() time.Time) Option {
	return func(c *Client) {
		c.timeNow = timeNow
	}
}

// New creates a backup client on top of an established connection.
func New(conn ch.Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		logger:  slog.Default().With("component", "backup"),
		timeNow: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Request describes a backup of one or more tables of a single database.
type Request struct {
	Database string
	// Tables to back up; all tables of the database when empty.
	Tables []string
	Store  Store
	// Settings are free-form key=value pairs appended to the statement.
	Settings []string
}

func (r Request) validate() error {
	if r.Database == "" {
		return fmt.Errorf("%w: database name must be specified", ErrInvalidConfig)
	}
	if r.Store == nil {
		return fmt.Errorf("%w: store must be specified", ErrInvalidConfig)
	}
	return r.Store.Validate()
}

// Backup starts an asynchronous backup per table and returns the server-side
// backup IDs. Backups are laid out under the store root as
// {database}/{table}, which is the layout Restore discovers tables from.
func (c *Client) Backup(ctx context.Context, req Request) ([]string, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	dbs, err := c.conn.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed listing databases: %w", err)
	}
	if !slices.Contains(dbs, req.Database) {
		return nil, fmt.Errorf("%w: database %q does not exist", ErrInvalidConfig, req.Database)
	}

	tables, err := c.conn.ListTables(ctx, req.Database)
	if err != nil {
		return nil, fmt.Errorf("failed listing tables of database %q: %w", req.Database, err)
	}
	if len(req.Tables) == 0 {
		req.Tables = tables
	} else {
		for _, table := range req.Tables {
			if !slices.Contains(tables, table) {
				return nil, fmt.Errorf("%w: table %q does not exist in database %q",
					ErrInvalidConfig, table, req.Database)
			}
		}
	}

	c.logger.Info("starting backup", "database", req.Database, "tables", len(req.Tables))

	ids := make([]string, 0, len(req.Tables))
	for _, table := range req.Tables {
		stmt := fmt.Sprintf("BACKUP TABLE %s.%s TO %s ASYNC%s",
			ch.QuoteIdentifier(req.Database), ch.QuoteIdentifier(table),
			req.Store.Target(req.Database, table), settingsClause(req.Settings))

		id, err := c.startAsync(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("failed starting backup of table %q: %w", table, err)
		}
		c.logger.Info("backup started", "table", table, "id", id)
		ids = append(ids, id)
	}

	return ids, nil
}

// RestoreMode selects what a restore recreates.
type RestoreMode uint8

const (
	// Full restores both table structure and data.
	Full RestoreMode = iota
	// StructureOnly restores only table definitions.
	StructureOnly
	// DataOnly restores data into existing, possibly non-empty tables.
	DataOnly
)

// RestoreRequest describes a restore of one or more tables from a store.
type RestoreRequest struct {
	Store    Store
	SourceDB string
	// TargetDB defaults to SourceDB when empty.
	TargetDB string
	// Tables to restore; all tables found in the backup source when empty.
	Tables   []string
	Settings []string
	Mode     RestoreMode
}

func (r RestoreRequest) validate() error {
	if r.SourceDB == "" {
		return fmt.Errorf("%w: source database name must be specified", ErrInvalidConfig)
	}
	if r.Store == nil {
		return fmt.Errorf("%w: store must be specified", ErrInvalidConfig)
	}
	return r.Store.Validate()
}

// Restore starts an asynchronous restore per table and returns the
// server-side operation IDs.
func (c *Client) Restore(ctx context.Context, req RestoreRequest) ([]string, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	targetDB := req.TargetDB
	if targetDB == "" {
		targetDB = req.SourceDB
	}

	avail, err := c.discoverTables(ctx, req.Store, req.SourceDB)
	if err != nil {
		return nil, err
	}
	if len(avail) == 0 {
		return nil, fmt.Errorf("%w: no tables found in the backup source", ErrInvalidConfig)
	}

	tables := req.Tables
	if len(tables) == 0 {
		tables = avail
	} else {
		for _, table := range tables {
			if !slices.Contains(avail, table) {
				return nil, fmt.Errorf("%w: table %q not found in backup source",
					ErrInvalidConfig, table)
			}
		}
	}

	settings := req.Settings
	switch req.Mode {
	case StructureOnly:
		settings = append(settings, "structure_only=1")
	case DataOnly:
		settings = append(settings, "structure_only=0", "allow_non_empty_tables=1")
	case Full:
	}

	c.logger.Info("starting restore",
		"source_db", req.SourceDB, "target_db", targetDB, "tables", len(tables))

	ids := make([]string, 0, len(tables))
	for _, table := range tables {
		stmt := fmt.Sprintf("RESTORE TABLE %s.%s FROM %s ASYNC%s",
			ch.QuoteIdentifier(targetDB), ch.QuoteIdentifier(table),
			req.Store.Target(req.SourceDB, table), settingsClause(settings))

		id, err := c.startAsync(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("failed starting restore of table %q: %w", table, err)
		}
		c.logger.Info("restore started", "table", table, "id", id)
		ids = append(ids, id)
	}

	return ids, nil
}

// discoverTables lists the tables present in a backup source by globbing the
// per-table .backup metadata files.
func (c *Client) discoverTables(ctx context.Context, store Store, database string) ([]string, error) {
	rows, err := c.conn.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT arrayElement(splitByChar('/', _path), -2) AS table_name FROM %s ORDER BY table_name`,
		store.Glob(database)))
	if err != nil {
		return nil, fmt.Errorf("failed listing tables in backup source: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed listing tables in backup source: %w", err)
	}

	return tables, nil
}

// startAsync runs an ASYNC BACKUP/RESTORE statement and returns the operation
// ID from its result row.
func (c *Client) startAsync(ctx context.Context, stmt string) (string, error) {
	var id, status string
	if err := c.conn.QueryRow(ctx, stmt).Scan(&id, &status); err != nil {
		return "", err //nolint:wrapcheck // This is wrapped by the caller.
	}
	return id, nil
}

func settingsClause(settings []string) string {
	if len(settings) == 0 {
		return ""
	}
	return " SETTINGS " + strings.Join(settings, ", ")
}
