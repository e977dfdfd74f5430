package cli

import (
	actx "github.com/chutils/chutils/app/context"
	aerrors "github.com/chutils/chutils/app/errors"
)

// Cluster exposes convenience queries over the server's catalog.
type Cluster struct {
	Databases ClusterDatabases `kong:"cmd,help='List all databases.'"`
	Tables    ClusterTables    `kong:"cmd,help='List tables in a database.'"`
}

// ClusterDatabases lists all databases on the server.
type ClusterDatabases struct{}

// Run the cluster databases command.
func (c *ClusterDatabases) Run(appCtx *actx.Context, conn *ConnFlags) error {
	db, err := conn.connect(appCtx)
	if err != nil {
		return aerrors.NewWithCause("failed connecting to ClickHouse", err)
	}

	dbs, err := db.ListDatabases(appCtx.Ctx)
	if err != nil {
		return aerrors.NewWithCause("failed listing databases", err)
	}

	data := make([][]string, len(dbs))
	for i, name := range dbs {
		data[i] = []string{name}
	}
	if err = renderTable([]string{"DATABASE"}, data, appCtx.Stdout); err != nil {
		return aerrors.NewWithCause("failed rendering databases table", err)
	}

	return nil
}

// ClusterTables lists the tables of a single database.
type ClusterTables struct {
	Database string `required:"" help:"Database to list tables from."`
}

// Run the cluster tables command.
func (c *ClusterTables) Run(appCtx *actx.Context, conn *ConnFlags) error {
	db, err := conn.connect(appCtx)
	if err != nil {
		return aerrors.NewWithCause("failed connecting to ClickHouse", err)
	}

	tables, err := db.ListTables(appCtx.Ctx, c.Database)
	if err != nil {
		return aerrors.NewWithCause("failed listing tables", err, "database", c.Database)
	}

	data := make([][]string, len(tables))
	for i, name := range tables {
		data[i] = []string{name}
	}
	if err = renderTable([]string{"TABLE"}, data, appCtx.Stdout); err != nil {
		return aerrors.NewWithCause("failed rendering tables table", err)
	}

	return nil
}
