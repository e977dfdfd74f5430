package ch

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Rows is the result of a query returning multiple rows. It is a narrow
// subset of the official client's driver.Rows, which keeps test doubles small.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Row is the result of a query returning a single row.
type Row interface {
	Scan(dest ...any) error
	Err() error
}

// Querier exposes methods for running statements and queries.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// Catalog exposes convenience queries over the server's system tables.
type Catalog interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, database string) ([]string, error)
}

// Conn is a live ClickHouse connection.
type Conn interface {
	Querier
	Catalog
	Close() error
}

// client adapts the official driver connection to the Conn interface.
type client struct {
	conn driver.Conn
}

var _ Conn = (*client)(nil)

func (c *client) Exec(ctx context.Context, query string, args ...any) error {
	if err := c.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed executing statement: %w", err)
	}
	return nil
}

func (c *client) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed executing query: %w", err)
	}
	return rows, nil
}

func (c *client) QueryRow(ctx context.Context, query string, args ...any) Row {
	return c.conn.QueryRow(ctx, query, args...)
}

func (c *client) ListDatabases(ctx context.Context) ([]string, error) {
	return c.listNames(ctx, `SELECT name FROM system.databases ORDER BY name`)
}

func (c *client) ListTables(ctx context.Context, database string) ([]string, error) {
	return c.listNames(ctx,
		fmt.Sprintf(`SELECT name FROM system.tables WHERE database = %s ORDER BY name`,
			QuoteString(database)))
}

func (c *client) listNames(ctx context.Context, query string) ([]string, error) {
	rows, err := c.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed scanning name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading rows: %w", err)
	}

	return names, nil
}

func (c *client) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed closing connection: %w", err)
	}
	return nil
}
