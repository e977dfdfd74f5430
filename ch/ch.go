// Package ch wraps the official ClickHouse client with a narrow interface
// surface used by the rest of the application, and helpers for building
// connections from URLs and free-form request options.
package ch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ErrEmptyURL is returned when no ClickHouse URL was provided.
var ErrEmptyURL = errors.New("ClickHouse URL is empty")

// Builder assembles a ClickHouse connection from a URL and optional
// credential and setting overrides.
type Builder struct {
	url      string
	username string
	password string
	database string
	options  map[string]string
}

// NewBuilder creates a connection builder for the given server URL. Both
// native (clickhouse://) and HTTP(S) URLs are supported.
func NewBuilder(url string) *Builder {
	return &Builder{url: url, options: map[string]string{}}
}

// WithUsername overrides the username from the URL.
func (b *Builder) WithUsername(username string) *Builder {
	b.username = username
	return b
}

// WithPassword overrides the password from the URL.
func (b *Builder) WithPassword(password string) *Builder {
	b.password = password
	return b
}

// WithDatabase overrides the database from the URL.
func (b *Builder) WithDatabase(database string) *Builder {
	b.database = database
	return b
}

// WithOptions adds free-form request settings sent with every query.
func (b *Builder) WithOptions(options map[string]string) *Builder {
	for k, v := range options {
		b.options[k] = v
	}
	return b
}

// Connect establishes and verifies a connection to the server.
func (b *Builder) Connect(ctx context.Context) (Conn, error) {
	if b.url == "" {
		return nil, ErrEmptyURL
	}

	opts, err := clickhouse.ParseDSN(b.url)
	if err != nil {
		return nil, fmt.Errorf("failed parsing ClickHouse URL: %w", err)
	}

	if b.username != "" {
		opts.Auth.Username = b.username
	}
	if b.password != "" {
		opts.Auth.Password = b.password
	}
	if b.database != "" {
		opts.Auth.Database = b.database
	}
	if len(b.options) > 0 {
		if opts.Settings == nil {
			opts.Settings = clickhouse.Settings{}
		}
		for k, v := range b.options {
			opts.Settings[k] = v
		}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed opening ClickHouse connection: %w", err)
	}
	if err = conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed connecting to ClickHouse at %s: %w", b.url, err)
	}

	return &client{conn: conn}, nil
}

// ParseOptions parses comma- or space-delimited key=value pairs into a map,
// e.g. "max_threads=4,async_insert=1".
func ParseOptions(s string) (map[string]string, error) {
	options := map[string]string{}
	for _, pair := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	}) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid option %q: expected key=value", pair)
		}
		options[k] = v
	}

	return options, nil
}

// QuoteIdentifier quotes a ClickHouse identifier (database, table or column
// name) using backticks.
func QuoteIdentifier(name string) string {
	r := strings.NewReplacer(`\`, `\\`, "`", "\\`")
	return "`" + r.Replace(name) + "`"
}

// QuoteString quotes a string literal for inclusion in a ClickHouse query.
func QuoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
