// Package config implements the persisted application configuration, holding
// default values for the ClickHouse connection flags.
package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mandelsoft/vfs/pkg/vfs"
)

// Config represents the application configuration, backed by a filesystem for
// persistence.
type Config struct {
	Connection Connection

	fs   vfs.FileSystem
	path string
}

// Connection defines default values for the ClickHouse connection. Values set
// on the command line or via environment variables take precedence.
type Connection struct {
	// URL of the ClickHouse server, e.g. "clickhouse://localhost:9000" or
	// "http://localhost:8123".
	URL sql.Null[string] `json:"url"`
	// Username for authentication.
	Username sql.Null[string] `json:"username"`
	// Database to operate on.
	Database sql.Null[string] `json:"database"`
	// Options are request settings sent with every query as comma-delimited
	// key=value pairs.
	Options sql.Null[string] `json:"options"`
}

// New creates a new Config instance with the specified filesystem and
// configuration file path.
func New(fs vfs.FileSystem, path string) *Config {
	return &Config{fs: fs, path: path}
}

// Load reads and parses the configuration file from the filesystem.
// If the file doesn't exist, it initializes with an empty configuration.
func (c *Config) Load() error {
	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed creating configuration directory: %w", err)
	}

	configJSON, err := vfs.ReadFile(c.fs, c.path)
	if err != nil && !vfs.IsErrNotExist(err) {
		return fmt.Errorf("failed reading configuration file: %w", err)
	}

	// Ensure that unmarshalling JSON doesn't fail if the file doesn't exist or is empty.
	if len(configJSON) == 0 {
		configJSON = []byte("{}")
	}

	if err = json.Unmarshal(configJSON, c); err != nil {
		return fmt.Errorf("failed parsing configuration file: %w", err)
	}

	return nil
}

// Path returns the filesystem path where the configuration is stored.
func (c *Config) Path() string {
	return c.path
}

// Save writes the current configuration to the filesystem as JSON.
func (c *Config) Save() error {
	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed creating configuration directory: %w", err)
	}
	configJSON, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed serializing configuration data: %w", err)
	}
	if err = vfs.WriteFile(c.fs, c.path, configJSON, 0o644); err != nil {
		return fmt.Errorf("failed writing configuration file: %w", err)
	}

	return nil
}

type cfgWrapper struct {
	Connection connCfgWrapper `json:"connection"`
}
type connCfgWrapper struct {
	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	Database string `json:"database,omitempty"`
	Options  string `json:"options,omitempty"`
}

// MarshalJSON implements custom JSON marshaling to convert sql.Null values
// to their underlying types, omitting invalid/null fields from the output.
func (c Config) MarshalJSON() ([]byte, error) {
	w := cfgWrapper{}

	if c.Connection.URL.Valid {
		w.Connection.URL = c.Connection.URL.V
	}
	if c.Connection.Username.Valid {
		w.Connection.Username = c.Connection.Username.V
	}
	if c.Connection.Database.Valid {
		w.Connection.Database = c.Connection.Database.V
	}
	if c.Connection.Options.Valid {
		w.Connection.Options = c.Connection.Options.V
	}

	//nolint:wrapcheck // This is fine.
	return json.Marshal(w)
}

// UnmarshalJSON implements custom JSON unmarshaling to convert plain values
// into sql.Null types.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w cfgWrapper
	if err := json.Unmarshal(data, &w); err != nil {
		//nolint:wrapcheck // This is fine.
		return err
	}

	if w.Connection.URL != "" {
		c.Connection.URL = sql.Null[string]{V: w.Connection.URL, Valid: true}
	}
	if w.Connection.Username != "" {
		c.Connection.Username = sql.Null[string]{V: w.Connection.Username, Valid: true}
	}
	if w.Connection.Database != "" {
		c.Connection.Database = sql.Null[string]{V: w.Connection.Database, Valid: true}
	}
	if w.Connection.Options != "" {
		c.Connection.Options = sql.Null[string]{V: w.Connection.Options, Valid: true}
	}

	return nil
}
