package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/chutils/chutils/app/config"
	actx "github.com/chutils/chutils/app/context"
	"github.com/chutils/chutils/ch"
)

// CLI is the command line interface of chutils.
type CLI struct {
	Migrate Migrate `kong:"cmd,help='Manage ClickHouse schema migrations.'"`
	Backup  Backup  `kong:"cmd,help='Create table backups and track their progress.'"`
	Restore Restore `kong:"cmd,help='Restore tables from a backup.'"`
	Cluster Cluster `kong:"cmd,help='List databases and tables on the server.'"`
	Version Version `kong:"cmd,help='Output version and exit.'"`

	Conn ConnFlags `embed:""`

	Log struct {
		Level slog.Level `enum:"DEBUG,INFO,WARN,ERROR" default:"INFO" help:"Set the app logging level."`
	} `embed:"" prefix:"log-"`
	// NOTE: Deliberately not using kong.ConfigFlag or its support for reading
	// values from configuration files, since the configuration is managed
	// independently from the CLI.
	ConfigFile string `kong:"default='${configFile}',help='Path to the chutils configuration file.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// ConnFlags are the shared ClickHouse connection flags.
type ConnFlags struct {
	URL      string `kong:"name='clickhouse-url',short='c',env='CLICKHOUSE_URL',help='ClickHouse server URL (e.g. clickhouse://localhost:9000 or http://localhost:8123).'"`
	User     string `kong:"name='clickhouse-user',short='u',env='CLICKHOUSE_USER',help='ClickHouse username for authentication.'"`
	Password string `kong:"name='clickhouse-password',short='p',env='CLICKHOUSE_PASSWORD',help='ClickHouse password for authentication.'"`
	Database string `kong:"name='clickhouse-database',short='d',env='CLICKHOUSE_DATABASE',help='ClickHouse database to operate on.'"`
	Options  string `kong:"name='clickhouse-option',short='o',env='CLICKHOUSE_OPTIONS',help='Additional ClickHouse request options (comma-delimited key=value pairs).'"`
}

// connect returns the application's ClickHouse connection, establishing it
// from the connection flags if one wasn't injected already.
func (f *ConnFlags) connect(appCtx *actx.Context) (ch.Conn, error) {
	if appCtx.DB != nil {
		return appCtx.DB, nil
	}

	if f.URL == "" {
		return nil, fmt.Errorf(
			"the ClickHouse URL must be provided via --clickhouse-url or the CLICKHOUSE_URL env variable")
	}
	options, err := ch.ParseOptions(f.Options)
	if err != nil {
		return nil, fmt.Errorf("failed parsing ClickHouse options: %w", err)
	}

	conn, err := ch.NewBuilder(f.URL).
		WithUsername(f.User).
		WithPassword(f.Password).
		WithDatabase(f.Database).
		WithOptions(options).
		Connect(appCtx.Ctx)
	if err != nil {
		return nil, err
	}
	appCtx.DB = conn

	return conn, nil
}

// New initializes the command-line interface.
func New(configFilePath, version string) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name("chutils"),
		kong.Description("A CLI for managing ClickHouse servers: schema migrations, backups and catalog queries."),
		kong.UsageOnError(),
		kong.DefaultEnvars("CHUTILS"),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"configFile": configFilePath,
			"version":    version,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}

	c.kong = kparser

	return c, nil
}

// Execute starts the command execution. Parse must be called before this method.
func (c *CLI) Execute(appCtx *actx.Context) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	c.kong.Stdout = appCtx.Stdout
	c.kong.Stderr = appCtx.Stderr

	//nolint:wrapcheck // This is fine.
	return c.kctx.Run(appCtx, &c.Conn)
}

// Parse the given command line arguments. This method must be called before
// Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx

	return nil
}

// Command returns the full path of the executed command.
func (c *CLI) Command() string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	cmdPath := []string{}
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			cmdPath = append(cmdPath, p.Command.Name)
		}
	}

	return strings.Join(cmdPath, " ")
}

// ApplyConfig applies configuration values to the CLI, but only if they
// weren't already set on the command line or via the environment.
func (c *CLI) ApplyConfig(cfg *config.Config) {
	if c.Conn.URL == "" && cfg.Connection.URL.Valid {
		c.Conn.URL = cfg.Connection.URL.V
	}
	if c.Conn.User == "" && cfg.Connection.Username.Valid {
		c.Conn.User = cfg.Connection.Username.V
	}
	if c.Conn.Database == "" && cfg.Connection.Database.Valid {
		c.Conn.Database = cfg.Connection.Database.V
	}
	if c.Conn.Options == "" && cfg.Connection.Options.Valid {
		c.Conn.Options = cfg.Connection.Options.V
	}
}
