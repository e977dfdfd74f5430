// Package app wires the CLI, configuration, logging and the ClickHouse
// connection into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"

	cfg "github.com/chutils/chutils/app/config"
	actx "github.com/chutils/chutils/app/context"
	"github.com/chutils/chutils/cli"
)

// App is the application.
type App struct {
	name string
	ctx  *actx.Context
	cli  *cli.CLI
	// the logging level is set via the CLI, if the app was initialized with the
	// WithLogger option.
	logLevel *slog.LevelVar
}

// New initializes a new application.
func New(name, configFilePath string, opts ...Option) (*App, error) {
	version, err := actx.GetVersion()
	if err != nil {
		return nil, err
	}

	defaultCtx := &actx.Context{
		Ctx:     context.Background(),
		FS:      memoryfs.New(),
		Logger:  slog.Default(),
		TimeNow: time.Now,
		Version: version,
	}
	app := &App{name: name, ctx: defaultCtx}

	for _, opt := range opts {
		opt(app)
	}

	ver := fmt.Sprintf("%s %s", app.name, app.ctx.Version.String())
	app.cli, err = cli.New(configFilePath, ver)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Run initializes the application environment and starts execution of the
// application.
func (app *App) Run(args []string) error {
	if err := app.cli.Parse(args); err != nil {
		return err
	}

	if app.logLevel != nil {
		app.logLevel.Set(app.cli.Log.Level)
		slog.SetLogLoggerLevel(app.cli.Log.Level)
	}

	config := cfg.New(app.ctx.FS, app.cli.ConfigFile)
	if err := config.Load(); err != nil {
		return err
	}
	app.cli.ApplyConfig(config)

	defer func() {
		if app.ctx.DB != nil {
			if cerr := app.ctx.DB.Close(); cerr != nil {
				app.ctx.Logger.Warn("failed closing ClickHouse connection", "error", cerr)
			}
		}
	}()

	return app.cli.Execute(app.ctx)
}
