package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/winters27/streamnook/internal/commands"
	"github.com/winters27/streamnook/internal/core/config"
	"github.com/winters27/streamnook/internal/core/logging"
	"github.com/winters27/streamnook/internal/data/db"
	"github.com/winters27/streamnook/internal/data/stores"
	"github.com/winters27/streamnook/internal/data/sweep"
	"github.com/winters27/streamnook/pkg/logutils"
	"github.com/winters27/streamnook/pkg/profiler"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var (
		logCloser   func()
		database    *db.DB
		sweepCancel context.CancelFunc
		pprofServer *profiler.Server
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "streamnook",
		Usage:     "Notification engine for the StreamNook desktop client",
		UsageText: "streamnook [global options] command [command options]",
		Description: `Streamnook aggregates backend events (live streams, whispers, drops,
channel points, badges, updates) into a bounded notification history.

Events arrive as JSON lines on stdin or as files in a spool directory;
render instructions leave as JSON lines on stdout.

Run 'streamnook' with no arguments to start the engine.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("STREAMNOOK_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/streamnook.log)",
				Sources:     cli.EnvVars("STREAMNOOK_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("STREAMNOOK_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("STREAMNOOK_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
			&cli.IntFlag{
				Name:        "pprof-port",
				Usage:       "serve pprof on this port (0 disables)",
				Sources:     cli.EnvVars("STREAMNOOK_PPROF_PORT"),
				Hidden:      true,
				Destination: &flags.PprofPort,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// Always log to a file; stdout carries the render stream and
			// must stay clean.
			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(flags.DataDir, "streamnook.log")
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = &cfg

			dbOpts := db.OpenOptions{
				MaxOpenConns: cfg.Database.MaxOpenConns,
				MaxIdleConns: cfg.Database.MaxIdleConns,
				BusyTimeout:  cfg.Database.BusyTimeout,
			}
			database, err = db.Open(cfg.DataDir, dbOpts)
			if err != nil {
				return ctx, fmt.Errorf("open database: %w", err)
			}

			kvStore := stores.NewKVStore(database)
			flags.KV = kvStore

			// Expired cache entries (update-check results and the like)
			// are swept in the background.
			sweepCtx, cancel := context.WithCancel(context.Background())
			sweepCancel = cancel
			go sweep.Start(sweepCtx, kvStore, 5*time.Minute)

			if flags.PprofPort > 0 {
				pprofServer = profiler.New(int(flags.PprofPort), logging.Component("profiler"))
				if err := pprofServer.Start(ctx); err != nil {
					return ctx, fmt.Errorf("start profiler: %w", err)
				}
			}

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if sweepCancel != nil {
				sweepCancel()
			}

			if pprofServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := pprofServer.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("profiler shutdown failed")
				}
			}

			if database != nil {
				if err := database.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close database")
					return err
				}
			}

			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	runCmd := commands.NewRunCmd(flags, version)

	app = runCmd.Register(app)
	app = commands.NewHistoryCmd(flags).Register(app)
	app = commands.NewClearCmd(flags).Register(app)
	app = commands.NewEmitCmd(flags).Register(app)

	// Running the engine is the default action when no subcommand is given.
	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'streamnook --help' for usage", c.Args().First())
		}
		return runCmd.Run(ctx, c)
	}

	exitCode := 0
	runErr := app.Run(ctx, os.Args)
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr.Error())
		exitCode = 1
	}

	os.Exit(exitCode)
}
