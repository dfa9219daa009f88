package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pagetrace/pagetrace"
	"github.com/pagetrace/pagetrace/artifacts"
	"github.com/pagetrace/pagetrace/exitcodes"
	"github.com/pagetrace/pagetrace/flags"
	"github.com/pagetrace/pagetrace/remote"
	"github.com/pagetrace/pagetrace/reporting"
)

var (
	Version   = "v0.3.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "pagetrace"
	app.Usage = "Browser acceptance-test observability pipeline"
	app.Description = "pagetrace collects, reports and finalizes browser-based acceptance test runs"
	app.Flags = flags.Flags
	app.Commands = []*cli.Command{
		{
			Name:   "finalize",
			Usage:  "Recover the persisted launch record and close the remote run",
			Action: finalizeAction,
		},
		{
			Name:   "report",
			Usage:  "Re-render the console summary table from a saved run directory",
			Action: reportAction,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if pagetrace.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if pagetrace.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// finalizeAction runs the cross-process finalization protocol: it recovers
// the launch record written by the test process and closes the remote run.
func finalizeAction(ctx *cli.Context) error {
	log, err := newLogger(ctx.String(flags.LogLevel.Name))
	if err != nil {
		return pagetrace.NewRuntimeError(err)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := pagetrace.NewConfig(ctx, log)
	if err != nil {
		return pagetrace.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	fin := remote.NewFinalizer(remote.FinalizeConfig{
		ReportsDir:   cfg.ReportsDir,
		ExecutionID:  cfg.ExecutionID,
		Endpoint:     cfg.RemoteEndpoint,
		Project:      cfg.RemoteProject,
		APIKey:       cfg.RemoteAPIKey,
		FlushTimeout: cfg.FlushTimeout,
		SettleDelay:  cfg.SettleDelay,
		Log:          log,
	})
	fin.Finalize(ctx.Context, nil)
	return nil
}

// reportAction re-renders the summary table from the report.json of a saved
// run. It exits with the run's result code, like the original run did.
func reportAction(ctx *cli.Context) error {
	log, err := newLogger(ctx.String(flags.LogLevel.Name))
	if err != nil {
		return pagetrace.NewRuntimeError(err)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := pagetrace.NewConfig(ctx, log)
	if err != nil {
		return pagetrace.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	if cfg.ExecutionID == "" {
		return pagetrace.NewRuntimeError(errors.New("an execution id is required to locate the run directory"))
	}

	logsDir := filepath.Join(cfg.ReportsDir, cfg.ExecutionID, artifacts.LogsDirName)
	data, err := reporting.LoadReport(logsDir)
	if err != nil {
		return pagetrace.NewRuntimeError(err)
	}

	pagetrace.PrintResultsTable(data)
	if !data.IsSuccessful {
		return pagetrace.NewTestFailureError(fmt.Sprintf("%d of %d scenarios failed", data.Stats.Failed, data.Stats.Total))
	}
	return nil
}
