package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pevans/coursefed"
	"github.com/pevans/coursefed/fetcher"
	"github.com/pevans/coursefed/logger"
	"github.com/pevans/coursefed/persist"
	"github.com/pevans/coursefed/retry"
	"github.com/pevans/coursefed/scraper"
	"github.com/pevans/coursefed/sources"
	"github.com/pevans/coursefed/store"
)

func newRunCommand(flags *globalFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "run [source] [department]",
		Short: "Scrape one department, every department of a source, or the whole catalog",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer a.log.Sync()

			if len(args) == 0 && !all {
				printCatalog(a.out, a.registry.List())
				return nil
			}

			targets, err := resolveTargets(a.registry, all, args)
			if err != nil {
				return err
			}
			return a.scrape(cmd.Context(), targets)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "scrape every department of every source")
	return cmd
}

// resolveTargets maps the command arguments onto catalog targets. Unknown
// ids are configuration errors.
func resolveTargets(registry *sources.Registry, all bool, args []string) ([]scraper.Target, error) {
	switch {
	case all && len(args) > 0:
		return nil, errors.New("--all cannot be combined with a source id")
	case all:
		return registry.All(), nil
	case len(args) == 1:
		return registry.Targets(args[0])
	default:
		t, err := registry.Target(args[0], args[1])
		if err != nil {
			return nil, err
		}
		return []scraper.Target{t}, nil
	}
}

func (a *app) scrape(ctx context.Context, targets []scraper.Target) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if a.cfg.Storage.Driver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(a.cfg.Storage.DSN), 0700); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.Open(ctx, a.cfg.Storage.Driver, a.cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	scrape := a.cfg.Scrape
	f := fetcher.New(fetcher.Options{
		UserAgent:     scrape.UserAgent,
		Timeout:       scrape.FetchTimeout,
		RenderTimeout: scrape.RenderTimeout,
		ChromePath:    scrape.ChromePath,
	})

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = scrape.MaxRetries

	coordinator := coursefed.NewCoordinator(f, persist.New(db, a.tables, a.log), a.log, coursefed.Options{
		PageDelay:     scrape.PageDelay,
		SourceDelay:   scrape.SourceDelay,
		SourceTimeout: scrape.SourceTimeout,
		Concurrency:   scrape.Concurrency,
		Retry:         retryCfg,
		Tables:        a.tables,
	})

	report := coordinator.Run(ctx, targets)
	printRunSummary(a.out, report)

	path, err := coursefed.WriteArtifact(a.cfg.Output.ResultsDir, report)
	if err != nil {
		a.log.Error("Failed to save run artifact", logger.Error(err))
	} else {
		fmt.Fprintf(a.out, "\nResults saved to %s\n", path)
	}

	if report.ExitCode() != 0 {
		return errNoRecords
	}
	return nil
}
