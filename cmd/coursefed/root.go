package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pevans/coursefed/config"
	"github.com/pevans/coursefed/heuristics"
	"github.com/pevans/coursefed/logger"
	"github.com/pevans/coursefed/sources"
)

// errNoRecords makes the process exit non-zero after a run that stored
// nothing. The run summary has already been printed.
var errNoRecords = errors.New("no records stored")

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	logLevel   string
}

// app holds what every command needs once flags are parsed.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	registry *sources.Registry
	tables   *heuristics.Tables
	out      io.Writer
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "coursefed [source] [department]",
		Short: "Scrape postgraduate course listings into a course database",
		Long: `coursefed fetches university course listing pages, extracts the courses
they describe and stores them. With no arguments it prints the source catalog.`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "",
		"config file (default is ~/.coursefed/config.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "",
		"log level: debug, info, warn or error (overrides config)")

	run := newRunCommand(flags)
	root.Flags().AddFlagSet(run.Flags())
	root.RunE = run.RunE

	root.AddCommand(run)
	root.AddCommand(newListCommand(flags))
	root.AddCommand(newReportCommand())

	return root
}

// setup loads configuration, the logger, the source catalog and the
// heuristic tables.
func setup(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	registry, err := sources.Load(cfg.Catalog.Files...)
	if err != nil {
		return nil, fmt.Errorf("failed to load source catalog: %w", err)
	}

	tables := heuristics.Default()
	if cfg.Heuristics.File != "" {
		tables, err = heuristics.LoadFile(cfg.Heuristics.File)
		if err != nil {
			return nil, err
		}
		log.Debug("Loaded heuristic tables",
			logger.String("file", cfg.Heuristics.File),
			logger.Int("version", tables.Version))
	}

	return &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		tables:   tables,
		out:      cmd.OutOrStdout(),
	}, nil
}
