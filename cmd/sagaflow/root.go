package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petrijr/sagaflow/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds the state shared by all commands once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	logLevel  string
	logFormat string
	store     string
	events    string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "sagaflow",
		Short: "Saga orchestration engine with sample commerce workflows",
		Long: `sagaflow executes step-based workflows with compensation.

Configuration is read from SAGAFLOW_* environment variables; the flags
below override them.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: json or console")
	flags.StringVar(&a.store, "store", "", "run store: memory, sqlite, postgres, redis or mongo")
	flags.StringVar(&a.events, "events", "", "event sink: memory or redis")

	root.AddCommand(newDemoCmd(a), newWorkerCmd(a), newVersionCmd())
	return root
}

// setup loads the configuration, applies explicit flags and builds the
// logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.logFormat
	}
	if flags.Changed("store") {
		cfg.Store = a.store
	}
	if flags.Changed("events") {
		cfg.Events = a.events
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sagaflow %s\n", version)
		},
	}
}
