package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/cohort"
	"github.com/arloliu/cohort/internal/logging"
)

// rootOptions holds global flags and the state resolved from them.
type rootOptions struct {
	configPath  string
	backend     string
	logLevel    string
	logFormat   string
	metricsAddr string

	cfg    cohort.Config
	logger *logging.SlogLogger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cohort",
		Short: "Balanced participant assignment for factorial studies",
		Long: `cohort assigns participants to scenarios and trial sequences.

State lives in a single node store (NATS KV, SQLite or memory). Every command
is safe to run from many processes at once.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "cohort.yaml", "YAML config file (missing file uses defaults)")
	flags.StringVar(&opts.backend, "backend", "", "override store backend (memory|nats|sqlite)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format (text|json)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	cmd.AddCommand(newParticipantCommand(opts))
	cmd.AddCommand(newAssignCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newTaskOrderCommand(opts))
	cmd.AddCommand(newCatalogCommand(opts))
	cmd.AddCommand(newSimulateCommand(opts))

	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := cohort.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.backend != "" {
		cfg.Store.Backend = o.backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
	if err != nil {
		return fmt.Errorf("invalid logging flags: %w", err)
	}

	o.cfg = cfg
	o.logger = logger

	return nil
}
