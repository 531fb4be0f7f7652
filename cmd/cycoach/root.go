package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cg-ch/cycoach/internal/config"
	"github.com/cg-ch/cycoach/internal/logging"
)

// rootOptions holds global flags and the state loaded from them
type rootOptions struct {
	configPath string
	vaultPath  string
	dbPath     string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "cycoach",
		Short: "Local memory engine for the cycoach coaching assistant",
		Long: `cycoach keeps a searchable memory of a markdown vault of training notes,
journal entries and plans.

Notes are embedded and stored in a local SQLite database. Search ranks them
by combining semantic similarity with BM25 keyword relevance.

Examples:
  # Ingest new and modified notes
  cycoach ingest ~/vault

  # Search from the terminal
  cycoach search "how did the knee feel after intervals"

  # Serve memory to a chat front-end over MCP, re-ingesting on change
  cycoach serve --watch`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (defaults to ./cycoach.yaml or ~/.cycoach/cycoach.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.vaultPath, "vault", "", "Vault directory (overrides vault_path)")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides db_path)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides log.level)")

	rootCmd.AddCommand(
		newIngestCmd(opts),
		newSearchCmd(opts),
		newServeCmd(opts),
		newWatchCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

// load reads configuration, applies flag overrides and builds the logger
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	if o.vaultPath != "" {
		cfg.VaultPath = o.vaultPath
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return err
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("configuring logger: %w", err)
	}
	for _, warning := range warnings {
		logger.Warn().Msg(warning)
	}

	o.cfg = cfg
	o.logger = logger
	return nil
}

// vaultArg returns the vault from args[0] or the configured vault
func (o *rootOptions) vaultArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return o.cfg.VaultPath
}
