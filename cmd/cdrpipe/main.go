package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tollgrid/cdrpipe/internal/storage"
)

var (
	backend string
	dbPath  string
	verbose bool

	// store and logger are shared by every subcommand; opened in the
	// root PersistentPreRunE and closed in PersistentPostRun.
	store  storage.Store
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cdrpipe",
	Short: "Validate and import carrier call-detail-record exports",
	Long: `cdrpipe runs carrier CDR exports (CSV, TSV, JSON, JSONL) through the
validation pipeline: field mapping, normalization, duplicate detection,
and database integration.

Results, job progress, mapping templates, and dead-lettered records are
stored in a local SQLite database by default (see --db). Shared deployments
select PostgreSQL with --backend postgres; connection settings come from
CDRPIPE_PG_HOST, CDRPIPE_PG_PORT, CDRPIPE_PG_DATABASE, CDRPIPE_PG_USER,
CDRPIPE_PG_PASSWORD, and CDRPIPE_PG_SSLMODE.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
		} else {
			logger = zap.NewNop()
		}

		cfg := storage.ConfigFromEnv()
		if backend != "" {
			cfg.Backend = storage.Backend(backend)
		}
		if dbPath != "" {
			cfg.Path = dbPath
		}
		s, err := storage.NewStorage(context.Background(), cfg)
		if err != nil {
			return fmt.Errorf("failed to open %s storage: %w", cfg.Backend, err)
		}
		store = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "storage backend: sqlite or postgres (default sqlite)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite database (default cdrpipe.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
