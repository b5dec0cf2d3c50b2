package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fbz-tec/pgxserve/core/config"
	"github.com/fbz-tec/pgxserve/core/db"
	"github.com/fbz-tec/pgxserve/core/exporters"
	"github.com/fbz-tec/pgxserve/core/sources"
	"github.com/fbz-tec/pgxserve/internal/logger"
	"github.com/fbz-tec/pgxserve/internal/version"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
	quiet      bool
	// Connection flags
	dbHost     string
	dbPort     int
	dbUser     string
	dbName     string
	dbPassword string
	sourceName string
)

var rootCmd = &cobra.Command{
	Use:   "pgxserve",
	Short: "Serve database query results as CSV downloads",
	Long: `pgxserve runs SQL queries through psql, mysql or PostgreSQL COPY and
delivers the result as a CSV file, over HTTP or into a local file.

Delivery modes:
 • buffered   run the query to completion, then send the file with its size
 • streaming  send rows as the database produces them`,
	Example: `  # Serve the exports listed in a config file
  pgxserve serve -c exports.yaml

  # One-shot export into a local file
  pgxserve export -s "SELECT * FROM users" -o users.csv

  # Stream a large table through PostgreSQL COPY, compressed
  pgxserve export --source copy -F events.sql -o events.csv --mode streaming -z zstd`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose && quiet {
			return errors.New("cannot use --verbose and --quiet flags together")
		}
		if quiet {
			logger.SetQuiet(true)
			logger.SetVerbose(false)
		} else {
			logger.SetVerbose(verbose)
			if verbose {
				logger.Debug("Verbose mode enabled")
			}
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false

	flags.StringVarP(&configFile, "config", "c", "", "YAML configuration file (overrides .env and environment)")

	// Connection flags (PostgreSQL-compatible)
	flags.StringVarP(&dbHost, "host", "H", "", "Database host (overrides config)")
	flags.IntVarP(&dbPort, "port", "P", 0, "Database port (overrides config)")
	flags.StringVarP(&dbUser, "user", "u", "", "Database username (overrides config)")
	flags.StringVarP(&dbName, "database", "d", "", "Database name (overrides config)")
	flags.StringVarP(&dbPassword, "password", "p", "", "Database password (overrides config)")
	flags.StringVar(&sourceName, "source", "", "Row source: psql, mysql or copy (overrides config)")

	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output with detailed information")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Enable quiet mode: only display error messages")

	rootCmd.AddCommand(serveCmd, exportCmd, versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	logger.Debug("Initializing pgxserve execution environment")
	logger.Debug("Version: %s, Build: %s, Commit: %s", version.AppVersion, version.BuildTime, version.GitCommit)

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return config.Config{}, err
	}

	if !verbose && !quiet {
		logger.SetLevel(cfg.LogLevel)
	}

	if dbHost != "" {
		cfg.DBHost = dbHost
		logger.Debug("Overriding DB host from flag")
	}
	if cmd.Flags().Changed("port") {
		cfg.DBPort = dbPort
		logger.Debug("Overriding DB port from flag")
	}
	if dbUser != "" {
		cfg.DBUser = dbUser
		logger.Debug("Overriding DB user from flag")
	}
	if dbName != "" {
		cfg.DBName = dbName
		logger.Debug("Overriding DB name from flag")
	}
	if dbPassword != "" {
		cfg.DBPass = dbPassword
		logger.Debug("Overriding DB password from flag (hidden)")
	}
	if sourceName != "" {
		cfg.Source = sourceName
		logger.Debug("Overriding source from flag: %s", sourceName)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("configuration error: %w", err)
	}
	if !sources.ValidCharset(cfg.ClientCharset) {
		return config.Config{}, fmt.Errorf("configuration error: unsupported EXPORT_CLIENT_CHARSET %q", cfg.ClientCharset)
	}

	logger.Debug("Configuration loaded: driver=%s source=%s read-only=%v", cfg.DBDriver, cfg.ResolvedSource(), cfg.ReadOnly)
	return cfg, nil
}

// newExporter builds the configured source and the Exporter around it.
// The returned store is nil unless the source reads through the native
// driver; the caller closes it.
func newExporter(ctx context.Context, cfg config.Config, observer exporters.Observer) (*exporters.Exporter, db.Store, error) {
	name := cfg.ResolvedSource()

	var store db.Store
	if sources.NeedsStore(name) {
		var opts []db.Option
		if cfg.ReadOnly {
			opts = append(opts, db.WithReadOnly())
		}
		pg := db.NewPgStore(cfg.GetConnectionString(), opts...)
		if err := pg.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store = pg
	}

	src, err := sources.Get(name, cfg, store)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}

	return exporters.New(cfg, src, observer), store, nil
}

func readSQLFromFile(filepath string) (string, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return "", fmt.Errorf("unable to read file: %w", err)
	}
	return string(content), nil
}
