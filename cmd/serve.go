package cmd

import (
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/fbz-tec/pgxserve/core/sources"
	"github.com/fbz-tec/pgxserve/internal/logger"
	"github.com/fbz-tec/pgxserve/internal/metrics"
	transporthttp "github.com/fbz-tec/pgxserve/internal/transport/http"
	"github.com/spf13/cobra"
)

var (
	listenAddr string
	allowAdhoc bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve configured exports over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (overrides HTTP_LISTEN)")
	serveCmd.Flags().BoolVar(&allowAdhoc, "allow-adhoc", false, "Enable POST /export for arbitrary queries")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if allowAdhoc {
		cfg.AllowAdhoc = true
	}
	if cfg.AllowAdhoc {
		logger.Warn("Ad-hoc exports are enabled: any client can run arbitrary queries")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector(nil)
	exporter, store, err := newExporter(ctx, cfg, collector)
	if err != nil {
		return err
	}

	var pinger transporthttp.Pinger
	if store != nil {
		defer store.Close()
		pinger = store
	} else if src, err := sources.Get(cfg.ResolvedSource(), cfg, nil); err == nil {
		if path := src.Stage("").Name; path != "" {
			if _, err := exec.LookPath(path); err != nil {
				logger.Warn("Database client %q not found: exports will fail until it is installed", path)
			}
		}
	}

	logger.Info("Serving %d configured export(s) with source %s", len(cfg.Exports), cfg.ResolvedSource())
	server := transporthttp.NewServer(cfg, exporter, pinger, collector.Handler())
	if err := server.ListenAndServe(ctx); err != nil {
		return err
	}
	logger.Success("Server stopped")
	return nil
}
