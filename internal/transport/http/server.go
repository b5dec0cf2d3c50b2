package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fbz-tec/pgxserve/core/config"
	"github.com/fbz-tec/pgxserve/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

const shutdownTimeout = 30 * time.Second

// Server is the export HTTP service.
type Server struct {
	cfg     config.Config
	exports *ExportHandler
	health  *HealthHandler
	metrics http.Handler
	log     logger.Logger
}

// NewServer wires the handlers. pinger and metrics may be nil.
func NewServer(cfg config.Config, service ExportService, pinger Pinger, metrics http.Handler) *Server {
	var checkAdhoc func(string) error
	if cfg.AdhocReadOnly {
		checkAdhoc = readOnlyCheck(cfg.DBDriver)
	}
	return &Server{
		cfg:     cfg,
		exports: NewExportHandler(service, cfg.Exports, checkAdhoc),
		health:  NewHealthHandler(pinger),
		metrics: metrics,
		log:     logger.With("http"),
	}
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.log))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderError(w, r, http.StatusNotFound, errNotFound(r.URL.Path))
	})

	r.Get("/healthz", s.health.Health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/exports", func(r chi.Router) {
		r.Get("/", s.exports.List)
		r.Get("/{name}", s.exports.Run)
	})
	if s.cfg.AllowAdhoc {
		r.With(render.SetContentType(render.ContentTypeJSON)).Post("/export", s.exports.Adhoc)
	}

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// Exports in flight get shutdownTimeout to finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: streaming exports last as long as the query.
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Listening on %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down, waiting up to %s for running exports", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func errNotFound(what string) error {
	return fmt.Errorf("not found: %s", what)
}

func errBadBody(err error) error {
	return fmt.Errorf("invalid request body: %w", err)
}
