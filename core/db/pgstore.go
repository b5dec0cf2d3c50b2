package db

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fbz-tec/pgxserve/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

const connectTimeout = 10 * time.Second

// PgStore represents a pooled PostgreSQL database store.
type PgStore struct {
	dsn      string
	readOnly bool
	pool     *pgxpool.Pool
	log      logger.Logger
}

// Option configures a PgStore.
type Option func(*PgStore)

// WithReadOnly makes every pooled session default to read-only transactions.
func WithReadOnly() Option {
	return func(s *PgStore) { s.readOnly = true }
}

// NewPgStore creates a new PostgreSQL store instance with the given DSN.
func NewPgStore(dsn string, opts ...Option) *PgStore {
	s := &PgStore{dsn: dsn, log: logger.With("db")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect establishes the connection pool to the PostgreSQL database.
// Returns an error if the DSN is invalid or if ping fails.
func (s *PgStore) Connect(ctx context.Context) error {
	if s.pool != nil {
		return nil // already connected
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	s.log.Debug("Connecting to database (timeout %v, read-only %v)", connectTimeout, s.readOnly)

	cfg, err := s.poolConfig()
	if err != nil {
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}

	s.log.Debug("Connection pool created, verifying connectivity (ping)...")

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("unable to ping database: %w", err)
	}

	s.log.Debug("Database ping successful")
	s.pool = pool
	return nil
}

func (s *PgStore) poolConfig() (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(s.dsn)
	if err != nil {
		// pgx errors can quote the DSN
		return nil, fmt.Errorf("invalid database connection string")
	}
	if s.readOnly {
		cfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	}
	return cfg, nil
}

// Close closes every pooled connection.
func (s *PgStore) Close() error {
	if s.pool != nil {
		s.log.Debug("Closing database connection pool...")
		s.pool.Close()
		s.pool = nil
		s.log.Debug("Database connection pool closed")
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *PgStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("database not connected")
	}
	return s.pool.Ping(ctx)
}

// Columns prepares sql on a pooled connection and returns its field names.
func (s *PgStore) Columns(ctx context.Context, sql string) ([]string, error) {
	if s.pool == nil {
		s.log.Debug("No active database connection; query cannot be described")
		return nil, fmt.Errorf("database not connected")
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to acquire connection: %w", err)
	}
	defer conn.Release()

	desc, err := conn.Conn().PgConn().Prepare(ctx, "", sql, nil)
	if err != nil {
		return nil, fmt.Errorf("query preparation failed: %w", err)
	}

	names := make([]string, len(desc.Fields))
	for i, fd := range desc.Fields {
		names[i] = fd.Name
	}
	return names, nil
}

// CopyTo executes a COPY ... TO STDOUT statement on a pooled connection.
// This is the native counterpart of piping a command-line client's output.
func (s *PgStore) CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error) {
	if s.pool == nil {
		s.log.Debug("No active database connection; COPY cannot be executed")
		return 0, fmt.Errorf("database not connected")
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("unable to acquire connection: %w", err)
	}
	defer conn.Release()

	s.log.Debug("Executing COPY statement...")
	startTime := time.Now()

	tag, err := conn.Conn().PgConn().CopyTo(ctx, w, sql)
	if err != nil {
		return 0, fmt.Errorf("COPY TO STDOUT failed: %w", err)
	}

	s.log.Debug("COPY completed: %d rows in %v", tag.RowsAffected(), time.Since(startTime))
	return tag.RowsAffected(), nil
}
