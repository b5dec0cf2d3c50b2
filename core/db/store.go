package db

import (
	"context"
	"io"
)

// Store defines the interface for database operations.
// Implementations should handle connection management and must be safe
// for concurrent use by independent exports.
type Store interface {
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error
	// Columns returns the result column names of sql without running it.
	Columns(ctx context.Context, sql string) ([]string, error)
	// CopyTo runs a COPY ... TO STDOUT statement and streams its output to w.
	CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error)
}
