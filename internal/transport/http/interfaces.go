package http

import (
	"context"

	"github.com/fbz-tec/pgxserve/core/exporters"
)

// ExportService runs exports. *exporters.Exporter implements it.
type ExportService interface {
	Export(ctx context.Context, sink exporters.Sink, req exporters.Request) error
}

// Pinger checks that the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
