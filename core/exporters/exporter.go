package exporters

import (
	"context"
	"errors"
	"time"

	"github.com/fbz-tec/pgxserve/core/config"
	"github.com/fbz-tec/pgxserve/core/output"
	"github.com/fbz-tec/pgxserve/core/pipeline"
	"github.com/fbz-tec/pgxserve/core/sources"
	"github.com/fbz-tec/pgxserve/core/validation"
	"github.com/fbz-tec/pgxserve/internal/logger"
	"github.com/google/uuid"
)

// Outcomes reported to an Observer.
const (
	OutcomeOK        = "ok"
	OutcomeInvalid   = "invalid"
	OutcomeMissing   = "missing_output"
	OutcomeTransfer  = "transfer_error"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Observer is notified about finished exports.
type Observer interface {
	ExportFinished(mode Mode, outcome string, bytes int64, elapsed time.Duration)
	CleanupFailed()
}

type nopObserver struct{}

func (nopObserver) ExportFinished(Mode, string, int64, time.Duration) {}
func (nopObserver) CleanupFailed()                                    {}

// Exporter runs a query through a source, converts its output to CSV and
// delivers it to a Sink. It holds no per-request state and is safe for
// concurrent use.
type Exporter struct {
	builder     *pipeline.Builder
	runner      *pipeline.Runner
	failOnEmpty bool
	observer    Observer
	log         logger.Logger
}

// New returns an Exporter for source configured by cfg. observer may be nil.
func New(cfg config.Config, source sources.Source, observer Observer) *Exporter {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Exporter{
		builder:     pipeline.NewBuilder(source, cfg.ResolvedTempDir(), cfg.Unlink),
		runner:      pipeline.NewRunner(cfg.QueryTimeout, cfg.ClientCharset),
		failOnEmpty: cfg.FailOnEmpty,
		observer:    observer,
		log:         logger.With("export"),
	}
}

// Export validates req, runs the query and writes the CSV document to sink.
//
// Errors returned before anything was written to sink are
// *validation.ValidationError, *MissingOutputError or a pipeline failure;
// after the first body byte only *TransferError is returned.
func (e *Exporter) Export(ctx context.Context, sink Sink, req Request) (err error) {
	start := time.Now()
	req = req.Normalize()
	id := uuid.NewString()[:8]

	var written int64
	defer func() {
		e.observer.ExportFinished(req.Mode, outcome(ctx, err), written, time.Since(start))
	}()

	if err := req.Validate(); err != nil {
		e.log.Debug("[%s] Rejected request: %v", id, err)
		return err
	}

	spec, err := e.builder.Build(req.Query, req.Mode, pipeline.BuildOptions{
		ID:          id,
		Compression: req.Compression,
		EntryName:   output.EntryName(req.Filename),
	})
	if err != nil {
		return err
	}
	if spec.Spool != nil {
		defer e.release(id, spec.Spool)
	}

	filename := output.FileName(req.Filename, req.Compression)
	headers := NewHeaders(filename, output.ContentType(req.Compression))
	e.log.Info("[%s] Starting %s export %s", id, req.Mode, filename)

	switch req.Mode {
	case Buffered:
		if err := e.runner.Run(ctx, spec); err != nil {
			return err
		}
		written, err = e.sendFile(sink, headers, spec)
	case Streaming:
		headers.Apply(sink)
		rc, serr := e.runner.Start(ctx, spec)
		if serr != nil {
			headers.Clear(sink.Header())
			return serr
		}
		written, err = e.sendStream(sink, rc, spec)
	}
	if err != nil {
		return err
	}

	e.log.Success("[%s] Export completed: %d bytes in %s", id, written, time.Since(start).Round(time.Millisecond))
	return nil
}

// release deletes the temporary file. A failure is logged and counted.
func (e *Exporter) release(id string, spool *pipeline.Spool) {
	if err := spool.Release(); err != nil {
		warn := &CleanupWarning{Path: spool.Path(), Err: err}
		e.log.Warn("[%s] %v", id, warn)
		e.observer.CleanupFailed()
	}
}

func outcome(ctx context.Context, err error) string {
	var (
		missing  *MissingOutputError
		transfer *TransferError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, validation.ErrValidation):
		return OutcomeInvalid
	case errors.As(err, &missing):
		return OutcomeMissing
	case errors.As(err, &transfer):
		return OutcomeTransfer
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
