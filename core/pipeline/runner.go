package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/fbz-tec/pgxserve/core/formatters"
	"github.com/fbz-tec/pgxserve/core/output"
	"github.com/fbz-tec/pgxserve/core/sources"
	"github.com/fbz-tec/pgxserve/internal/logger"
)

// fileBufferSize is the write buffer between the quote stage and the
// temporary file.
const fileBufferSize = 256 * 1024

// Runner executes pipeline Specs.
type Runner struct {
	timeout time.Duration
	charset string
	log     logger.Logger
}

// NewRunner returns a Runner. A zero timeout lets queries run until the
// caller's context ends. charset names the encoding of the source output.
func NewRunner(timeout time.Duration, charset string) *Runner {
	return &Runner{timeout: timeout, charset: charset, log: logger.With("runner")}
}

func (r *Runner) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

// Run executes a Buffered spec to completion into its temporary file.
//
// A source that fails after it started (non-zero client exit, failed COPY)
// is logged and leaves whatever it produced in the file. Run fails when the
// source cannot be started, the file cannot be written or ctx ends first.
func (r *Runner) Run(ctx context.Context, spec *Spec) error {
	if spec.Spool == nil {
		return fmt.Errorf("pipeline %s has no output file", spec.Mode)
	}

	ctx, cancel := r.context(ctx)
	defer cancel()

	start := time.Now()
	src, err := r.open(ctx, spec)
	if err != nil {
		return err
	}

	// The file was reserved by the builder; never recreate it here.
	f, err := os.OpenFile(spec.Spool.Path(), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		src.Close()
		if errors.Is(err, fs.ErrNotExist) {
			r.log.Warn("[%s] Output file %s disappeared before the query ran", spec.ID, spec.Spool.Path())
			return nil
		}
		return fmt.Errorf("unable to open output file: %w", err)
	}
	defer f.Close()

	sink := &countingWriter{w: f}
	out, err := output.NewWriter(sink, output.OutputConfig{
		Compression: spec.Compression,
		EntryName:   spec.EntryName,
		BufferSize:  fileBufferSize,
	})
	if err != nil {
		src.Close()
		return err
	}

	qw := formatters.NewQuoteWriter(out)
	dst := &errWriter{w: qw}
	n, copyErr := io.Copy(dst, src)

	if dst.err == nil {
		dst.err = qw.Close()
	}
	if err := out.Close(); err != nil && dst.err == nil {
		dst.err = err
	}
	srcErr := src.Close()

	if ctx.Err() != nil {
		return fmt.Errorf("export %s aborted after %s: %w", spec.ID, time.Since(start).Round(time.Millisecond), ctx.Err())
	}
	if dst.err != nil {
		return fmt.Errorf("unable to write output file: %w", dst.err)
	}
	if copyErr != nil && srcErr == nil {
		srcErr = copyErr
	}
	if srcErr != nil {
		r.log.Warn("[%s] %s ended with an error, output may be incomplete: %s",
			spec.ID, spec.Source.Name(), logger.Mask(srcErr.Error()))
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("unable to close output file: %w", err)
	}

	r.log.Debug("[%s] Wrote %d bytes (%d on disk) in %s", spec.ID, n, sink.n, time.Since(start).Round(time.Millisecond))
	return nil
}

// Start launches a Streaming spec and returns its live, quoted output.
// Closing the stream waits for the source and reports how it ended.
func (r *Runner) Start(ctx context.Context, spec *Spec) (io.ReadCloser, error) {
	ctx, cancel := r.context(ctx)

	src, err := r.open(ctx, spec)
	if err != nil {
		cancel()
		return nil, err
	}

	return &liveStream{
		Reader: formatters.NewQuoteReader(src),
		src:    src,
		cancel: cancel,
	}, nil
}

func (r *Runner) open(ctx context.Context, spec *Spec) (io.ReadCloser, error) {
	r.log.Debug("[%s] Starting %s", spec.ID, logger.Mask(spec.String()))

	src, err := spec.Source.Open(ctx, spec.Query, sources.OpenOptions{MergeStderr: spec.MergeStderr})
	if err != nil {
		return nil, fmt.Errorf("unable to start %s: %w", spec.Source.Name(), err)
	}
	decoded, err := sources.Decode(src, r.charset)
	if err != nil {
		src.Close()
		return nil, err
	}
	return decoded, nil
}

type liveStream struct {
	io.Reader
	src    io.Closer
	cancel context.CancelFunc
}

func (l *liveStream) Close() error {
	err := l.src.Close()
	l.cancel()
	return err
}

// errWriter remembers the first write error so that it can be told apart
// from a read error returned by the same io.Copy.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil && e.err == nil {
		e.err = err
	}
	return n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
