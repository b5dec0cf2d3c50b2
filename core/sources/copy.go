package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fbz-tec/pgxserve/core/config"
	"github.com/fbz-tec/pgxserve/core/db"
	"github.com/fbz-tec/pgxserve/internal/logger"
	"golang.org/x/sync/errgroup"
)

// copySource reads rows with PostgreSQL COPY through the native driver.
// COPY text format escapes tabs, newlines and backslashes inside values,
// so its output is already one row per line.
type copySource struct {
	store db.Store
	log   logger.Logger
}

func newCopySource(_ config.Config, store db.Store) (Source, error) {
	if store == nil {
		return nil, errors.New("copy source requires a database connection")
	}
	return &copySource{store: store, log: logger.With("copy")}, nil
}

func (s *copySource) Name() string { return config.SourceCopy }

func (s *copySource) Stage(query string) Stage {
	return Stage{Name: "COPY", Args: []string{copyStatement(query)}}
}

func (s *copySource) Open(ctx context.Context, query string, opts OpenOptions) (io.ReadCloser, error) {
	q := trimQuery(query)
	columns, err := s.store.Columns(ctx, q)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.produce(gctx, pw, q, columns)
		if err != nil && opts.MergeStderr {
			// Surface the failure in the stream itself, like a client's stderr.
			fmt.Fprintf(pw, "ERROR: %v\n", err)
			pw.Close()
			return err
		}
		pw.CloseWithError(err)
		return err
	})

	return &producerReader{r: pr, wait: g.Wait}, nil
}

func (s *copySource) produce(ctx context.Context, w io.Writer, query string, columns []string) error {
	if _, err := io.WriteString(w, strings.Join(columns, "\t")+"\n"); err != nil {
		return err
	}
	rows, err := s.store.CopyTo(ctx, w, copyStatement(query))
	if err != nil {
		return err
	}
	s.log.Debug("COPY produced %d rows", rows)
	return nil
}

func copyStatement(query string) string {
	return "COPY (" + trimQuery(query) + ") TO STDOUT"
}

// trimQuery drops trailing terminators that are invalid inside COPY (...).
func trimQuery(query string) string {
	return strings.TrimRight(strings.TrimSpace(query), "; \t\r\n")
}

// producerReader is the read side of a goroutine-fed pipe.
type producerReader struct {
	r    *io.PipeReader
	wait func() error

	once sync.Once
	err  error
}

func (p *producerReader) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *producerReader) Close() error {
	p.once.Do(func() {
		p.r.Close()
		p.err = p.wait()
	})
	return p.err
}

func init() {
	MustRegister(config.SourceCopy, newCopySource)
}
