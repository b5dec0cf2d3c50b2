package exporters

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"sync"

	"github.com/fbz-tec/pgxserve/core/output"
	"github.com/fbz-tec/pgxserve/core/pipeline"
	"github.com/fbz-tec/pgxserve/internal/logger"
)

// chunkSize bounds every copy into the sink.
const chunkSize = 256 * 1024

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, chunkSize)
		return &b
	},
}

// sendFile sends the finished temporary file with its Content-length.
// Nothing is written to sink if the file cannot be used.
func (e *Exporter) sendFile(sink Sink, headers *Headers, spec *pipeline.Spec) (int64, error) {
	path := spec.TempPath()

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.log.Error("[%s] Output file %s is missing", spec.ID, path)
		}
		return 0, &MissingOutputError{Path: path, Err: err}
	}
	if info.Size() == 0 && e.failOnEmpty {
		return 0, &MissingOutputError{Path: path, Err: ErrEmptyResult}
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, &MissingOutputError{Path: path, Err: err}
	}
	defer f.Close()

	headers.SetContentLength(info.Size())
	headers.Apply(sink)
	e.log.Debug("[%s] Headers: %s", spec.ID, headers)

	buf := chunkPool.Get().(*[]byte)
	defer chunkPool.Put(buf)

	n, err := io.CopyBuffer(writerOnly{sink}, f, *buf)
	if err != nil {
		return n, &TransferError{Mode: spec.Mode, Written: n, Err: err}
	}
	return n, nil
}

// sendStream copies a live source to sink as it arrives.
func (e *Exporter) sendStream(sink Sink, rc io.ReadCloser, spec *pipeline.Spec) (int64, error) {
	dst := &countingSink{w: newFlushWriter(sink)}
	out, err := output.NewWriter(dst, output.OutputConfig{
		Compression: spec.Compression,
		EntryName:   spec.EntryName,
	})
	if err != nil {
		rc.Close()
		return 0, err
	}

	buf := chunkPool.Get().(*[]byte)
	defer chunkPool.Put(buf)

	_, copyErr := io.CopyBuffer(out, rc, *buf)
	if err := out.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if err := rc.Close(); err != nil {
		e.log.Warn("[%s] %s ended with an error, stream may be incomplete: %s",
			spec.ID, spec.Source.Name(), logger.Mask(err.Error()))
	}

	if copyErr != nil {
		return dst.n, &TransferError{Mode: spec.Mode, Written: dst.n, Err: copyErr}
	}
	return dst.n, nil
}

// writerOnly hides io.ReaderFrom so that copies go through the chunk buffer.
type writerOnly struct {
	io.Writer
}

// flushWriter pushes every chunk to the client immediately when the sink
// supports it.
type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func newFlushWriter(sink Sink) io.Writer {
	f, ok := sink.(http.Flusher)
	if !ok {
		return sink
	}
	return &flushWriter{w: sink, f: f}
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil {
		fw.f.Flush()
	}
	return n, err
}

type countingSink struct {
	w io.Writer
	n int64
}

func (c *countingSink) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
