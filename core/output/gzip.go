package output

import (
	"compress/gzip"
	"io"
	"time"

	"github.com/fbz-tec/pgxserve/internal/logger"
)

func newGzipWriter(w io.Writer) io.WriteCloser {
	start := time.Now()
	logger.Debug("Compressing output with gzip")
	gzipWriter := gzip.NewWriter(w)
	return &compositeWriteCloser{
		Writer: gzipWriter,
		closeFunc: func() error {
			err := gzipWriter.Close()
			logger.Debug("gzip stream finalized in %v", time.Since(start))
			return err
		},
	}
}
