package output

import (
	"io"
	"time"

	"github.com/fbz-tec/pgxserve/internal/logger"
	"github.com/pierrec/lz4/v4"
)

func newLz4Writer(w io.Writer) io.WriteCloser {
	start := time.Now()
	logger.Debug("Compressing output with lz4")
	lz4Writer := lz4.NewWriter(w)
	return &compositeWriteCloser{
		Writer: lz4Writer,
		closeFunc: func() error {
			err := lz4Writer.Close()
			logger.Debug("lz4 stream finalized in %v", time.Since(start))
			return err
		},
	}
}
