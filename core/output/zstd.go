package output

import (
	"fmt"
	"io"
	"time"

	"github.com/fbz-tec/pgxserve/internal/logger"
	"github.com/klauspost/compress/zstd"
)

func newZstdWriter(w io.Writer) (io.WriteCloser, error) {
	start := time.Now()
	logger.Debug("Compressing output with zstd")
	zstdWriter, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("error creating zstd writer: %w", err)
	}
	return &compositeWriteCloser{
		Writer: zstdWriter,
		closeFunc: func() error {
			err := zstdWriter.Close()
			logger.Debug("zstd stream finalized in %v", time.Since(start))
			return err
		},
	}, nil
}
