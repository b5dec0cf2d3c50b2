package output

import (
	"archive/zip"
	"fmt"
	"io"
	"time"

	"github.com/fbz-tec/pgxserve/internal/logger"
)

func newZipWriter(w io.Writer, name string) (io.WriteCloser, error) {
	start := time.Now()
	zipWriter := zip.NewWriter(w)
	entryName := EntryName(name)
	logger.Debug("Creating zip entry: %s", entryName)
	entryWriter, err := zipWriter.CreateHeader(&zip.FileHeader{
		Name:     entryName,
		Method:   zip.Deflate,
		Modified: start,
	})
	if err != nil {
		zipWriter.Close()
		return nil, fmt.Errorf("error creating zip entry: %w", err)
	}
	return &compositeWriteCloser{
		Writer: entryWriter,
		closeFunc: func() error {
			err := zipWriter.Close()
			logger.Debug("zip archive finalized in %v", time.Since(start))
			return err
		},
	}, nil
}
