package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	None = "none"
	GZIP = "gzip"
	ZIP  = "zip"
	ZSTD = "zstd"
	LZ4  = "lz4"
)

// Compressions lists the accepted compression names.
var Compressions = []string{None, GZIP, ZIP, ZSTD, LZ4}

// OutputConfig holds configuration for an output stage.
type OutputConfig struct {
	Compression string
	// EntryName names the archive member for zip output.
	EntryName string
	// BufferSize > 0 adds a write buffer flushed on Close.
	BufferSize int
}

// NewWriter wraps w with the configured compression.
// Closing the returned writer finalizes the compressed stream but never closes w.
// Supports various compression formats: none, gzip, zip, zstd, lz4.
func NewWriter(w io.Writer, cfg OutputConfig) (io.WriteCloser, error) {
	var buffered io.WriteCloser
	if cfg.BufferSize > 0 {
		buffered = newBufferedWriteCloser(nopWriteCloser{w}, cfg.BufferSize)
		w = buffered
	}
	var (
		wc  io.WriteCloser
		err error
	)
	switch Normalize(cfg.Compression) {
	case None:
		wc = nopWriteCloser{w}
	case GZIP:
		wc = newGzipWriter(w)
	case ZIP:
		wc, err = newZipWriter(w, cfg.EntryName)
	case ZSTD:
		wc, err = newZstdWriter(w)
	case LZ4:
		wc = newLz4Writer(w)
	default:
		return nil, fmt.Errorf("unsupported compression type %q", cfg.Compression)
	}
	if err != nil {
		return nil, err
	}
	if buffered != nil {
		// flush the buffer after the compressor has written its trailer
		return &compositeWriteCloser{
			Writer: wc,
			closeFunc: func() error {
				err := wc.Close()
				if ferr := buffered.Close(); ferr != nil && err == nil {
					err = ferr
				}
				return err
			},
		}, nil
	}
	return wc, nil
}

// Normalize lower-cases a compression name; empty means none.
func Normalize(compression string) string {
	c := strings.ToLower(strings.TrimSpace(compression))
	if c == "" {
		return None
	}
	return c
}

// Valid reports whether compression names a supported format.
func Valid(compression string) bool {
	c := Normalize(compression)
	for _, known := range Compressions {
		if c == known {
			return true
		}
	}
	return false
}

// ContentType returns the media type of a CSV document after compression.
func ContentType(compression string) string {
	switch Normalize(compression) {
	case GZIP:
		return "application/gzip"
	case ZIP:
		return "application/zip"
	case ZSTD:
		return "application/zstd"
	case LZ4:
		return "application/x-lz4"
	default:
		return "text/csv"
	}
}

// FileName returns the download name of a CSV document after compression.
// gzip, zstd and lz4 append their suffix, zip replaces the extension.
func FileName(name, compression string) string {
	lower := strings.ToLower(name)
	switch Normalize(compression) {
	case GZIP:
		if !strings.HasSuffix(lower, ".gz") {
			name += ".gz"
		}
	case ZSTD:
		if !strings.HasSuffix(lower, ".zst") {
			name += ".zst"
		}
	case LZ4:
		if !strings.HasSuffix(lower, ".lz4") {
			name += ".lz4"
		}
	case ZIP:
		name = fixExtension(name, ".zip")
	}
	return name
}

// EntryName derives the zip member name from a download name.
func EntryName(name string) string {
	base := filepath.Base(name)
	lowerBase := strings.ToLower(base)

	entry := strings.TrimSuffix(lowerBase, ".zip")

	if entry == "" || entry == "." || entry == "/" {
		entry = "export"
	}

	if !strings.HasSuffix(entry, ".csv") {
		entry += ".csv"
	}

	return entry
}

func fixExtension(path, extension string) string {
	ext := filepath.Ext(path)

	if strings.ToLower(ext) != extension {
		path = path[:len(path)-len(ext)] + extension
	}
	return path
}
