package sources

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Decode converts a source stream from charset to UTF-8. An empty charset
// or any UTF-8 label returns rc unchanged.
func Decode(rc io.ReadCloser, charset string) (io.ReadCloser, error) {
	label := strings.ToLower(strings.TrimSpace(charset))
	if label == "" || label == "utf-8" || label == "utf8" {
		return rc, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported client charset %q: %w", charset, err)
	}

	return &decodedReader{
		Reader: transform.NewReader(rc, enc.NewDecoder()),
		closer: rc,
	}, nil
}

// ValidCharset reports whether Decode accepts charset.
func ValidCharset(charset string) bool {
	label := strings.ToLower(strings.TrimSpace(charset))
	if label == "" || label == "utf8" {
		return true
	}
	_, err := htmlindex.Get(label)
	return err == nil
}

type decodedReader struct {
	io.Reader
	closer io.Closer
}

func (d *decodedReader) Close() error {
	return d.closer.Close()
}
