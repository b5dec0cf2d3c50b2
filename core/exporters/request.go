package exporters

import (
	"net/http"
	"strings"

	"github.com/fbz-tec/pgxserve/core/output"
	"github.com/fbz-tec/pgxserve/core/pipeline"
	"github.com/fbz-tec/pgxserve/core/validation"
)

// Mode selects Buffered or Streaming delivery.
type Mode = pipeline.Mode

const (
	Buffered  = pipeline.Buffered
	Streaming = pipeline.Streaming
)

// ParseMode parses a mode name; an empty name means Buffered.
func ParseMode(s string) (Mode, error) {
	return pipeline.ParseMode(s)
}

// Request describes one export.
type Request struct {
	Query       string `json:"query" validate:"required"`
	Filename    string `json:"filename" validate:"required"`
	Mode        Mode   `json:"mode" validate:"omitempty,oneof=buffered streaming"`
	Compression string `json:"compression" validate:"omitempty,oneof=none gzip zip zstd lz4"`
}

// Normalize fills defaults and canonicalizes enum values.
func (r Request) Normalize() Request {
	r.Mode = Mode(strings.ToLower(strings.TrimSpace(string(r.Mode))))
	if r.Mode == "" {
		r.Mode = Buffered
	}
	r.Compression = output.Normalize(r.Compression)
	return r
}

// Validate reports the first invalid field as a *validation.ValidationError.
func (r Request) Validate() error {
	if err := validation.ValidateStruct(r); err != nil {
		return err
	}
	return validation.ValidateQuery(r.Query)
}

// Sink receives an export: headers first, then the body.
// http.ResponseWriter satisfies it.
type Sink interface {
	Header() http.Header
	Write(p []byte) (int, error)
}
