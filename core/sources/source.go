package sources

import (
	"context"
	"io"
	"strings"
)

// Source runs a query and produces its result as tab-separated lines,
// one row per line, starting with a header line of column names.
type Source interface {
	Name() string
	// Stage describes how query will be run. It never carries secrets.
	Stage(query string) Stage
	// Open starts the query. The returned reader is single-pass; Close
	// releases the process or connection and reports how it ended.
	Open(ctx context.Context, query string, opts OpenOptions) (io.ReadCloser, error)
}

// OpenOptions tune a single Open call.
type OpenOptions struct {
	// MergeStderr interleaves diagnostics into the returned stream.
	MergeStderr bool
}

// Stage is one step of an export pipeline as it appears in logs.
type Stage struct {
	Name string
	Args []string
}

func (s Stage) String() string {
	if len(s.Args) == 0 {
		return s.Name
	}
	return s.Name + " " + strings.Join(s.Args, " ")
}
