package pipeline

import (
	"fmt"
	"strings"

	"github.com/fbz-tec/pgxserve/core/sources"
)

// Mode selects how an export is delivered.
type Mode string

const (
	// Buffered runs the query to completion into a temporary file before
	// any body byte is sent, so the response carries a Content-length.
	Buffered Mode = "buffered"
	// Streaming sends rows as the source produces them.
	Streaming Mode = "streaming"
)

// ParseMode parses a mode name. An empty name means Buffered.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Buffered:
		return Buffered, nil
	case Streaming:
		return Streaming, nil
	default:
		return "", fmt.Errorf("invalid mode %q (allowed: %s, %s)", s, Buffered, Streaming)
	}
}

// Spec describes one export pipeline: a source stage, the CSV quote
// stage and, for Buffered exports, the temporary output file.
type Spec struct {
	ID          string
	Query       string
	Mode        Mode
	Source      sources.Source
	Stages      []sources.Stage
	Spool       *Spool
	MergeStderr bool
	Compression string
	EntryName   string
}

// TempPath returns the temporary output path, or "" for Streaming exports.
func (s *Spec) TempPath() string {
	if s.Spool == nil {
		return ""
	}
	return s.Spool.Path()
}

// String renders the pipeline for logs. Query text is shortened.
func (s *Spec) String() string {
	parts := make([]string, 0, len(s.Stages))
	for _, st := range s.Stages {
		parts = append(parts, loggable(st).String())
	}
	out := strings.Join(parts, " | ")
	if p := s.TempPath(); p != "" {
		out += " > " + p
	}
	return out
}

const maxLoggedArg = 80

// connectionFlags are client arguments whose values stay out of logs.
var connectionFlags = []string{"--host=", "--port=", "--username=", "--user=", "--dbname=", "--database="}

// loggable hides connection settings and shortens long arguments.
func loggable(st sources.Stage) sources.Stage {
	args := make([]string, len(st.Args))
	for i, a := range st.Args {
		for _, f := range connectionFlags {
			if strings.HasPrefix(a, f) {
				a = f + "***"
				break
			}
		}
		if len(a) > maxLoggedArg {
			a = a[:maxLoggedArg] + "..."
		}
		args[i] = a
	}
	return sources.Stage{Name: st.Name, Args: args}
}
