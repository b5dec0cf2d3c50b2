package exporters

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrEmptyResult is wrapped by a MissingOutputError when empty output is
// treated as a failure.
var ErrEmptyResult = errors.New("query produced no output")

// MissingOutputError reports a Buffered export whose output file could not
// be used. It is returned before any header or body byte is written.
type MissingOutputError struct {
	Path string
	Err  error
}

// Error never includes the temporary path; use Path or Unwrap for logs.
func (e *MissingOutputError) Error() string {
	switch {
	case e.Err == nil:
		return "export output unavailable"
	case errors.Is(e.Err, ErrEmptyResult):
		return "export output unavailable: " + ErrEmptyResult.Error()
	case errors.Is(e.Err, fs.ErrNotExist):
		return "export output unavailable: output file missing"
	default:
		return "export output unavailable: output file unreadable"
	}
}

func (e *MissingOutputError) Unwrap() error { return e.Err }

// TransferError reports a failure while the body was being sent. The
// response is already committed; the client receives a truncated body.
type TransferError struct {
	Mode    Mode
	Written int64
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s transfer failed after %d bytes: %v", e.Mode, e.Written, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// CleanupWarning reports a temporary file that could not be deleted. It is
// logged and counted but never returned to the caller.
type CleanupWarning struct {
	Path string
	Err  error
}

func (e *CleanupWarning) Error() string {
	return fmt.Sprintf("unable to delete temporary file %s: %v", e.Path, e.Err)
}

func (e *CleanupWarning) Unwrap() error { return e.Err }
