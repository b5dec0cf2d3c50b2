package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// Spool is the temporary file a Buffered export is written to.
// Release deletes it at most once, however many times it is called.
type Spool struct {
	path   string
	unlink bool

	once sync.Once
	err  error
}

// NewSpool reserves a new, uniquely named file in dir.
func NewSpool(dir, id string, unlink bool) (*Spool, error) {
	f, err := os.CreateTemp(dir, "pgxserve-"+id+"-*.csv")
	if err != nil {
		return nil, fmt.Errorf("unable to create temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("unable to create temporary file: %w", err)
	}
	return &Spool{path: f.Name(), unlink: unlink}, nil
}

func (s *Spool) Path() string { return s.path }

// Release deletes the file unless unlinking is disabled. A file that is
// already gone is not an error.
func (s *Spool) Release() error {
	s.once.Do(func() {
		if !s.unlink {
			return
		}
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.err = err
		}
	})
	return s.err
}
