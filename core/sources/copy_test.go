package sources

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/fbz-tec/pgxserve/core/config"
)

type fakeStore struct {
	mu       sync.Mutex
	columns  []string
	rows     string
	colErr   error
	copyErr  error
	lastCopy string
}

func (f *fakeStore) Connect(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }
func (f *fakeStore) Ping(context.Context) error    { return nil }

func (f *fakeStore) Columns(_ context.Context, _ string) ([]string, error) {
	return f.columns, f.colErr
}

func (f *fakeStore) CopyTo(_ context.Context, w io.Writer, sql string) (int64, error) {
	f.mu.Lock()
	f.lastCopy = sql
	f.mu.Unlock()
	if _, err := io.WriteString(w, f.rows); err != nil {
		return 0, err
	}
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	return int64(strings.Count(f.rows, "\n")), nil
}

func TestCopySourceRequiresStore(t *testing.T) {
	if _, err := Get(config.SourceCopy, config.Config{}, nil); err == nil {
		t.Error("Get(copy) without a store should return error")
	}
}

func TestCopySourceOpen(t *testing.T) {
	store := &fakeStore{
		columns: []string{"id", "name"},
		rows:    "1\talice\n2\tbob\n",
	}
	src, err := Get(config.SourceCopy, config.Config{}, store)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	rc, err := src.Open(context.Background(), "SELECT id, name FROM customer;  \n", OpenOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := "id\tname\n1\talice\n2\tbob\n"
	if string(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if store.lastCopy != "COPY (SELECT id, name FROM customer) TO STDOUT" {
		t.Errorf("COPY statement = %q", store.lastCopy)
	}
}

func TestCopySourceColumnsError(t *testing.T) {
	boom := errors.New(`relation "missing" does not exist`)
	src, _ := Get(config.SourceCopy, config.Config{}, &fakeStore{colErr: boom})

	if _, err := src.Open(context.Background(), "SELECT * FROM missing", OpenOptions{}); !errors.Is(err, boom) {
		t.Errorf("Open() error = %v, want %v", err, boom)
	}
}

func TestCopySourceCopyError(t *testing.T) {
	boom := errors.New("canceling statement due to statement timeout")

	t.Run("error ends the stream", func(t *testing.T) {
		src, _ := Get(config.SourceCopy, config.Config{}, &fakeStore{
			columns: []string{"id"},
			rows:    "1\n",
			copyErr: boom,
		})
		rc, err := src.Open(context.Background(), "SELECT 1", OpenOptions{})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		out, err := io.ReadAll(rc)
		if !errors.Is(err, boom) {
			t.Errorf("ReadAll() error = %v, want %v", err, boom)
		}
		if string(out) != "id\n1\n" {
			t.Errorf("partial output = %q", out)
		}
		if err := rc.Close(); !errors.Is(err, boom) {
			t.Errorf("Close() error = %v, want %v", err, boom)
		}
	})

	t.Run("error merged into the stream", func(t *testing.T) {
		src, _ := Get(config.SourceCopy, config.Config{}, &fakeStore{
			columns: []string{"id"},
			rows:    "1\n",
			copyErr: boom,
		})
		rc, err := src.Open(context.Background(), "SELECT 1", OpenOptions{MergeStderr: true})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		out, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		want := "id\n1\nERROR: " + boom.Error() + "\n"
		if string(out) != want {
			t.Errorf("output = %q, want %q", out, want)
		}
		rc.Close()
	})
}

func TestCopySourceEarlyClose(t *testing.T) {
	src, _ := Get(config.SourceCopy, config.Config{}, &fakeStore{
		columns: []string{"id"},
		rows:    strings.Repeat("1\n", 100000),
	})
	rc, err := src.Open(context.Background(), "SELECT 1", OpenOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	buf := make([]byte, 16)
	if _, err := io.ReadFull(rc, buf); err != nil {
		t.Fatalf("ReadFull() error = %v", err)
	}
	// The producer must observe the closed pipe and return.
	if err := rc.Close(); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Close() error = %v, want %v", err, io.ErrClosedPipe)
	}
}

func TestTrimQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"  SELECT 1;  ", "SELECT 1"},
		{"SELECT 1;;\n", "SELECT 1"},
		{"SELECT ';'", "SELECT ';'"},
	}
	for _, tt := range tests {
		if got := trimQuery(tt.in); got != tt.want {
			t.Errorf("trimQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
