package pipeline

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fbz-tec/pgxserve/core/sources"
	"github.com/fbz-tec/pgxserve/core/validation"
)

// fakeSource emits fixed tab-separated output.
type fakeSource struct {
	out      string
	openErr  error
	closeErr error
	// onOpen runs inside Open, before any output is produced.
	onOpen func()
	// block makes the stream wait for ctx to end.
	block bool

	mu       sync.Mutex
	lastOpts sources.OpenOptions
	opened   int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Stage(query string) sources.Stage {
	return sources.Stage{Name: "fake", Args: []string{query}}
}

func (f *fakeSource) Open(ctx context.Context, _ string, opts sources.OpenOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	f.lastOpts = opts
	f.opened++
	f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.onOpen != nil {
		f.onOpen()
	}
	var r io.Reader = strings.NewReader(f.out)
	if f.block {
		r = io.MultiReader(r, ctxReader{ctx})
	}
	return &fakeStream{Reader: r, err: f.closeErr}, nil
}

type fakeStream struct {
	io.Reader
	err error
}

func (s *fakeStream) Close() error { return s.err }

type ctxReader struct{ ctx context.Context }

func (c ctxReader) Read([]byte) (int, error) {
	<-c.ctx.Done()
	return 0, c.ctx.Err()
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: Buffered},
		{in: "buffered", want: Buffered},
		{in: " Streaming ", want: Streaming},
		{in: "chunked", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildRejectsBeforeSideEffects(t *testing.T) {
	tests := []struct {
		name  string
		query string
		mode  Mode
		opts  BuildOptions
		field string
	}{
		{name: "empty query", query: "", mode: Buffered, field: "query"},
		{name: "blank query", query: " \n\t", mode: Buffered, field: "query"},
		{name: "unknown mode", query: "SELECT 1", mode: "chunked", field: "mode"},
		{name: "unknown compression", query: "SELECT 1", mode: Buffered, opts: BuildOptions{Compression: "bzip2"}, field: "compression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := &fakeSource{}
			b := NewBuilder(src, dir, true)

			spec, err := b.Build(tt.query, tt.mode, tt.opts)
			if spec != nil {
				t.Errorf("Build() spec = %v, want nil", spec)
			}
			var verr *validation.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Build() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.field)
			}
			if names := dirEntries(t, dir); len(names) != 0 {
				t.Errorf("temporary files created on rejected input: %v", names)
			}
			if src.opened != 0 {
				t.Error("source opened on rejected input")
			}
		})
	}

	t.Run("empty query message", func(t *testing.T) {
		_, err := NewBuilder(&fakeSource{}, t.TempDir(), true).Build("", Buffered, BuildOptions{})
		if err == nil || err.Error() != "empty query" {
			t.Errorf("Build(\"\") error = %v, want \"empty query\"", err)
		}
	})
}

func TestBuildBuffered(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(&fakeSource{}, dir, true)

	spec, err := b.Build("SELECT 1", Buffered, BuildOptions{ID: "abc", Compression: "GZIP"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if spec.Spool == nil {
		t.Fatal("Buffered spec has no temporary file")
	}
	if filepath.Dir(spec.TempPath()) != dir {
		t.Errorf("TempPath() = %q, want a file in %q", spec.TempPath(), dir)
	}
	if _, err := os.Stat(spec.TempPath()); err != nil {
		t.Errorf("temporary file not reserved: %v", err)
	}
	if spec.MergeStderr {
		t.Error("Buffered spec merges stderr")
	}
	if spec.Compression != "gzip" {
		t.Errorf("Compression = %q, want gzip", spec.Compression)
	}

	var names []string
	for _, st := range spec.Stages {
		names = append(names, st.Name)
	}
	if got := strings.Join(names, ","); got != "fake,csv-quote,gzip" {
		t.Errorf("stages = %s", got)
	}
	if !strings.HasSuffix(spec.String(), "> "+spec.TempPath()) {
		t.Errorf("String() = %q", spec.String())
	}
}

func TestSpecStringHidesConnection(t *testing.T) {
	spec := &Spec{Stages: []sources.Stage{
		{Name: "psql", Args: []string{"--host=db.internal", "--port=5433", "--username=reporter", "--dbname=sales", "--no-align", "--command=SELECT 1"}},
		{Name: "mysql", Args: []string{"--user=reporter", "--database=sales"}},
	}}

	got := spec.String()
	for _, secret := range []string{"db.internal", "5433", "reporter", "sales"} {
		if strings.Contains(got, secret) {
			t.Errorf("String() = %q leaks %q", got, secret)
		}
	}
	for _, kept := range []string{"--host=***", "--no-align", "--command=SELECT 1"} {
		if !strings.Contains(got, kept) {
			t.Errorf("String() = %q, missing %q", got, kept)
		}
	}
}

func TestBuildStreaming(t *testing.T) {
	dir := t.TempDir()
	spec, err := NewBuilder(&fakeSource{}, dir, true).Build("SELECT 1", Streaming, BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if spec.Spool != nil || spec.TempPath() != "" {
		t.Errorf("Streaming spec has a temporary file: %q", spec.TempPath())
	}
	if !spec.MergeStderr {
		t.Error("Streaming spec does not merge stderr")
	}
	if names := dirEntries(t, dir); len(names) != 0 {
		t.Errorf("Streaming build created files: %v", names)
	}
}

func TestBuildConcurrentDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(&fakeSource{}, dir, true)

	const n = 32
	paths := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spec, err := b.Build("SELECT 1", Buffered, BuildOptions{ID: "same"})
			if err != nil {
				t.Errorf("Build() error = %v", err)
				return
			}
			paths[i] = spec.TempPath()
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, p := range paths {
		if seen[p] {
			t.Errorf("temporary path %q reused", p)
		}
		seen[p] = true
	}
}

func TestSpoolRelease(t *testing.T) {
	dir := t.TempDir()

	s, err := NewSpool(dir, "x", true)
	if err != nil {
		t.Fatalf("NewSpool() error = %v", err)
	}
	if err := s.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("file still exists after Release(): %v", err)
	}
	if err := s.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}

	keep, _ := NewSpool(dir, "y", false)
	keep.Release()
	if _, err := os.Stat(keep.Path()); err != nil {
		t.Errorf("unlink=false removed the file: %v", err)
	}

	gone, _ := NewSpool(dir, "z", true)
	os.Remove(gone.Path())
	if err := gone.Release(); err != nil {
		t.Errorf("Release() of a missing file error = %v", err)
	}
}

func TestNewSpoolBadDir(t *testing.T) {
	if _, err := NewSpool(filepath.Join(t.TempDir(), "missing"), "x", true); err == nil {
		t.Error("NewSpool() in a missing directory should return error")
	}
}

func buildBuffered(t *testing.T, src sources.Source, opts BuildOptions) *Spec {
	t.Helper()
	spec, err := NewBuilder(src, t.TempDir(), true).Build("SELECT 1", Buffered, opts)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return spec
}

func TestRunBuffered(t *testing.T) {
	src := &fakeSource{out: "id\tname\n1\ta\"b\n2\t\n"}
	spec := buildBuffered(t, src, BuildOptions{ID: "t1"})

	if err := NewRunner(0, "").Run(context.Background(), spec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got, err := os.ReadFile(spec.TempPath())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "\"id\",\"name\"\n\"1\",\"a\"\"b\"\n\"2\",\"\"\n"
	if string(got) != want {
		t.Errorf("file = %q, want %q", got, want)
	}
	if src.lastOpts.MergeStderr {
		t.Error("Buffered run merged stderr")
	}
}

func TestRunBufferedCompressed(t *testing.T) {
	spec := buildBuffered(t, &fakeSource{out: "a\tb\n"}, BuildOptions{Compression: "gzip"})
	if err := NewRunner(0, "").Run(context.Background(), spec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	f, _ := os.Open(spec.TempPath())
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	got, _ := io.ReadAll(zr)
	if string(got) != "\"a\",\"b\"\n" {
		t.Errorf("decompressed = %q", got)
	}
}

func TestRunBufferedCharset(t *testing.T) {
	spec := buildBuffered(t, &fakeSource{out: "caf\xe9\n"}, BuildOptions{})
	if err := NewRunner(0, "latin1").Run(context.Background(), spec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got, _ := os.ReadFile(spec.TempPath())
	if string(got) != "\"café\"\n" {
		t.Errorf("file = %q", got)
	}
}

func TestRunBufferedSourceFailureDegrades(t *testing.T) {
	src := &fakeSource{
		out:      "id\n",
		closeErr: &sources.ExitError{Source: "psql", Err: errors.New("exit status 1"), Stderr: "ERROR: syntax error"},
	}
	spec := buildBuffered(t, src, BuildOptions{})

	if err := NewRunner(0, "").Run(context.Background(), spec); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	got, _ := os.ReadFile(spec.TempPath())
	if string(got) != "\"id\"\n" {
		t.Errorf("partial file = %q", got)
	}
}

func TestRunBufferedOpenFailure(t *testing.T) {
	boom := errors.New("executable file not found")
	spec := buildBuffered(t, &fakeSource{openErr: boom}, BuildOptions{})

	if err := NewRunner(0, "").Run(context.Background(), spec); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
}

func TestRunBufferedOutputVanished(t *testing.T) {
	src := &fakeSource{out: "id\n"}
	spec := buildBuffered(t, src, BuildOptions{})
	src.onOpen = func() { os.Remove(spec.TempPath()) }

	if err := NewRunner(0, "").Run(context.Background(), spec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(spec.TempPath()); !os.IsNotExist(err) {
		t.Errorf("Run() recreated the output file: %v", err)
	}
}

func TestRunBufferedTimeout(t *testing.T) {
	spec := buildBuffered(t, &fakeSource{out: "id\n", block: true}, BuildOptions{})

	start := time.Now()
	err := NewRunner(50*time.Millisecond, "").Run(context.Background(), spec)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Run() did not honour the query timeout")
	}
}

func TestRunRequiresSpool(t *testing.T) {
	spec, _ := NewBuilder(&fakeSource{}, t.TempDir(), true).Build("SELECT 1", Streaming, BuildOptions{})
	if err := NewRunner(0, "").Run(context.Background(), spec); err == nil {
		t.Error("Run() of a Streaming spec should return error")
	}
}

func TestStart(t *testing.T) {
	src := &fakeSource{out: "id\tnote\n1\tx\ty\nERROR: boom\n"}
	spec, err := NewBuilder(src, t.TempDir(), true).Build("SELECT 1", Streaming, BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	rc, err := NewRunner(0, "").Start(context.Background(), spec)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	want := "\"id\",\"note\"\n\"1\",\"x\",\"y\"\n\"ERROR: boom\"\n"
	if string(got) != want {
		t.Errorf("stream = %q, want %q", got, want)
	}
	if !src.lastOpts.MergeStderr {
		t.Error("Streaming start did not merge stderr")
	}
}

func TestStartFailure(t *testing.T) {
	boom := fmt.Errorf("no such host")
	spec, _ := NewBuilder(&fakeSource{openErr: boom}, t.TempDir(), true).Build("SELECT 1", Streaming, BuildOptions{})

	rc, err := NewRunner(0, "").Start(context.Background(), spec)
	if rc != nil || !errors.Is(err, boom) {
		t.Errorf("Start() = (%v, %v), want (nil, %v)", rc, err, boom)
	}
}

func TestStartReportsSourceFailureOnClose(t *testing.T) {
	boom := errors.New("exit status 2")
	spec, _ := NewBuilder(&fakeSource{out: "x\n", closeErr: boom}, t.TempDir(), true).Build("SELECT 1", Streaming, BuildOptions{})

	rc, err := NewRunner(0, "").Start(context.Background(), spec)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	io.Copy(io.Discard, rc)
	if err := rc.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() error = %v, want %v", err, boom)
	}
}
