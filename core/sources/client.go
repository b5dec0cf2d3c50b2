package sources

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fbz-tec/pgxserve/core/config"
	"github.com/fbz-tec/pgxserve/core/db"
	"github.com/fbz-tec/pgxserve/internal/logger"
)

const (
	// waitDelay bounds how long Close waits for pipes after the process
	// has been killed by a cancelled context.
	waitDelay = 5 * time.Second
	// stderrTail is how much client diagnostics are kept for the log.
	stderrTail = 4 * 1024
)

// clientSource runs a database command-line client. Every value is passed
// as its own argv element and no shell is involved, so nothing in the
// query or the connection settings can be read as shell syntax.
type clientSource struct {
	name string
	path string
	args func(query string) []string
	env  []string
	log  logger.Logger
}

func newPsqlSource(cfg config.Config, _ db.Store) (Source, error) {
	env := []string{"PGPASSWORD=" + cfg.DBPass}
	if cfg.SSLMode != "" {
		env = append(env, "PGSSLMODE="+cfg.SSLMode)
	}
	if cfg.ReadOnly {
		env = append(env, "PGOPTIONS=-c default_transaction_read_only=on")
	}
	return &clientSource{
		name: config.SourcePsql,
		path: clientPath(cfg, "psql"),
		args: func(query string) []string { return psqlArgs(cfg, query) },
		env:  env,
		log:  logger.With("psql"),
	}, nil
}

func newMySQLSource(cfg config.Config, _ db.Store) (Source, error) {
	return &clientSource{
		name: config.SourceMySQL,
		path: clientPath(cfg, "mysql"),
		args: func(query string) []string { return mysqlArgs(cfg, query) },
		env:  []string{"MYSQL_PWD=" + cfg.DBPass},
		log:  logger.With("mysql"),
	}, nil
}

func clientPath(cfg config.Config, fallback string) string {
	if cfg.ClientPath != "" {
		return cfg.ClientPath
	}
	return fallback
}

func psqlArgs(cfg config.Config, query string) []string {
	return []string{
		"--host=" + cfg.DBHost,
		"--port=" + strconv.Itoa(cfg.DBPort),
		"--username=" + cfg.DBUser,
		"--dbname=" + cfg.DBName,
		"--no-psqlrc",
		"--no-password",
		"--no-align",
		"--field-separator=\t",
		"--pset=footer=off",
		"--set=ON_ERROR_STOP=1",
		"--quiet",
		"--command=" + query,
	}
}

func mysqlArgs(cfg config.Config, query string) []string {
	args := []string{
		"--host=" + cfg.DBHost,
		"--port=" + strconv.Itoa(cfg.DBPort),
		"--user=" + cfg.DBUser,
		"--database=" + cfg.DBName,
		"--batch",
	}
	if cfg.ReadOnly {
		args = append(args, "--init-command=SET SESSION TRANSACTION READ ONLY")
	}
	return append(args, "--execute="+query)
}

func (s *clientSource) Name() string { return s.name }

func (s *clientSource) Stage(query string) Stage {
	return Stage{Name: s.path, Args: s.args(query)}
}

func (s *clientSource) Open(ctx context.Context, query string, opts OpenOptions) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, s.path, s.args(query)...)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.WaitDelay = waitDelay

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("unable to create pipe: %w", err)
	}
	cmd.Stdout = pw

	var stderr *tailBuffer
	if opts.MergeStderr {
		cmd.Stderr = pw
	} else {
		stderr = &tailBuffer{limit: stderrTail}
		cmd.Stderr = stderr
	}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("unable to start %s: %w", s.name, err)
	}
	// The child owns its copy of the write end; ours must go so that
	// the reader sees EOF when the child exits.
	pw.Close()

	s.log.Debug("Started %s (pid %d, merge stderr=%v)", s.path, cmd.Process.Pid, opts.MergeStderr)
	return &processReader{pipe: pr, cmd: cmd, stderr: stderr, name: s.name}, nil
}

// processReader is the live stdout of a running client.
type processReader struct {
	pipe   *os.File
	cmd    *exec.Cmd
	stderr *tailBuffer
	name   string

	once sync.Once
	err  error
}

func (p *processReader) Read(b []byte) (int, error) {
	return p.pipe.Read(b)
}

// Close stops reading and waits for the client to exit. Closing before
// EOF makes the client fail on its next write.
func (p *processReader) Close() error {
	p.once.Do(func() {
		p.pipe.Close()
		if err := p.cmd.Wait(); err != nil {
			p.err = &ExitError{Source: p.name, Err: err, Stderr: p.stderr.String()}
		}
	})
	return p.err
}

// ExitError reports a client that did not exit cleanly.
type ExitError struct {
	Source string
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Source, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + logger.Mask(s)
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

func init() {
	MustRegister(config.SourcePsql, newPsqlSource)
	MustRegister(config.SourceMySQL, newMySQLSource)
}
