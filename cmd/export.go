package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fbz-tec/pgxserve/core/exporters"
	"github.com/fbz-tec/pgxserve/core/output"
	"github.com/fbz-tec/pgxserve/internal/logger"
	"github.com/fbz-tec/pgxserve/internal/ui"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	sqlQuery    string
	sqlFile     string
	outputPath  string
	mode        string
	compression string
	failOnEmpty bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a query result into a local CSV file",
	Example: `  pgxserve export -s "SELECT * FROM users" -o users.csv
  pgxserve export -F report.sql -o report.csv -z gzip --mode streaming`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Debug("Validating export parameters")
		return validateExportParams()
	},
	RunE: runExport,
}

func init() {
	flags := exportCmd.Flags()
	flags.SortFlags = false

	//QUERY INPUT - what to export
	flags.StringVarP(&sqlQuery, "sql", "s", "", "SQL query to execute")
	flags.StringVarP(&sqlFile, "sqlfile", "F", "", "Path to SQL file containing the query")

	// OUTPUT DESTINATION - where and how to export
	flags.StringVarP(&outputPath, "output", "o", "", "Output file path (required)")
	flags.StringVar(&mode, "mode", "buffered", "Delivery mode (buffered, streaming)")
	flags.StringVarP(&compression, "compression", "z", "none", "Compression to apply to the output file ("+strings.Join(output.Compressions, ", ")+")")

	// BEHAVIOR OPTIONS
	flags.BoolVarP(&failOnEmpty, "fail-on-empty", "x", false, "Exit with error if the query produced no output (buffered mode)")

	if err := exportCmd.MarkFlagRequired("output"); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func validateExportParams() error {
	if sqlQuery == "" && sqlFile == "" {
		return errors.New("either --sql or --sqlfile must be provided")
	}
	if sqlQuery != "" && sqlFile != "" {
		return errors.New("cannot use both --sql and --sqlfile at the same time")
	}
	if _, err := exporters.ParseMode(mode); err != nil {
		return err
	}
	if !output.Valid(compression) {
		return fmt.Errorf("invalid compression '%s'. Valid options are: %s",
			compression, strings.Join(output.Compressions, ", "))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if failOnEmpty {
		cfg.FailOnEmpty = true
	}

	query := sqlQuery
	if sqlFile != "" {
		logger.Debug("Reading SQL from file: %s", sqlFile)
		query, err = readSQLFromFile(sqlFile)
		if err != nil {
			return fmt.Errorf("error reading SQL file: %w", err)
		}
		logger.Debug("SQL query loaded from file (%d characters)", len(query))
	} else {
		logger.Debug("Using inline SQL query (%d characters)", len(query))
	}

	exporter, store, err := newExporter(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	sink := newFileSink(outputPath)
	defer sink.Close()

	exportMode, _ := exporters.ParseMode(mode)
	err = exporter.Export(cmd.Context(), sink, exporters.Request{
		Query:       query,
		Filename:    filepath.Base(outputPath),
		Mode:        exportMode,
		Compression: compression,
	})
	if cerr := sink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		if sink.written == 0 {
			sink.Remove()
		}
		return fmt.Errorf("export failed: %w", err)
	}

	return handleExportResult(sink.written, outputPath)
}

func handleExportResult(written int64, outputPath string) error {
	if written == 0 {
		logger.Warn("Query produced no output. File created at %s but is empty", outputPath)
		return nil
	}
	logger.Success("Export completed: %d bytes -> %s", written, outputPath)
	return nil
}

// fileSink writes an export into a local file. The file is created on
// the first write so that a failed export leaves nothing behind.
type fileSink struct {
	path    string
	header  http.Header
	f       *os.File
	w       io.Writer
	bar     *progressbar.ProgressBar
	written int64
	closed  bool
}

func newFileSink(path string) *fileSink {
	return &fileSink{path: path, header: http.Header{}}
}

func (s *fileSink) Header() http.Header { return s.header }

func (s *fileSink) Write(p []byte) (int, error) {
	if s.f == nil {
		if err := s.open(); err != nil {
			return 0, err
		}
	}
	n, err := s.w.Write(p)
	s.written += int64(n)
	return n, err
}

func (s *fileSink) open() error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	logger.Debug("Writing %s (%s)", s.path, s.header.Get(exporters.HeaderContentType))
	s.f = f
	s.w = f
	if !logger.IsQuiet() {
		s.bar = ui.NewProgressBar("Exporting", os.Stdout)
		s.w = io.MultiWriter(f, s.bar)
	}
	return nil
}

// Close creates the file if nothing was written, then closes it.
func (s *fileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.bar != nil {
		s.bar.Finish()
	}
	if s.f == nil {
		f, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("unable to create output file: %w", err)
		}
		s.f = f
	}
	return s.f.Close()
}

func (s *fileSink) Remove() {
	if s.f != nil {
		os.Remove(s.path)
	}
}
