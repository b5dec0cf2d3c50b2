package pipeline

import (
	"fmt"

	"github.com/fbz-tec/pgxserve/core/output"
	"github.com/fbz-tec/pgxserve/core/sources"
	"github.com/fbz-tec/pgxserve/core/validation"
	"github.com/fbz-tec/pgxserve/internal/logger"
)

// quoteStage names the native CSV quote transform in stage listings.
var quoteStage = sources.Stage{Name: "csv-quote"}

// Builder turns a query into a pipeline Spec.
type Builder struct {
	source  sources.Source
	tempDir string
	unlink  bool
	log     logger.Logger
}

func NewBuilder(source sources.Source, tempDir string, unlink bool) *Builder {
	return &Builder{
		source:  source,
		tempDir: tempDir,
		unlink:  unlink,
		log:     logger.With("pipeline"),
	}
}

// BuildOptions carry per-export settings that do not change the query.
type BuildOptions struct {
	ID          string
	Compression string
	EntryName   string
}

// Build validates its input and assembles the stages. Nothing is created
// on disk unless every check passed; in Buffered mode the temporary file
// is then reserved and recorded in the Spec.
func (b *Builder) Build(query string, mode Mode, opts BuildOptions) (*Spec, error) {
	if err := validation.ValidateQuery(query); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = Buffered
	}
	if mode != Buffered && mode != Streaming {
		return nil, validation.NewValidationError("mode", fmt.Sprintf("invalid mode %q", mode))
	}
	if !output.Valid(opts.Compression) {
		return nil, validation.NewValidationError("compression",
			fmt.Sprintf("invalid compression %q", opts.Compression))
	}

	compression := output.Normalize(opts.Compression)
	stages := []sources.Stage{b.source.Stage(query), quoteStage}
	if compression != output.None {
		stages = append(stages, sources.Stage{Name: compression})
	}

	spec := &Spec{
		ID:          opts.ID,
		Query:       query,
		Mode:        mode,
		Source:      b.source,
		Stages:      stages,
		Compression: compression,
		EntryName:   opts.EntryName,
	}

	switch mode {
	case Buffered:
		spool, err := NewSpool(b.tempDir, opts.ID, b.unlink)
		if err != nil {
			return nil, err
		}
		spec.Spool = spool
	case Streaming:
		spec.MergeStderr = true
	}

	b.log.Debug("Built %s pipeline: %s", mode, logger.Mask(spec.String()))
	return spec, nil
}
