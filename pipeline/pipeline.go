package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pdf_compactor/compress"
	"pdf_compactor/pdf"
	"pdf_compactor/split"
)

// Config is the per-batch configuration of a Pipeline.
type Config struct {
	OutputDir string
	Mode      Mode
	Level     compress.Level
	// MaxPartBytes is the split budget.
	MaxPartBytes int64
	// TempDir holds per-file workspaces; empty means os.TempDir().
	TempDir string
	// PreferSmaller keeps the original when a successful compression did
	// not reduce the size.
	PreferSmaller bool
}

// Validate checks that the configuration can run.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if c.Mode.Splits() && c.MaxPartBytes <= 0 {
		return fmt.Errorf("%w: %d", split.ErrBudget, c.MaxPartBytes)
	}
	return nil
}

// Compressor runs a compression level on one file.
type Compressor interface {
	Compress(ctx context.Context, level compress.Level, in, out string) (compress.Result, error)
}

// Splitter writes the size-bounded parts of a document.
type Splitter interface {
	Split(ctx context.Context, doc *pdf.Document, dir, base string) ([]split.Part, error)
}

// StatusFunc receives progress messages and the terminal status of input.
type StatusFunc func(input, status string)

// Outcome is the result of processing one input file.
type Outcome struct {
	Input       string           `json:"input"`
	Status      Status           `json:"status"`
	Outputs     []string         `json:"outputs"`
	Compression *compress.Result `json:"compression,omitempty"`
	Parts       []split.Part     `json:"parts,omitempty"`
	Err         error            `json:"-"`
	Error       string           `json:"error,omitempty"`
}

// Pipeline compresses and/or splits input files one after another.
type Pipeline struct {
	cfg        Config
	compressor Compressor
	splitter   Splitter
	status     StatusFunc
	log        zerolog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithStatusFunc registers a progress callback.
func WithStatusFunc(fn StatusFunc) Option {
	return func(p *Pipeline) { p.status = fn }
}

// WithCompressor replaces the default compressor.
func WithCompressor(c Compressor) Option {
	return func(p *Pipeline) { p.compressor = c }
}

// WithSplitter replaces the default splitter.
func WithSplitter(s Splitter) Option {
	return func(p *Pipeline) { p.splitter = s }
}

// New returns a Pipeline for cfg. Without WithCompressor the standard level
// works with Ghostscript or container optimization only; extreme needs a
// compressor built with a renderer.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.compressor == nil {
		p.compressor = compress.New(compress.Config{}, compress.WithLogger(p.log))
	}
	if p.splitter == nil {
		p.splitter = split.New(cfg.MaxPartBytes, split.WithLogger(p.log))
	}
	return p, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run processes inputs in order. A failing file never stops the batch; once
// ctx is done the remaining files are reported as errors. Inputs whose base
// names collide get _2, _3, ... appended so no output is overwritten.
func (p *Pipeline) Run(ctx context.Context, inputs []string) []Outcome {
	start := time.Now()
	outcomes := make([]Outcome, 0, len(inputs))

	used := make(map[string]bool, len(inputs))
	for _, input := range inputs {
		base := uniqueBase(BaseName(input), used)
		outcomes = append(outcomes, p.processFile(ctx, input, base))
	}

	var failed int
	for _, o := range outcomes {
		if o.Status == StatusError {
			failed++
		}
	}
	p.log.Info().
		Int("files", len(inputs)).
		Int("failed", failed).
		Str("mode", p.cfg.Mode.String()).
		Dur("took", time.Since(start)).
		Msg("batch complete")

	return outcomes
}

// ProcessFile runs the configured mode on one input. Outputs are named after
// BaseName(input) and replace earlier outputs of the same name.
func (p *Pipeline) ProcessFile(ctx context.Context, input string) Outcome {
	return p.processFile(ctx, input, BaseName(input))
}

func (p *Pipeline) processFile(ctx context.Context, input, base string) Outcome {
	p.report(input, ProgressProcessing)

	out, err := p.process(ctx, input, base)
	if err != nil {
		p.log.Error().Err(err).Str("input", input).Msg("processing failed")
		out.Status = StatusError
		out.Outputs = nil
		out.Parts = nil
		out.Err = err
		out.Error = err.Error()
	}

	p.report(input, string(out.Status))
	return out
}

func (p *Pipeline) process(ctx context.Context, input, base string) (Outcome, error) {
	out := Outcome{Input: input}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	doc, err := pdf.Open(input)
	if err != nil {
		return out, err
	}

	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return out, fmt.Errorf("create output directory: %w", err)
	}

	workspace, err := os.MkdirTemp(p.cfg.TempDir, "pdfc-"+uuid.NewString()+"-")
	if err != nil {
		return out, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	source := input

	if p.cfg.Mode.Compresses() {
		compressed, res := p.compress(ctx, input, filepath.Join(workspace, base+"_compressed.pdf"))
		out.Compression = res
		if compressed != "" {
			source = compressed
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
	}

	if p.cfg.Mode.Splits() {
		p.report(input, ProgressSplitting)

		if source != input {
			compressed, err := pdf.Open(source)
			if err != nil {
				p.log.Warn().Err(err).Str("input", input).Msg("cannot reopen compressed output, splitting original")
				out.Compression = nil
			} else {
				doc = compressed
			}
		}

		parts, err := p.splitter.Split(ctx, doc, p.cfg.OutputDir, base)
		if err != nil {
			return out, err
		}

		out.Parts = parts
		for _, part := range parts {
			out.Outputs = append(out.Outputs, part.Path)
		}
		out.Status = StatusSplit
		return out, nil
	}

	final := filepath.Join(p.cfg.OutputDir, base+"_processed.pdf")
	if source == input {
		err = copyFile(input, final)
	} else {
		err = moveFile(source, final)
	}
	if err != nil {
		return out, fmt.Errorf("save %s: %w", final, err)
	}

	p.log.Info().Str("input", input).Str("output", final).Msg("saved")
	out.Outputs = []string{final}
	out.Status = StatusSaved
	return out, nil
}

// compress returns the path of the accepted compressed file, or "" when the
// original stays the working source.
func (p *Pipeline) compress(ctx context.Context, input, target string) (string, *compress.Result) {
	p.report(input, fmt.Sprintf(ProgressCompressing, p.cfg.Level.Label()))

	res, err := p.compressor.Compress(ctx, p.cfg.Level, input, target)
	if err != nil {
		p.log.Warn().Err(err).Str("input", input).Str("level", p.cfg.Level.String()).
			Msg("compression failed, keeping original")
		return "", nil
	}

	if p.cfg.PreferSmaller && !res.Smaller() {
		p.log.Info().Str("input", input).Int64("input_size", res.InputSize).Int64("output_size", res.Size).
			Msg("compressed output is not smaller, keeping original")
		return "", &res
	}

	return target, &res
}

func (p *Pipeline) report(input, status string) {
	if p.status != nil {
		p.status(input, status)
	}
}
