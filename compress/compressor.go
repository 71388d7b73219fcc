package compress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pdf_compactor/pdf"
)

// Level selects the strategy chain. Levels never escalate into each other.
type Level int

const (
	// LevelStandard tries the external backend, then container optimization.
	LevelStandard Level = iota
	// LevelExtreme binarizes every page.
	LevelExtreme
)

// ParseLevel accepts "standard"/"extreme" as well as the labels returned by Label.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "standard (gs)":
		return LevelStandard, nil
	case "extreme", "extreme (b&w)":
		return LevelExtreme, nil
	}
	return LevelStandard, fmt.Errorf("unknown compression level %q (supported: standard, extreme)", s)
}

func (l Level) String() string {
	if l == LevelExtreme {
		return "extreme"
	}
	return "standard"
}

// Label is the human readable name used in status messages.
func (l Level) Label() string {
	if l == LevelExtreme {
		return "Extreme (B&W)"
	}
	return "Standard (GS)"
}

// Config describes the default strategy chains.
type Config struct {
	// Backends are the external executables, in probe order.
	Backends       []string
	BackendTimeout time.Duration
	// Renderer rasterizes pages for the extreme level.
	Renderer        pdf.Renderer
	DPI             int
	ThresholdFactor float64
}

// Compressor runs the strategy chain of a level and returns the first
// successful result.
type Compressor struct {
	chains map[Level][]Strategy
	log    zerolog.Logger
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithLogger sets the logger used to report strategy attempts.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Compressor) { c.log = log }
}

// WithStrategies replaces the chain for level.
func WithStrategies(level Level, strategies ...Strategy) Option {
	return func(c *Compressor) { c.chains[level] = strategies }
}

// New builds a Compressor with the default chains:
// standard = [external, optimize], extreme = [binarize].
func New(cfg Config, opts ...Option) *Compressor {
	binaries := cfg.Backends
	if len(binaries) == 0 {
		binaries = GhostscriptBinaries
	}
	timeout := cfg.BackendTimeout
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}

	binarize := NewBinarizeStrategy(cfg.Renderer)
	if cfg.DPI > 0 {
		binarize.DPI = cfg.DPI
	}
	if cfg.ThresholdFactor > 0 {
		binarize.Factor = cfg.ThresholdFactor
	}

	c := &Compressor{
		chains: map[Level][]Strategy{
			LevelStandard: {
				NewExternalStrategy(GhostscriptBackends(binaries, timeout)...),
				NewOptimizeStrategy(),
			},
			LevelExtreme: {binarize},
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Strategies returns the chain configured for level.
func (c *Compressor) Strategies(level Level) []Strategy {
	return c.chains[level]
}

// Compress tries the strategies of level in order, writing to out. The first
// successful result is returned even if it is not smaller than in. When every
// strategy fails, out does not exist and the joined errors are returned.
func (c *Compressor) Compress(ctx context.Context, level Level, in, out string) (Result, error) {
	strategies := c.chains[level]
	if len(strategies) == 0 {
		return Result{InputSize: fileSize(in)}, fmt.Errorf("%w %s", ErrNoStrategy, level)
	}

	var errs []error
	for _, s := range strategies {
		start := time.Now()
		res, err := s.Compress(ctx, in, out)
		if err == nil && !res.Success {
			err = errors.New("strategy reported failure")
		}
		if err == nil {
			c.log.Info().
				Str("input", in).
				Str("strategy", res.Strategy).
				Int64("input_size", res.InputSize).
				Int64("output_size", res.Size).
				Float64("saved_pct", res.Ratio()).
				Dur("took", time.Since(start)).
				Msg("compressed")
			return res, nil
		}

		os.Remove(out)
		c.log.Warn().
			Err(err).
			Str("input", in).
			Str("strategy", s.Name()).
			Msg("compression strategy failed")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))

		if ctx.Err() != nil {
			break
		}
	}

	return Result{InputSize: fileSize(in)}, errors.Join(errs...)
}
