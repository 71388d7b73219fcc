package split

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pdf_compactor/pdf"
)

// DefaultMaxBytes is the default part budget, 1.9 MiB.
const DefaultMaxBytes = int64(19 * 1024 * 1024 / 10)

// Probe selects how the splitter measures how many pages fit into a part.
type Probe int

const (
	// ProbeLinear grows the part one page at a time and serializes after
	// every page.
	ProbeLinear Probe = iota
	// ProbeBisect doubles the part length until it overflows and then
	// binary searches the largest length that fits.
	ProbeBisect
)

// ParseProbe accepts "linear" and "bisect".
func ParseProbe(s string) (Probe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return ProbeLinear, nil
	case "bisect":
		return ProbeBisect, nil
	}
	return ProbeLinear, fmt.Errorf("unknown probe %q (supported: linear, bisect)", s)
}

func (p Probe) String() string {
	if p == ProbeBisect {
		return "bisect"
	}
	return "linear"
}

// Part is one output of a split. Index is 1-based; Pages are 0-based source
// page indices in source order.
type Part struct {
	Index int    `json:"index"`
	Pages []int  `json:"pages"`
	Path  string `json:"path,omitempty"`
	Size  int64  `json:"size"`
}

// Splitter partitions a document into consecutive parts whose serialized
// size stays within MaxBytes. A part holding a single page may exceed it.
type Splitter struct {
	MaxBytes int64
	Options  pdf.SaveOptions
	Probe    Probe

	log zerolog.Logger
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithLogger sets the logger used to report parts.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Splitter) { s.log = log }
}

// WithProbe selects the probe strategy.
func WithProbe(p Probe) Option {
	return func(s *Splitter) { s.Probe = p }
}

// WithOptions sets the serialization options used for trials and parts.
func WithOptions(opts pdf.SaveOptions) Option {
	return func(s *Splitter) { s.Options = opts }
}

// New returns a Splitter with the given budget, the default save options and
// the linear probe.
func New(maxBytes int64, opts ...Option) *Splitter {
	s := &Splitter{
		MaxBytes: maxBytes,
		Options:  pdf.DefaultSaveOptions,
		Probe:    ProbeLinear,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan computes the partition of doc without writing anything. Part.Size is
// the last measured trial size, or 0 for a part that was never measured.
func (s *Splitter) Plan(ctx context.Context, doc *pdf.Document) ([]Part, error) {
	if s.MaxBytes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBudget, s.MaxBytes)
	}
	if s.Probe == ProbeBisect {
		return s.planBisect(ctx, doc)
	}
	return s.planLinear(ctx, doc)
}

func (s *Splitter) planLinear(ctx context.Context, doc *pdf.Document) ([]Part, error) {
	var (
		parts   []Part
		current []int
		size    int64
	)

	emit := func() {
		parts = append(parts, Part{Index: len(parts) + 1, Pages: current, Size: size})
		current, size = nil, 0
	}

	n := doc.PageCount()
	for cursor := 0; cursor < n; {
		if len(current) == 0 {
			current = []int{cursor}
			cursor++
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trial := append(append(make([]int, 0, len(current)+1), current...), cursor)
		trialSize, err := doc.SerializedSize(trial, s.Options)
		if err != nil {
			return nil, fmt.Errorf("measure pages %s: %w", describe(trial), err)
		}

		if trialSize <= s.MaxBytes {
			current, size = trial, trialSize
			cursor++
			continue
		}

		s.log.Debug().
			Int("part", len(parts)+1).
			Int("rejected_page", cursor+1).
			Int64("trial_size", trialSize).
			Msg("part full")
		emit()
	}
	if len(current) > 0 {
		emit()
	}

	return parts, nil
}

func (s *Splitter) planBisect(ctx context.Context, doc *pdf.Document) ([]Part, error) {
	var parts []Part
	n := doc.PageCount()

	for start := 0; start < n; {
		// fits is the longest length known to fit; 1 is accepted unmeasured.
		fits, fitSize := 1, int64(0)
		overflow := 0

		measure := func(length int) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			size, err := doc.SerializedSize(pdf.PageRange(start, start+length), s.Options)
			if err != nil {
				return false, fmt.Errorf("measure pages %d-%d: %w", start+1, start+length, err)
			}
			if size <= s.MaxBytes {
				fits, fitSize = length, size
				return true, nil
			}
			return false, nil
		}

		for length := 2; ; length *= 2 {
			if length > n-start {
				length = n - start
			}
			if length <= fits {
				break
			}
			ok, err := measure(length)
			if err != nil {
				return nil, err
			}
			if !ok {
				overflow = length
				break
			}
		}

		for overflow > 0 && overflow-fits > 1 {
			mid := fits + (overflow-fits)/2
			ok, err := measure(mid)
			if err != nil {
				return nil, err
			}
			if !ok {
				overflow = mid
			}
		}

		parts = append(parts, Part{
			Index: len(parts) + 1,
			Pages: pdf.PageRange(start, start+fits),
			Size:  fitSize,
		})
		start += fits
	}

	return parts, nil
}

// Split plans doc and writes every part to dir as <base>_part<N>.pdf. When a
// write fails, the parts already written by this call are removed.
func (s *Splitter) Split(ctx context.Context, doc *pdf.Document, dir, base string) ([]Part, error) {
	start := time.Now()

	parts, err := s.Plan(ctx, doc)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(parts))
	cleanup := func() {
		for _, path := range written {
			os.Remove(path)
		}
	}

	for i := range parts {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, err
		}

		path := filepath.Join(dir, PartName(base, parts[i].Index))
		size, err := doc.WriteFile(path, parts[i].Pages, s.Options)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: %s: %v", ErrSplitIO, path, err)
		}
		written = append(written, path)

		parts[i].Path = path
		parts[i].Size = size

		s.log.Info().
			Int("part", parts[i].Index).
			Str("pages", describe(parts[i].Pages)).
			Int64("size", size).
			Bool("over_budget", size > s.MaxBytes).
			Msg("wrote part")
	}

	s.log.Info().
		Str("input", doc.Path).
		Int("parts", len(parts)).
		Str("probe", s.Probe.String()).
		Dur("took", time.Since(start)).
		Msg("split complete")

	return parts, nil
}

// PartName returns the file name of part index of base.
func PartName(base string, index int) string {
	return fmt.Sprintf("%s_part%d.pdf", base, index)
}

// describe renders 0-based pages as 1-based ranges, e.g. "1-3,5".
func describe(pages []int) string {
	return strings.Join(pdf.PageSelection(pages), ",")
}
