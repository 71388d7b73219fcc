package compress

import (
	"context"
	"fmt"

	"pdf_compactor/pdf"
)

// Strategy turns the PDF at in into a candidate at out. Implementations never
// modify in. A failed attempt returns an error; out may then hold garbage and
// is removed by the Compressor.
type Strategy interface {
	Name() string
	Compress(ctx context.Context, in, out string) (Result, error)
}

// OptimizeStrategy rewrites the container only: streams are deflated and
// unreachable objects dropped. It fails only when the source cannot be opened
// or the output cannot be written.
type OptimizeStrategy struct {
	Options pdf.SaveOptions
}

// NewOptimizeStrategy returns an OptimizeStrategy using pdf.DefaultSaveOptions.
func NewOptimizeStrategy() *OptimizeStrategy {
	return &OptimizeStrategy{Options: pdf.DefaultSaveOptions}
}

func (s *OptimizeStrategy) Name() string { return "optimize" }

func (s *OptimizeStrategy) Compress(ctx context.Context, in, out string) (Result, error) {
	res := Result{Strategy: s.Name(), InputSize: fileSize(in)}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	size, err := pdf.Resave(in, out, s.Options)
	if err != nil {
		return res, fmt.Errorf("optimize: %w", err)
	}

	res.Success = true
	res.Path = out
	res.Size = size
	return res, nil
}
