package compress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Backend is an external program able to rewrite a PDF.
type Backend interface {
	Name() string
	// Compress writes a rewritten copy of in to out.
	Compress(ctx context.Context, in, out string) error
}

// GhostscriptBackend runs one Ghostscript executable with the pdfwrite device
// at the fixed /ebook quality.
type GhostscriptBackend struct {
	Binary  string
	Timeout time.Duration
}

func (b GhostscriptBackend) Name() string { return b.Binary }

// Available reports whether the executable can be found in PATH.
func (b GhostscriptBackend) Available() bool {
	_, err := exec.LookPath(b.Binary)
	return err == nil
}

func (b GhostscriptBackend) Compress(ctx context.Context, in, out string) error {
	// A stale file must not be mistaken for this run's output.
	os.Remove(out)

	output, err := execCommand(ctx, b.Timeout, b.Binary, ghostscriptArgs(in, out)...)
	if err != nil {
		if len(output) > 0 {
			return fmt.Errorf("%w\nOutput: %s", err, trimOutput(output))
		}
		return err
	}
	return nil
}

func ghostscriptArgs(in, out string) []string {
	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=" + GhostscriptCompatibility,
		"-dPDFSETTINGS=" + GhostscriptQuality,
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-sOutputFile=" + out,
		in,
	}
}

// DefaultBackends returns a GhostscriptBackend for every name in
// GhostscriptBinaries, in probe order.
func DefaultBackends(timeout time.Duration) []Backend {
	return GhostscriptBackends(GhostscriptBinaries, timeout)
}

// GhostscriptBackends returns one backend per executable name.
func GhostscriptBackends(binaries []string, timeout time.Duration) []Backend {
	backends := make([]Backend, 0, len(binaries))
	for _, bin := range binaries {
		backends = append(backends, GhostscriptBackend{Binary: bin, Timeout: timeout})
	}
	return backends
}

// ExternalStrategy tries each backend in order and keeps the first output
// that exists and is not empty.
type ExternalStrategy struct {
	Backends []Backend
}

// NewExternalStrategy returns an ExternalStrategy over backends.
func NewExternalStrategy(backends ...Backend) *ExternalStrategy {
	return &ExternalStrategy{Backends: backends}
}

func (s *ExternalStrategy) Name() string { return "external" }

func (s *ExternalStrategy) Compress(ctx context.Context, in, out string) (Result, error) {
	res := Result{Strategy: s.Name(), InputSize: fileSize(in)}

	var errs []error
	for _, b := range s.Backends {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := b.Compress(ctx, in, out); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}

		size := fileSize(out)
		if size <= 0 {
			errs = append(errs, fmt.Errorf("%s: produced no output", b.Name()))
			continue
		}

		res.Success = true
		res.Strategy = s.Name() + ":" + b.Name()
		res.Path = out
		res.Size = size
		return res, nil
	}

	os.Remove(out)
	if len(errs) == 0 {
		return res, fmt.Errorf("%w: no backend configured", ErrBackendUnavailable)
	}
	return res, fmt.Errorf("%w: %w", ErrBackendUnavailable, errors.Join(errs...))
}
