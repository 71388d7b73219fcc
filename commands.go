package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pdf_compactor/compress"
	"pdf_compactor/pdf"
	"pdf_compactor/pipeline"
	"pdf_compactor/split"
	"pdf_compactor/watch"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func (a *app) newPipeline(compressor pipeline.Compressor) (*pipeline.Pipeline, error) {
	cfg := a.cfg.Pipeline()
	return pipeline.New(cfg,
		pipeline.WithLogger(a.log),
		pipeline.WithCompressor(compressor),
		pipeline.WithSplitter(split.New(cfg.MaxPartBytes,
			split.WithProbe(a.cfg.SplitProbe()),
			split.WithLogger(a.log),
		)),
		pipeline.WithStatusFunc(func(input, status string) {
			a.log.Debug().Str("input", filepath.Base(input)).Msg(status)
		}),
	)
}

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <input.pdf>...",
		Short: "Process PDF files once and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			compressor, renderer := a.newCompressor()
			defer renderer.Close()
			if pc := a.cfg.Pipeline(); pc.Mode.Compresses() && pc.Level == compress.LevelStandard {
				a.warnIfNoBackend()
			}

			p, err := a.newPipeline(compressor)
			if err != nil {
				return err
			}

			outcomes := p.Run(ctx, args)

			var failed int
			w := cmd.OutOrStdout()
			for _, o := range outcomes {
				fmt.Fprintf(w, "%s\t%s\n", filepath.Base(o.Input), o.Status)
				for _, out := range o.Outputs {
					fmt.Fprintf(w, "  %s\n", out)
				}
				if o.Status == pipeline.StatusError {
					failed++
					fmt.Fprintf(w, "  error: %s\n", o.Error)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(outcomes))
			}
			return nil
		},
	}
}

func newWatchCommand(a *app) *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Process every PDF dropped into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			compressor, renderer := a.newCompressor()
			defer renderer.Close()
			a.warnIfNoBackend()

			p, err := a.newPipeline(compressor)
			if err != nil {
				return err
			}

			outDir, err := filepath.Abs(a.cfg.OutputDir)
			if err != nil {
				return err
			}

			opts := []watch.Option{
				watch.WithDebounce(a.cfg.Debounce),
				watch.WithLogger(a.log),
				watch.WithIgnore(func(path string) bool {
					abs, err := filepath.Abs(path)
					return err == nil && strings.HasPrefix(abs, outDir+string(filepath.Separator))
				}),
			}
			if initial {
				opts = append(opts, watch.WithInitialScan())
			}

			w := watch.New(args[0], func(ctx context.Context, path string) {
				o := p.ProcessFile(ctx, path)
				a.log.Info().
					Str("input", filepath.Base(path)).
					Str("status", string(o.Status)).
					Strs("outputs", o.Outputs).
					Msg("processed")
			}, opts...)

			return w.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&a.cfg.Debounce, "debounce", a.cfg.Debounce, "quiet period after the last write to a file")
	cmd.Flags().BoolVar(&initial, "initial", false, "also process the PDFs already in the directory")
	return cmd
}

func newAnalyzeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <input.pdf>...",
		Short: "Report whether PDFs look scanned and which level suits them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			renderer := pdf.NewPdfiumRenderer(pdf.DefaultRenderTimeout)
			defer renderer.Close()

			type report struct {
				File             string `json:"file"`
				RecommendedLevel string `json:"recommended_level,omitempty"`
				Error            string `json:"error,omitempty"`
				*pdf.Analysis
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			var failed int
			for _, path := range args {
				r := report{File: path}
				doc, err := pdf.Open(path)
				if err == nil {
					r.Analysis, err = pdf.Analyze(ctx, renderer, doc)
				}
				if err != nil {
					failed++
					r.Error = err.Error()
				} else {
					r.RecommendedLevel = compress.LevelStandard.String()
					if r.Scanned {
						r.RecommendedLevel = compress.LevelExtreme.String()
					}
				}
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be analyzed", failed, len(args))
			}
			return nil
		},
	}
}
