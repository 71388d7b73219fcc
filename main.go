package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"pdf_compactor/compress"
	"pdf_compactor/config"
	"pdf_compactor/pdf"
)

var exampleUsage = strings.TrimSpace(`
  pdf_compactor run --mode "Compress + Split" --max-mb 1.9 --out ./out scans/*.pdf
  pdf_compactor run --mode compress --level extreme --prefer-smaller letter.pdf
  pdf_compactor serve --port 8080
  pdf_compactor watch ./inbox --out ./outbox
  pdf_compactor analyze scan.pdf
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries the resolved configuration into the subcommands.
type app struct {
	cfg     config.Config
	cfgPath string
	log     zerolog.Logger
}

func main() {
	a := &app{cfg: config.DefaultConfig()}
	a.log, _ = config.NewLogger(os.Stderr, a.cfg.LogLevel, a.cfg.LogFormat)

	if err := newRootCommand(a).Execute(); err != nil {
		a.log.Error().Err(err).Msg("pdf_compactor")
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:     "pdf_compactor",
		Short:   "Compress PDFs and split them into parts below a size limit",
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		SilenceUsage: true,
	}

	a.bindFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCommand(a),
		newServeCommand(a),
		newWatchCommand(a),
		newAnalyzeCommand(a),
	)
	return root
}

// bindFlags registers the flags shared by every command.
func (a *app) bindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.pdf_compactor/config.toml)")
	flags.StringVar(&a.cfg.OutputDir, "out", a.cfg.OutputDir, "output directory")
	flags.StringVar(&a.cfg.Mode, "mode", a.cfg.Mode, `action: "split", "compress" or "compress+split"`)
	flags.StringVar(&a.cfg.Level, "level", a.cfg.Level, `compression level: "standard" or "extreme"`)
	flags.Float64Var(&a.cfg.MaxMB, "max-mb", a.cfg.MaxMB, "maximum size of a split part in MiB")
	flags.StringVar(&a.cfg.Probe, "probe", a.cfg.Probe, `split probe: "linear" or "bisect"`)
	flags.BoolVar(&a.cfg.PreferSmaller, "prefer-smaller", a.cfg.PreferSmaller, "keep the original when compression does not reduce the size")
	flags.StringVar(&a.cfg.TempDir, "temp-dir", a.cfg.TempDir, "directory for per-file workspaces (default: system temp)")
	flags.IntVar(&a.cfg.DPI, "dpi", a.cfg.DPI, "render resolution for extreme compression")
	flags.Float64Var(&a.cfg.ThresholdFactor, "threshold", a.cfg.ThresholdFactor, "binarization threshold as a factor of the mean page intensity")
	flags.StringSliceVar(&a.cfg.GSBinaries, "gs-binary", a.cfg.GSBinaries, "Ghostscript executables to try, in order")
	flags.DurationVar(&a.cfg.GSTimeout, "gs-timeout", a.cfg.GSTimeout, "timeout of one Ghostscript invocation")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, `log format: "console" or "json"`)
	if err := flags.MarkHidden("threshold"); err != nil {
		a.log.Info().Err(err).Msg("failed to hide threshold flag")
	}
}

// load applies the config file and PDFC_* variables below explicitly set
// flags, then validates the result and rebuilds the logger.
func (a *app) load(cmd *cobra.Command) error {
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && config.FileExists(cfgFile) {
		fc, err := config.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	} else if a.cfgPath != "" {
		return fmt.Errorf("config file %s not found", a.cfgPath)
	}

	if err := config.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	log, err := config.NewLogger(os.Stderr, a.cfg.LogLevel, a.cfg.LogFormat)
	if err != nil {
		return err
	}
	a.log = log
	a.log.Debug().Interface("config", a.cfg).Msg("configuration")
	return nil
}

// newCompressor builds the compressor and the renderer it rasterizes with.
// The caller closes the renderer.
func (a *app) newCompressor() (*compress.Compressor, *pdf.PdfiumRenderer) {
	renderer := pdf.NewPdfiumRenderer(pdf.DefaultRenderTimeout)
	c := compress.New(a.cfg.Compress(renderer), compress.WithLogger(a.log))
	return c, renderer
}

// backendAvailable reports whether any configured Ghostscript binary is in PATH.
func (a *app) backendAvailable() bool {
	for _, b := range compress.GhostscriptBackends(a.cfg.GSBinaries, a.cfg.GSTimeout) {
		if gb, ok := b.(compress.GhostscriptBackend); ok && gb.Available() {
			return true
		}
	}
	return false
}

func (a *app) warnIfNoBackend() {
	if !a.backendAvailable() {
		a.log.Warn().
			Strs("binaries", a.cfg.GSBinaries).
			Msg("Ghostscript not found, standard compression falls back to container optimization")
	}
}
