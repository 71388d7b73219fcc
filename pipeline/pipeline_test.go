package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"pdf_compactor/compress"
	"pdf_compactor/internal/pdftest"
	"pdf_compactor/pdf"
	"pdf_compactor/split"
)

// fakeCompressor appends pad bytes to a copy of the input, or fails. With
// garbage set it reports success but writes a file that is not a PDF.
type fakeCompressor struct {
	pad     int
	err     error
	garbage bool
	calls   int
}

func (f *fakeCompressor) Compress(_ context.Context, _ compress.Level, in, out string) (compress.Result, error) {
	f.calls++
	res := compress.Result{Strategy: "fake"}
	data, err := os.ReadFile(in)
	if err != nil {
		return res, err
	}
	res.InputSize = int64(len(data))
	if f.err != nil {
		return res, f.err
	}
	data = append(data, bytes.Repeat([]byte{'\n'}, f.pad)...)
	if f.garbage {
		data = []byte("not a pdf")
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return res, err
	}
	res.Success, res.Path, res.Size = true, out, int64(len(data))
	return res, nil
}

// unavailableCompressor is the standard chain with no Ghostscript installed.
func unavailableCompressor() *compress.Compressor {
	return compress.New(compress.Config{}, compress.WithStrategies(compress.LevelStandard,
		compress.NewExternalStrategy(compress.GhostscriptBackend{Binary: "pdfc-no-such-binary"}),
		compress.NewOptimizeStrategy(),
	))
}

func pageSize(t *testing.T, path string) int64 {
	t.Helper()
	doc, err := pdf.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	size, err := doc.SerializedSize([]int{0}, pdf.DefaultSaveOptions)
	if err != nil {
		t.Fatal(err)
	}
	return size
}

func assertEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%s is not empty: %d entries", dir, len(entries))
	}
}

func TestRun_CompressAndSplitWithoutBackend(t *testing.T) {
	in := pdftest.Write(t, t.TempDir(), "ten.pdf", 10, 20000)
	outDir, tmp := t.TempDir(), t.TempDir()
	budget := pageSize(t, in) * 3

	p, err := New(Config{
		OutputDir:    outDir,
		Mode:         ModeCompressAndSplit,
		Level:        compress.LevelStandard,
		MaxPartBytes: budget,
		TempDir:      tmp,
	}, WithCompressor(unavailableCompressor()))
	if err != nil {
		t.Fatal(err)
	}

	outcomes := p.Run(context.Background(), []string{in})
	if len(outcomes) != 1 {
		t.Fatalf("len(outcomes) = %d", len(outcomes))
	}
	o := outcomes[0]
	if o.Status != StatusSplit {
		t.Fatalf("Status = %s (%v), want %s", o.Status, o.Err, StatusSplit)
	}
	if o.Compression == nil || o.Compression.Strategy != "optimize" {
		t.Errorf("Compression = %+v, want optimize result", o.Compression)
	}
	if len(o.Parts) < 2 {
		t.Fatalf("got %d parts, want at least 2", len(o.Parts))
	}

	var pages []int
	for i, part := range o.Parts {
		pages = append(pages, part.Pages...)
		if o.Outputs[i] != filepath.Join(outDir, split.PartName("ten", part.Index)) {
			t.Errorf("output %d = %s", i, o.Outputs[i])
		}
		if len(part.Pages) > 1 && part.Size > budget {
			t.Errorf("part %d has %d pages and %d bytes, over %d", part.Index, len(part.Pages), part.Size, budget)
		}
	}
	if !reflect.DeepEqual(pages, pdf.PageRange(0, 10)) {
		t.Errorf("pages = %v, want 0..9 once each", pages)
	}

	assertEmpty(t, tmp)
}

func TestRun_SinglePageOverflow(t *testing.T) {
	in := pdftest.Write(t, t.TempDir(), "big.pdf", 1, 80000)
	outDir := t.TempDir()

	comp := &fakeCompressor{}
	p, err := New(Config{OutputDir: outDir, Mode: ModeSplitOnly, MaxPartBytes: 1000, TempDir: t.TempDir()},
		WithCompressor(comp))
	if err != nil {
		t.Fatal(err)
	}

	o := p.ProcessFile(context.Background(), in)
	if o.Status != StatusSplit {
		t.Fatalf("Status = %s (%v)", o.Status, o.Err)
	}
	if len(o.Outputs) != 1 || filepath.Base(o.Outputs[0]) != "big_part1.pdf" {
		t.Errorf("Outputs = %v, want [big_part1.pdf]", o.Outputs)
	}
	if o.Parts[0].Size <= 1000 {
		t.Errorf("part size = %d, expected the single page to overflow", o.Parts[0].Size)
	}
	if comp.calls != 0 {
		t.Error("split only mode ran the compressor")
	}
}

func TestRun_FailingFileDoesNotStopBatch(t *testing.T) {
	inDir := t.TempDir()
	bad := pdftest.WriteCorrupt(t, inDir, "bad.pdf")
	good := pdftest.Write(t, inDir, "good.pdf", 3, 1000)
	outDir, tmp := t.TempDir(), t.TempDir()

	p, err := New(Config{
		OutputDir:    outDir,
		Mode:         ModeCompressOnly,
		Level:        compress.LevelStandard,
		MaxPartBytes: split.DefaultMaxBytes,
		TempDir:      tmp,
	}, WithCompressor(unavailableCompressor()))
	if err != nil {
		t.Fatal(err)
	}

	outcomes := p.Run(context.Background(), []string{bad, good})
	if len(outcomes) != 2 {
		t.Fatalf("len(outcomes) = %d", len(outcomes))
	}

	if outcomes[0].Status != StatusError || !errors.Is(outcomes[0].Err, pdf.ErrOpen) {
		t.Errorf("bad.pdf: Status = %s, Err = %v", outcomes[0].Status, outcomes[0].Err)
	}
	if len(outcomes[0].Outputs) != 0 || outcomes[0].Error == "" {
		t.Errorf("bad.pdf outcome = %+v", outcomes[0])
	}
	if _, err := os.Stat(filepath.Join(outDir, "bad_processed.pdf")); !os.IsNotExist(err) {
		t.Error("output written for a file that failed")
	}

	if outcomes[1].Status != StatusSaved {
		t.Errorf("good.pdf: Status = %s (%v)", outcomes[1].Status, outcomes[1].Err)
	}
	assertEmpty(t, tmp)
}

func TestProcessFile_CompressionFailureKeepsOriginal(t *testing.T) {
	in := pdftest.Write(t, t.TempDir(), "keep.pdf", 3, 2000)
	outDir := t.TempDir()

	p, err := New(Config{OutputDir: outDir, Mode: ModeCompressOnly, TempDir: t.TempDir()},
		WithCompressor(&fakeCompressor{err: errors.New("every strategy failed")}))
	if err != nil {
		t.Fatal(err)
	}

	o := p.ProcessFile(context.Background(), in)
	if o.Status != StatusSaved {
		t.Fatalf("Status = %s (%v)", o.Status, o.Err)
	}
	if o.Compression != nil {
		t.Errorf("Compression = %+v, want nil", o.Compression)
	}

	want, _ := os.ReadFile(in)
	got, err := os.ReadFile(filepath.Join(outDir, "keep_processed.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Error("output differs from the original")
	}
}

func TestProcessFile_UnreadableCompressedOutputSplitsOriginal(t *testing.T) {
	in := pdftest.Write(t, t.TempDir(), "scan.pdf", 4, 2000)
	outDir := t.TempDir()

	p, err := New(Config{
		OutputDir:    outDir,
		Mode:         ModeCompressAndSplit,
		MaxPartBytes: split.DefaultMaxBytes,
		TempDir:      t.TempDir(),
	}, WithCompressor(&fakeCompressor{garbage: true}))
	if err != nil {
		t.Fatal(err)
	}

	o := p.ProcessFile(context.Background(), in)
	if o.Status != StatusSplit {
		t.Fatalf("Status = %s (%v), want %s", o.Status, o.Err, StatusSplit)
	}
	if o.Compression != nil {
		t.Errorf("Compression = %+v, want nil", o.Compression)
	}
	if len(o.Parts) != 1 || !reflect.DeepEqual(o.Parts[0].Pages, pdf.PageRange(0, 4)) {
		t.Errorf("Parts = %+v, want one part with all 4 pages", o.Parts)
	}
}

func TestRun_CollidingBaseNames(t *testing.T) {
	inDir := t.TempDir()
	inputs := []string{
		pdftest.Write(t, inDir, "a b.pdf", 1, 1000),
		pdftest.Write(t, inDir, "a_b.pdf", 2, 1000),
		pdftest.Write(t, inDir, "A-B.pdf", 1, 1000),
		pdftest.Write(t, inDir, "á_b.pdf", 3, 1000),
	}

	tests := []struct {
		name string
		mode Mode
		want []string
	}{
		{
			name: "compress only",
			mode: ModeCompressOnly,
			want: []string{"a_b_processed.pdf", "a_b_2_processed.pdf", "A-B_processed.pdf", "a_b_3_processed.pdf"},
		},
		{
			name: "split only",
			mode: ModeSplitOnly,
			want: []string{"a_b_part1.pdf", "a_b_2_part1.pdf", "A-B_part1.pdf", "a_b_3_part1.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outDir := t.TempDir()
			p, err := New(Config{
				OutputDir:    outDir,
				Mode:         tt.mode,
				MaxPartBytes: split.DefaultMaxBytes,
				TempDir:      t.TempDir(),
			}, WithCompressor(&fakeCompressor{}))
			if err != nil {
				t.Fatal(err)
			}

			outcomes := p.Run(context.Background(), inputs)
			var got []string
			for _, o := range outcomes {
				if len(o.Outputs) != 1 {
					t.Fatalf("%s: Outputs = %v (%v)", filepath.Base(o.Input), o.Outputs, o.Err)
				}
				got = append(got, filepath.Base(o.Outputs[0]))
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("outputs = %v, want %v", got, tt.want)
			}

			for i, o := range outcomes {
				doc, err := pdf.Open(o.Outputs[0])
				if err != nil {
					t.Fatal(err)
				}
				src, _ := pdf.Open(inputs[i])
				if doc.PageCount() != src.PageCount() {
					t.Errorf("%s has %d pages, want %d", got[i], doc.PageCount(), src.PageCount())
				}
			}
		})
	}
}

func TestUniqueBase(t *testing.T) {
	used := map[string]bool{}
	var got []string
	for _, base := range []string{"doc", "Doc", "doc", "doc_2", "other"} {
		got = append(got, uniqueBase(base, used))
	}
	want := []string{"doc", "Doc_2", "doc_3", "doc_2_2", "other"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("uniqueBase() = %v, want %v", got, want)
	}
}

func TestProcessFile_PreferSmaller(t *testing.T) {
	in := pdftest.Write(t, t.TempDir(), "grow.pdf", 1, 1000)
	original, _ := os.ReadFile(in)

	tests := []struct {
		name          string
		preferSmaller bool
		wantSize      int
	}{
		{name: "accept larger result", preferSmaller: false, wantSize: len(original) + 500},
		{name: "keep smaller original", preferSmaller: true, wantSize: len(original)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outDir := t.TempDir()
			p, err := New(Config{
				OutputDir:     outDir,
				Mode:          ModeCompressOnly,
				TempDir:       t.TempDir(),
				PreferSmaller: tt.preferSmaller,
			}, WithCompressor(&fakeCompressor{pad: 500}))
			if err != nil {
				t.Fatal(err)
			}

			o := p.ProcessFile(context.Background(), in)
			if o.Status != StatusSaved {
				t.Fatalf("Status = %s (%v)", o.Status, o.Err)
			}
			fi, err := os.Stat(o.Outputs[0])
			if err != nil {
				t.Fatal(err)
			}
			if fi.Size() != int64(tt.wantSize) {
				t.Errorf("output size = %d, want %d", fi.Size(), tt.wantSize)
			}
		})
	}
}

func TestProcessFile_StatusSequence(t *testing.T) {
	in := pdftest.Write(t, t.TempDir(), "seq.pdf", 2, 1000)

	var got []string
	p, err := New(Config{
		OutputDir:    t.TempDir(),
		Mode:         ModeCompressAndSplit,
		Level:        compress.LevelExtreme,
		MaxPartBytes: split.DefaultMaxBytes,
		TempDir:      t.TempDir(),
	}, WithCompressor(&fakeCompressor{}), WithStatusFunc(func(input, status string) {
		if input != in {
			t.Errorf("status for %s", input)
		}
		got = append(got, status)
	}))
	if err != nil {
		t.Fatal(err)
	}

	p.ProcessFile(context.Background(), in)

	want := []string{"Processing...", "Compressing (Extreme (B&W))...", "Splitting...", "Done (Split)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("statuses = %q, want %q", got, want)
	}
}

func TestRun_Cancelled(t *testing.T) {
	in := pdftest.Write(t, t.TempDir(), "a.pdf", 1, 100)
	outDir := t.TempDir()

	p, err := New(Config{OutputDir: outDir, Mode: ModeSplitOnly, MaxPartBytes: split.DefaultMaxBytes, TempDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, o := range p.Run(ctx, []string{in, in}) {
		if o.Status != StatusError || !errors.Is(o.Err, context.Canceled) {
			t.Errorf("outcome = %+v, want cancelled error", o)
		}
	}
	assertEmpty(t, outDir)
}

func TestNew_Validate(t *testing.T) {
	if _, err := New(Config{Mode: ModeCompressOnly}); err == nil {
		t.Error("New() without output dir succeeded")
	}
	if _, err := New(Config{OutputDir: "out", Mode: ModeSplitOnly}); !errors.Is(err, split.ErrBudget) {
		t.Errorf("New() without budget error = %v, want ErrBudget", err)
	}
	if _, err := New(Config{OutputDir: "out", Mode: ModeCompressOnly}); err != nil {
		t.Errorf("compress only needs no budget, got %v", err)
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "report.pdf", want: "report"},
		{in: filepath.Join("a", "b", "v1.2-final.pdf"), want: "v1.2-final"},
		{in: "Résumé été.pdf", want: "Resume_ete"},
		{in: "日本.pdf", want: "__"},
		{in: ".pdf", want: "document"},
	}
	for _, tt := range tests {
		if got := BaseName(tt.in); got != tt.want {
			t.Errorf("BaseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "Split Only", want: ModeSplitOnly},
		{in: "split", want: ModeSplitOnly},
		{in: "Compress Only", want: ModeCompressOnly},
		{in: "Compress + Split", want: ModeCompressAndSplit},
		{in: "", want: ModeCompressAndSplit},
		{in: "shrink", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if !tt.wantErr && tt.in != "" && tt.in != "split" {
			if got.String() != tt.in {
				t.Errorf("%v.String() = %q, want %q", got, got.String(), tt.in)
			}
		}
	}
}
