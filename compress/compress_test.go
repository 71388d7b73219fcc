package compress

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"pdf_compactor/internal/pdftest"
	"pdf_compactor/pdf"
)

// fakeBackend writes body to out, or fails with err.
type fakeBackend struct {
	name  string
	body  []byte
	err   error
	calls *int
}

func (b fakeBackend) Name() string { return b.name }

func (b fakeBackend) Compress(_ context.Context, _, out string) error {
	if b.calls != nil {
		*b.calls++
	}
	if b.err != nil {
		return b.err
	}
	return os.WriteFile(out, b.body, 0o644)
}

// fakeRenderer returns a half dark, half light page sized for the DPI, or
// fails on failPage (1-based).
type fakeRenderer struct {
	failPage int
	opened   int
	rendered int
}

func (r *fakeRenderer) Open(doc *pdf.Document) (pdf.RenderSession, error) {
	r.opened++
	return &fakeSession{r: r, doc: doc}, nil
}

type fakeSession struct {
	r   *fakeRenderer
	doc *pdf.Document
}

func (s *fakeSession) RenderPage(_ context.Context, index, dpi int) (image.Image, error) {
	if s.r.failPage == index+1 {
		return nil, errors.New("boom")
	}
	s.r.rendered++

	p := s.doc.Pages[index]
	w, h := int(p.Width*float64(dpi)/72), int(p.Height*float64(dpi)/72)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 240, G: 240, B: 240, A: 255}
			if x < w/2 {
				c = color.RGBA{R: 20, G: 20, B: 20, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img, nil
}

func (s *fakeSession) ImageObjects(int) (int, error) { return 0, nil }
func (s *fakeSession) Close() error                  { return nil }

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "standard", want: LevelStandard},
		{in: "Standard (GS)", want: LevelStandard},
		{in: "", want: LevelStandard},
		{in: "EXTREME", want: LevelExtreme},
		{in: "Extreme (B&W)", want: LevelExtreme},
		{in: "lossless", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBinarize(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	copy(img.Pix, []uint8{0, 100, 200, 255})

	// mean 138.75 * 0.92 = 127.65
	if got := Threshold(img, DefaultThresholdFactor); got < 127.64 || got > 127.66 {
		t.Fatalf("Threshold() = %v, want 127.65", got)
	}

	Binarize(img, DefaultThresholdFactor)
	want := []uint8{0, 0, 255, 255}
	for i := range want {
		if img.Pix[i] != want[i] {
			t.Fatalf("Pix = %v, want %v", img.Pix, want)
		}
	}
}

func TestBinarize_Uniform(t *testing.T) {
	tests := []struct {
		value uint8
		want  uint8
	}{
		{value: 128, want: 255},
		{value: 1, want: 255},
		{value: 0, want: 0},
	}

	for _, tt := range tests {
		img := image.NewGray(image.Rect(0, 0, 3, 3))
		for i := range img.Pix {
			img.Pix[i] = tt.value
		}
		Binarize(img, DefaultThresholdFactor)
		for _, v := range img.Pix {
			if v != tt.want {
				t.Errorf("uniform %d: pixel = %d, want %d", tt.value, v, tt.want)
				break
			}
		}
	}
}

func TestBinarize_SubImage(t *testing.T) {
	parent := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range parent.Pix {
		parent.Pix[i] = 77
	}
	sub := parent.SubImage(image.Rect(1, 1, 3, 3)).(*image.Gray)
	sub.SetGray(1, 1, color.Gray{Y: 0})
	sub.SetGray(2, 1, color.Gray{Y: 250})

	Binarize(sub, DefaultThresholdFactor)

	if got := parent.GrayAt(0, 0).Y; got != 77 {
		t.Errorf("pixel outside the sub image changed to %d", got)
	}
	if got := sub.GrayAt(1, 1).Y; got != 0 {
		t.Errorf("dark pixel = %d, want 0", got)
	}
	if got := sub.GrayAt(2, 1).Y; got != 255 {
		t.Errorf("bright pixel = %d, want 255", got)
	}
}

func TestGrayscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	gray := Grayscale(img)
	if got := gray.GrayAt(0, 0).Y; got != 255 {
		t.Errorf("white = %d, want 255", got)
	}
	if Grayscale(gray) != gray {
		t.Error("Grayscale of *image.Gray should return the same image")
	}
}

func TestExternalStrategy(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.Write(t, dir, "in.pdf", 1, 100)
	out := filepath.Join(dir, "out.pdf")

	var first, second int
	s := NewExternalStrategy(
		fakeBackend{name: "gswin64c", err: errors.New("not found"), calls: &first},
		fakeBackend{name: "gs", body: []byte("%PDF-1.4 small"), calls: &second},
	)

	res, err := s.Compress(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if !res.Success || res.Strategy != "external:gs" || res.Size != int64(len("%PDF-1.4 small")) {
		t.Errorf("Compress() = %+v", res)
	}
	if first != 1 || second != 1 {
		t.Errorf("calls = %d, %d, want 1, 1", first, second)
	}
}

func TestExternalStrategy_Failures(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.Write(t, dir, "in.pdf", 1, 100)

	tests := []struct {
		name     string
		backends []Backend
	}{
		{name: "none configured", backends: nil},
		{name: "all fail", backends: []Backend{
			fakeBackend{name: "a", err: errors.New("exit 1")},
			fakeBackend{name: "b", err: errors.New("exit 2")},
		}},
		{name: "empty output", backends: []Backend{fakeBackend{name: "a", body: nil}}},
		{name: "missing binary", backends: []Backend{GhostscriptBackend{Binary: "pdfc-no-such-binary", Timeout: time.Second}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, tt.name+".pdf")
			res, err := NewExternalStrategy(tt.backends...).Compress(context.Background(), in, out)
			if !errors.Is(err, ErrBackendUnavailable) {
				t.Fatalf("Compress() error = %v, want ErrBackendUnavailable", err)
			}
			if res.Success {
				t.Error("Success = true")
			}
			if exists(out) {
				t.Error("failed strategy left output behind")
			}
		})
	}
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script backend")
	}
	path := filepath.Join(dir, "fake-gs")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGhostscriptBackend_Args(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	script := writeScript(t, dir, `
for a in "$@"; do
  echo "$a" >> "`+argsFile+`"
  case "$a" in -sOutputFile=*) out="${a#-sOutputFile=}";; esac
done
printf 'compressed' > "$out"
`)

	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	b := GhostscriptBackend{Binary: script, Timeout: 10 * time.Second}
	if err := b.Compress(context.Background(), in, out); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	got, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join(ghostscriptArgs(in, out), "\n") + "\n"
	if string(got) != want {
		t.Errorf("args =\n%s\nwant\n%s", got, want)
	}
	for _, arg := range []string{"-sDEVICE=pdfwrite", "-dPDFSETTINGS=/ebook", "-dCompatibilityLevel=1.4"} {
		if !strings.Contains(string(got), arg) {
			t.Errorf("args missing %s", arg)
		}
	}
}

func TestGhostscriptBackend_Timeout(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "exec sleep 5\n")

	b := GhostscriptBackend{Binary: script, Timeout: 100 * time.Millisecond}
	start := time.Now()
	err := b.Compress(context.Background(), "in.pdf", filepath.Join(dir, "out.pdf"))
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Compress() error = %v, want timeout", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Error("backend was not killed at the timeout")
	}
}

func TestOptimizeStrategy(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.Write(t, dir, "in.pdf", 3, 1000)
	out := filepath.Join(dir, "out.pdf")

	res, err := NewOptimizeStrategy().Compress(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if !res.Success || res.Size != fileSize(out) || res.InputSize != fileSize(in) {
		t.Errorf("Compress() = %+v", res)
	}

	corrupt := pdftest.WriteCorrupt(t, dir, "corrupt.pdf")
	if _, err := NewOptimizeStrategy().Compress(context.Background(), corrupt, out); !errors.Is(err, pdf.ErrOpen) {
		t.Errorf("Compress(corrupt) error = %v, want ErrOpen", err)
	}
}

func TestBinarizeStrategy(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.Write(t, dir, "in.pdf", 2, 1000)
	out := filepath.Join(dir, "out.pdf")

	r := &fakeRenderer{}
	s := NewBinarizeStrategy(r)
	s.DPI = 36

	res, err := s.Compress(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if !res.Success || res.Strategy != "binarize" {
		t.Errorf("Compress() = %+v", res)
	}
	if r.rendered != 2 {
		t.Errorf("rendered %d pages, want 2", r.rendered)
	}

	doc, err := pdf.Open(out)
	if err != nil {
		t.Fatalf("Open(out) error = %v", err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("PageCount() = %d, want 2", doc.PageCount())
	}
	for _, p := range doc.Pages {
		if p.Width != pdftest.LetterWidth || p.Height != pdftest.LetterHeight {
			t.Errorf("page %d = %vx%v, want letter", p.Index, p.Width, p.Height)
		}
	}
}

func TestCompressor_ExtremeKeepsPageSize(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.Write(t, dir, "in.pdf", 1, 1000)
	out := filepath.Join(dir, "out.pdf")

	// 200 dpi renders a letter page at 1700x2200 pixels.
	c := New(Config{Renderer: &fakeRenderer{}})
	if _, err := c.Compress(context.Background(), LevelExtreme, in, out); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	doc, err := pdf.Open(out)
	if err != nil {
		t.Fatalf("Open(out) error = %v", err)
	}
	p := doc.Pages[0]
	if p.Width != pdftest.LetterWidth || p.Height != pdftest.LetterHeight {
		t.Errorf("page = %vx%v, want %dx%d", p.Width, p.Height, pdftest.LetterWidth, pdftest.LetterHeight)
	}
}

func TestBinarizeStrategy_RenderFailure(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.Write(t, dir, "in.pdf", 3, 1000)
	out := filepath.Join(dir, "out.pdf")

	s := NewBinarizeStrategy(&fakeRenderer{failPage: 2})
	s.DPI = 36

	res, err := s.Compress(context.Background(), in, out)
	if !errors.Is(err, ErrRasterize) {
		t.Fatalf("Compress() error = %v, want ErrRasterize", err)
	}
	if res.Success || exists(out) {
		t.Errorf("failed binarization produced output: %+v", res)
	}
}

func TestCompressor_StandardFallsBackToOptimize(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.Write(t, dir, "in.pdf", 3, 1000)
	out := filepath.Join(dir, "out.pdf")

	r := &fakeRenderer{}
	c := New(Config{Renderer: r}, WithStrategies(LevelStandard,
		NewExternalStrategy(fakeBackend{name: "gs", err: errors.New("not installed")}),
		NewOptimizeStrategy(),
	))

	res, err := c.Compress(context.Background(), LevelStandard, in, out)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if res.Strategy != "optimize" || !exists(out) {
		t.Errorf("Compress() = %+v, want optimize output", res)
	}
	if r.opened != 0 {
		t.Error("binarization ran at the standard level")
	}
}

func TestCompressor_AllStrategiesFail(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.WriteCorrupt(t, dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")

	c := New(Config{}, WithStrategies(LevelStandard,
		NewExternalStrategy(fakeBackend{name: "gs", err: errors.New("exit 1")}),
		NewOptimizeStrategy(),
	))

	res, err := c.Compress(context.Background(), LevelStandard, in, out)
	if err == nil {
		t.Fatal("Compress() error = nil")
	}
	if !errors.Is(err, ErrBackendUnavailable) || !errors.Is(err, pdf.ErrOpen) {
		t.Errorf("error = %v, want both strategy errors", err)
	}
	if res.Success || exists(out) {
		t.Errorf("failed compression produced output: %+v", res)
	}
}

func TestCompressor_ExtremeDoesNotFallBack(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.Write(t, dir, "in.pdf", 2, 1000)
	out := filepath.Join(dir, "out.pdf")

	c := New(Config{Renderer: &fakeRenderer{failPage: 1}, DPI: 36})
	if got := len(c.Strategies(LevelExtreme)); got != 1 {
		t.Fatalf("extreme chain has %d strategies, want 1", got)
	}

	_, err := c.Compress(context.Background(), LevelExtreme, in, out)
	if !errors.Is(err, ErrRasterize) {
		t.Fatalf("Compress() error = %v, want ErrRasterize", err)
	}
	if exists(out) {
		t.Error("output left behind")
	}
}

func TestCompressor_DefaultChains(t *testing.T) {
	c := New(Config{})

	var names []string
	for _, s := range c.Strategies(LevelStandard) {
		names = append(names, s.Name())
	}
	if strings.Join(names, ",") != "external,optimize" {
		t.Errorf("standard chain = %v, want [external optimize]", names)
	}

	ext := c.Strategies(LevelStandard)[0].(*ExternalStrategy)
	var bins []string
	for _, b := range ext.Backends {
		bins = append(bins, b.Name())
	}
	if strings.Join(bins, ",") != "gswin64c,gswin32c,gs" {
		t.Errorf("backends = %v", bins)
	}
}

func TestResult_Ratio(t *testing.T) {
	tests := []struct {
		res         Result
		want        float64
		wantSmaller bool
	}{
		{res: Result{Success: true, InputSize: 200, Size: 50}, want: 75, wantSmaller: true},
		{res: Result{Success: true, InputSize: 100, Size: 150}, want: -50},
		{res: Result{Success: false, InputSize: 100, Size: 10}, want: 0},
	}
	for _, tt := range tests {
		if got := tt.res.Ratio(); got != tt.want {
			t.Errorf("Ratio(%+v) = %v, want %v", tt.res, got, tt.want)
		}
		if got := tt.res.Smaller(); got != tt.wantSmaller {
			t.Errorf("Smaller(%+v) = %v, want %v", tt.res, got, tt.wantSmaller)
		}
	}
}
