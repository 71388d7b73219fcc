package compress

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"pdf_compactor/pdf"
)

// BinarizeStrategy rasterizes every page, thresholds it to pure black and
// white and rebuilds the document from the resulting images. Text and vector
// content is lost.
type BinarizeStrategy struct {
	Renderer pdf.Renderer
	DPI      int
	Factor   float64
	Options  pdf.SaveOptions
}

// NewBinarizeStrategy returns a BinarizeStrategy with the default DPI and
// threshold factor.
func NewBinarizeStrategy(r pdf.Renderer) *BinarizeStrategy {
	return &BinarizeStrategy{
		Renderer: r,
		DPI:      pdf.DefaultDPI,
		Factor:   DefaultThresholdFactor,
		Options:  pdf.DefaultSaveOptions,
	}
}

func (s *BinarizeStrategy) Name() string { return "binarize" }

func (s *BinarizeStrategy) Compress(ctx context.Context, in, out string) (Result, error) {
	res := Result{Strategy: s.Name(), InputSize: fileSize(in)}
	if s.Renderer == nil {
		return res, fmt.Errorf("%w: no renderer configured", ErrRasterize)
	}

	doc, err := pdf.Open(in)
	if err != nil {
		return res, err
	}

	pages, err := s.rasterize(ctx, doc)
	if err != nil {
		return res, err
	}

	f, err := os.Create(out)
	if err != nil {
		return res, err
	}
	err = pdf.WriteImagePages(f, pages, s.Options)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(out)
		return res, fmt.Errorf("write binarized document: %w", err)
	}

	res.Success = true
	res.Path = out
	res.Size = fileSize(out)
	return res, nil
}

func (s *BinarizeStrategy) rasterize(ctx context.Context, doc *pdf.Document) ([]pdf.ImagePage, error) {
	session, err := s.Renderer.Open(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRasterize, err)
	}
	defer session.Close()

	dpi := s.DPI
	if dpi <= 0 {
		dpi = pdf.DefaultDPI
	}
	factor := s.Factor
	if factor <= 0 {
		factor = DefaultThresholdFactor
	}

	pages := make([]pdf.ImagePage, 0, doc.PageCount())
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := session.RenderPage(ctx, page.Index, dpi)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrRasterize, page.Index+1, err)
		}

		gray := Grayscale(img)
		Binarize(gray, factor)

		encoded, err := EncodePNG(gray)
		if err != nil {
			return nil, fmt.Errorf("%w: encode page %d: %v", ErrRasterize, page.Index+1, err)
		}

		pages = append(pages, pdf.ImagePage{
			Image:  encoded,
			Width:  page.Width,
			Height: page.Height,
		})
	}

	return pages, nil
}

// Grayscale converts img to 8-bit luminance.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}

// Threshold returns the mean intensity of img scaled by factor.
func Threshold(img *image.Gray, factor float64) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	var sum uint64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for _, v := range row {
			sum += uint64(v)
		}
	}
	return float64(sum) / float64(w*h) * factor
}

// Binarize maps every pixel of img to white when it is brighter than
// Threshold(img, factor) and to black otherwise.
func Binarize(img *image.Gray, factor float64) {
	t := Threshold(img, factor)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x, v := range row {
			if float64(v) > t {
				row[x] = 0xff
			} else {
				row[x] = 0
			}
		}
	}
}

// EncodePNG encodes img losslessly at the best compression level.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
