package pdf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ImagePage is an encoded image that becomes the only content of a page of
// the given size (points). The image is scaled to fit the page whatever its
// pixel size.
type ImagePage struct {
	Image  []byte
	Width  float64
	Height float64
}

// WriteImagePages builds a fresh document with one page per image, each
// image filling its page, and serializes it to w with opts.
func WriteImagePages(w io.Writer, pages []ImagePage, opts SaveOptions) error {
	if len(pages) == 0 {
		return fmt.Errorf("%w: no pages", ErrPageSelection)
	}

	var built []byte
	conf := newConfiguration(opts)

	// Runs of equally sized pages share one import call.
	for i := 0; i < len(pages); {
		j := i + 1
		for j < len(pages) && pages[j].Width == pages[i].Width && pages[j].Height == pages[i].Height {
			j++
		}

		imgs := make([]io.Reader, 0, j-i)
		for _, p := range pages[i:j] {
			imgs = append(imgs, bytes.NewReader(p.Image))
		}

		imp := pdfcpu.DefaultImportConfig()
		imp.PageDim = &types.Dim{Width: pages[i].Width, Height: pages[i].Height}
		imp.UserDim = true
		// Full would size the page to the image's pixels; a relative scale
		// of 1 fits the image into the fixed page instead.
		imp.Pos = types.Center
		imp.Scale = 1.0
		imp.ScaleAbs = false

		var rs io.ReadSeeker
		if built != nil {
			rs = bytes.NewReader(built)
		}

		var buf bytes.Buffer
		if err := api.ImportImages(rs, &buf, imgs, imp, conf); err != nil {
			return fmt.Errorf("import pages %d-%d: %w", i+1, j, err)
		}
		built = buf.Bytes()
		i = j
	}

	doc, err := Load("image document", built)
	if err != nil {
		return err
	}
	return doc.Serialize(w, doc.PageIndices(), opts)
}
