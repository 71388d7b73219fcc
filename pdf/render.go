package pdf

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/enums"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
	"golang.org/x/image/draw"
)

// Renderer opens documents for rasterization.
type Renderer interface {
	Open(doc *Document) (RenderSession, error)
}

// RenderSession gives page level access to one opened document.
type RenderSession interface {
	// RenderPage rasterizes the page at index at dpi.
	RenderPage(ctx context.Context, index, dpi int) (image.Image, error)
	// ImageObjects counts the image objects placed on the page at index.
	ImageObjects(index int) (int, error)
	Close() error
}

// PdfiumRenderer renders pages with pdfium compiled to WebAssembly, so no
// native library is needed. The worker is started on first use; calls are
// serialized since a single pdfium instance is not safe for concurrent use.
type PdfiumRenderer struct {
	timeout time.Duration

	once     sync.Once
	initErr  error
	pool     pdfium.Pool
	instance pdfium.Pdfium

	mu sync.Mutex
}

// NewPdfiumRenderer creates a renderer; timeout bounds the wait for a worker.
func NewPdfiumRenderer(timeout time.Duration) *PdfiumRenderer {
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	return &PdfiumRenderer{timeout: timeout}
}

func (r *PdfiumRenderer) init() error {
	r.once.Do(func() {
		pool, err := webassembly.Init(webassembly.Config{
			MinIdle:  1,
			MaxIdle:  1,
			MaxTotal: 1,
		})
		if err != nil {
			r.initErr = fmt.Errorf("init pdfium: %w", err)
			return
		}

		instance, err := pool.GetInstance(r.timeout)
		if err != nil {
			pool.Close()
			r.initErr = fmt.Errorf("pdfium instance: %w", err)
			return
		}

		r.pool = pool
		r.instance = instance
	})
	return r.initErr
}

// Open loads doc into pdfium.
func (r *PdfiumRenderer) Open(doc *Document) (RenderSession, error) {
	if err := r.init(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data := doc.Bytes()
	resp, err := r.instance.OpenDocument(&requests.OpenDocument{File: &data})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, doc.Path, err)
	}

	return &pdfiumSession{r: r, doc: resp.Document}, nil
}

// Close releases the pdfium worker. It is safe to call on an unused renderer.
func (r *PdfiumRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.instance != nil {
		r.instance.Close()
		r.instance = nil
	}
	if r.pool != nil {
		if err := r.pool.Close(); err != nil {
			return err
		}
		r.pool = nil
	}
	return nil
}

type pdfiumSession struct {
	r   *PdfiumRenderer
	doc references.FPDF_DOCUMENT
}

func (s *pdfiumSession) page(index int) requests.Page {
	return requests.Page{
		ByIndex: &requests.PageByIndex{
			Document: s.doc,
			Index:    index,
		},
	}
}

func (s *pdfiumSession) RenderPage(ctx context.Context, index, dpi int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dpi <= 0 {
		return nil, fmt.Errorf("%w: dpi must be positive, got %d", ErrRender, dpi)
	}

	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	resp, err := s.r.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		Page: s.page(index),
		DPI:  dpi,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrRender, index+1, err)
	}
	defer resp.Cleanup()

	// The bitmap lives in pdfium's memory and is released by Cleanup.
	src := resp.Result.Image
	img := image.NewRGBA(src.Bounds())
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)

	return img, nil
}

func (s *pdfiumSession) ImageObjects(index int) (int, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	page := s.page(index)
	count, err := s.r.instance.FPDFPage_CountObjects(&requests.FPDFPage_CountObjects{Page: page})
	if err != nil {
		return 0, fmt.Errorf("count objects on page %d: %w", index+1, err)
	}

	images := 0
	for i := 0; i < count.Count; i++ {
		obj, err := s.r.instance.FPDFPage_GetObject(&requests.FPDFPage_GetObject{Page: page, Index: i})
		if err != nil {
			return 0, fmt.Errorf("object %d on page %d: %w", i, index+1, err)
		}
		typ, err := s.r.instance.FPDFPageObj_GetType(&requests.FPDFPageObj_GetType{PageObject: obj.PageObject})
		if err != nil {
			return 0, fmt.Errorf("object %d on page %d: %w", i, index+1, err)
		}
		if typ.Type == enums.FPDF_PAGEOBJ_IMAGE {
			images++
		}
	}

	return images, nil
}

func (s *pdfiumSession) Close() error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	_, err := s.r.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: s.doc})
	return err
}
