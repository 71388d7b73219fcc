package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func init() {
	// pdfcpu would otherwise create a config.yml below the user's config dir.
	api.DisableConfigDir()
}

// Page is the geometry of a single page, in points.
type Page struct {
	Index  int
	Width  float64
	Height float64
}

// SaveOptions selects the container-level optimizations applied when a
// document is serialized.
type SaveOptions struct {
	// Deflate Flate-encodes streams that carry no filter and writes object
	// and xref streams.
	Deflate bool
	// CollectGarbage drops objects unreachable from the page tree and
	// deduplicates shared resources.
	CollectGarbage bool
}

// DefaultSaveOptions is used for every output this module writes.
var DefaultSaveOptions = SaveOptions{Deflate: true, CollectGarbage: true}

// Document is an opened PDF. The source bytes are held in memory and never
// modified; every serialization produces a new container.
type Document struct {
	Path  string
	Pages []Page

	data []byte

	deflateOnce sync.Once
	deflated    []byte
	deflateErr  error
}

// Open reads and validates the PDF at path.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	return Load(path, data)
}

// Load validates an in-memory PDF. name is only used in errors and logs.
func Load(name string, data []byte) (*Document, error) {
	head := data
	if len(head) > HeaderProbeBytes {
		head = head[:HeaderProbeBytes]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: %s: header does not match", ErrOpen, name)
	}

	dims, err := api.PageDims(bytes.NewReader(data), newConfiguration(DefaultSaveOptions))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, name, err)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: %s: document has no pages", ErrOpen, name)
	}

	pages := make([]Page, len(dims))
	for i, d := range dims {
		pages[i] = Page{Index: i, Width: d.Width, Height: d.Height}
	}

	return &Document{Path: name, Pages: pages, data: data}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// PageIndices returns every page index in order.
func (d *Document) PageIndices() []int {
	return PageRange(0, len(d.Pages))
}

// Size returns the byte size of the source container.
func (d *Document) Size() int64 {
	return int64(len(d.data))
}

// Bytes returns the source container. Callers must not modify it.
func (d *Document) Bytes() []byte {
	return d.data
}

// Serialize writes a new container holding exactly the given pages, in order.
// Page subsets always go through pdfcpu's trim, which drops unreachable
// objects whether or not opts.CollectGarbage is set.
func (d *Document) Serialize(w io.Writer, pages []int, opts SaveOptions) error {
	if err := ValidatePageIndices(pages, len(d.Pages)); err != nil {
		return err
	}

	src, err := d.source(opts)
	if err != nil {
		return err
	}

	conf := newConfiguration(opts)
	rs := bytes.NewReader(src)

	// Strictly ascending and of full length means the selection is the whole document.
	if len(pages) == len(d.Pages) {
		if opts.CollectGarbage {
			return api.Optimize(rs, w, conf)
		}
		ctx, err := api.ReadContext(rs, conf)
		if err != nil {
			return fmt.Errorf("read %s: %w", d.Path, err)
		}
		return api.WriteContext(ctx, w)
	}

	return api.Trim(rs, w, PageSelection(pages), conf)
}

// SerializedSize performs a trial serialization and returns the resulting
// byte size without keeping the output.
func (d *Document) SerializedSize(pages []int, opts SaveOptions) (int64, error) {
	var cw countingWriter
	if err := d.Serialize(&cw, pages, opts); err != nil {
		return 0, err
	}
	return cw.n, nil
}

// WriteFile serializes pages into path and returns the written size.
// A partially written file is removed on failure.
func (d *Document) WriteFile(path string, pages []int, opts SaveOptions) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	var cw countingWriter
	err = d.Serialize(io.MultiWriter(f, &cw), pages, opts)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}

	return cw.n, nil
}

// source returns the container that serialization starts from.
func (d *Document) source(opts SaveOptions) ([]byte, error) {
	if !opts.Deflate {
		return d.data, nil
	}
	d.deflateOnce.Do(func() {
		d.deflated, d.deflateErr = deflateStreams(d.data)
	})
	if d.deflateErr != nil {
		return nil, fmt.Errorf("deflate %s: %w", d.Path, d.deflateErr)
	}
	return d.deflated, nil
}

// deflateStreams returns a copy of the container with every unfiltered
// stream Flate-encoded.
func deflateStreams(data []byte) ([]byte, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), newConfiguration(DefaultSaveOptions))
	if err != nil {
		return nil, err
	}

	for _, entry := range ctx.XRefTable.Table {
		if entry == nil || entry.Free || entry.Object == nil {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok || len(sd.FilterPipeline) > 0 {
			continue
		}
		if sd.Content == nil {
			if sd.Raw == nil {
				continue
			}
			sd.Content = sd.Raw
		}
		sd.InsertName("Filter", filter.Flate)
		sd.FilterPipeline = []types.PDFFilter{{Name: filter.Flate}}
		if err := sd.Encode(); err != nil {
			return nil, err
		}
		entry.Object = sd
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newConfiguration(opts SaveOptions) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = opts.Deflate
	conf.WriteXRefStream = opts.Deflate
	return conf
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
