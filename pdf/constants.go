package pdf

import "time"

const (
	// DefaultDPI is the rasterization resolution used when a caller does not pick one
	DefaultDPI = 200

	// ScannedPageRatio is the minimum share of pages (40%) carrying an image object
	// for a document to be reported as a scan
	ScannedPageRatio = 0.4

	// HeaderProbeBytes is how far into a file the %PDF- marker is searched for
	HeaderProbeBytes = 1024

	// DefaultRenderTimeout bounds how long we wait for a pdfium worker
	DefaultRenderTimeout = 30 * time.Second
)
