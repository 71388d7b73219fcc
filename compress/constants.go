package compress

import "time"

const (
	// DefaultBackendTimeout bounds a single external backend invocation
	DefaultBackendTimeout = 5 * time.Minute

	// DefaultThresholdFactor scales the mean page intensity into the
	// black/white threshold
	DefaultThresholdFactor = 0.92

	// GhostscriptQuality is the fixed pdfwrite preset (between /screen and /printer)
	GhostscriptQuality = "/ebook"

	// GhostscriptCompatibility is the PDF version Ghostscript writes
	GhostscriptCompatibility = "1.4"
)

// GhostscriptBinaries lists the executable names tried, in order.
var GhostscriptBinaries = []string{"gswin64c", "gswin32c", "gs"}
