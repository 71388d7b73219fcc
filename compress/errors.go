package compress

import "errors"

var (
	// ErrBackendUnavailable is returned when no external backend is installed
	// or every invocation failed.
	ErrBackendUnavailable = errors.New("no compression backend succeeded")

	// ErrRasterize is returned when a page cannot be rendered or encoded
	// during binarization.
	ErrRasterize = errors.New("page rasterization failed")

	// ErrNoStrategy is returned when a level has no strategy configured.
	ErrNoStrategy = errors.New("no compression strategy for level")
)
