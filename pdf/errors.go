package pdf

import "errors"

var (
	// ErrOpen is returned when a path is unreadable or not a valid PDF container.
	ErrOpen = errors.New("cannot open pdf")

	// ErrPageSelection is returned when a page index list is empty, out of
	// range or not strictly ascending.
	ErrPageSelection = errors.New("invalid page selection")

	// ErrRender is returned when a page cannot be rasterized.
	ErrRender = errors.New("cannot render page")
)
