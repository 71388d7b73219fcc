package pdf

import (
	"context"
	"fmt"
)

// Analysis summarizes how much of a document is made of raster images.
type Analysis struct {
	TotalPages      int      `json:"total_pages"`
	ImagePages      int      `json:"image_pages"`
	Scanned         bool     `json:"scanned"`
	Recommendations []string `json:"recommendations"`
}

// Analyze counts the pages that carry at least one image object. A document
// is reported as scanned when that share reaches ScannedPageRatio. The result
// is advisory only; callers still choose the compression level themselves.
func Analyze(ctx context.Context, r Renderer, doc *Document) (*Analysis, error) {
	session, err := r.Open(doc)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	analysis := &Analysis{
		TotalPages:      doc.PageCount(),
		Recommendations: []string{},
	}

	for i := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := session.ImageObjects(i)
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", doc.Path, err)
		}
		if n > 0 {
			analysis.ImagePages++
		}
	}

	analysis.Scanned = float64(analysis.ImagePages) >= float64(analysis.TotalPages)*ScannedPageRatio

	if analysis.Scanned {
		analysis.Recommendations = append(analysis.Recommendations,
			"Mostly scanned pages - extreme (black & white) compression usually gives the largest reduction")
	} else {
		analysis.Recommendations = append(analysis.Recommendations,
			"Mostly vector/text pages - standard compression keeps text selectable")
	}
	if analysis.ImagePages == 0 {
		analysis.Recommendations = append(analysis.Recommendations,
			"No images found - compression gains will come from stream deflation only")
	}

	return analysis, nil
}
