package pdf

import (
	"fmt"
	"strconv"
)

// PageSelection converts 0-based page indices into pdfcpu page selection strings.
// Consecutive runs are collapsed: [0 1 2 4] becomes ["1-3", "5"].
func PageSelection(indices []int) []string {
	var out []string
	for i := 0; i < len(indices); {
		j := i
		for j+1 < len(indices) && indices[j+1] == indices[j]+1 {
			j++
		}

		start, end := indices[i]+1, indices[j]+1
		if start == end {
			out = append(out, strconv.Itoa(start))
		} else {
			out = append(out, fmt.Sprintf("%d-%d", start, end))
		}
		i = j + 1
	}
	return out
}

// ValidatePageIndices checks that indices is a non-empty, strictly ascending
// list of valid 0-based indices for a document with totalPages pages.
// Pages are never reordered or duplicated, so anything else is rejected.
func ValidatePageIndices(indices []int, totalPages int) error {
	if len(indices) == 0 {
		return fmt.Errorf("%w: no pages", ErrPageSelection)
	}
	for i, page := range indices {
		if page < 0 {
			return fmt.Errorf("%w: page index must not be negative, got %d", ErrPageSelection, page)
		}
		if page >= totalPages {
			return fmt.Errorf("%w: page index %d exceeds total pages (%d)", ErrPageSelection, page, totalPages)
		}
		if i > 0 && page <= indices[i-1] {
			return fmt.Errorf("%w: page indices must be strictly ascending (%d after %d)", ErrPageSelection, page, indices[i-1])
		}
	}
	return nil
}

// PageRange returns the indices [start, end).
func PageRange(start, end int) []int {
	if end <= start {
		return nil
	}
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}
