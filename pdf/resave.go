package pdf

import (
	"fmt"
)

// Resave rewrites the whole document at inFile into outFile applying opts.
// No page content is touched; only the container is rebuilt.
func Resave(inFile, outFile string, opts SaveOptions) (int64, error) {
	doc, err := Open(inFile)
	if err != nil {
		return 0, err
	}

	size, err := doc.WriteFile(outFile, doc.PageIndices(), opts)
	if err != nil {
		return 0, fmt.Errorf("resave %s: %w", inFile, err)
	}

	return size, nil
}
