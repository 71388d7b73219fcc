// Package pdftest writes small, valid PDF files for tests.
//
// Each page carries one uncompressed DeviceGray image filled with
// pseudo-random bytes, so a page costs roughly its payload in the output
// no matter how the container is deflated.
package pdftest

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// Page sizes in points.
const (
	LetterWidth  = 612
	LetterHeight = 792
)

// imageWidth is the pixel width of every page image.
const imageWidth = 100

// Build returns a PDF with the given number of pages, each embedding about
// payload bytes of incompressible image data.
func Build(pages, payload int, seed int64) []byte {
	rnd := rand.New(rand.NewSource(seed))

	height := payload / imageWidth
	if height < 1 {
		height = 1
	}

	// Object layout: 1 catalog, 2 page tree, then per page: page, content, image.
	var buf bytes.Buffer
	offsets := []int{0}
	begin := func() int {
		offsets = append(offsets, buf.Len())
		return len(offsets) - 1
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	begin()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	begin()
	fmt.Fprintf(&buf, "2 0 obj\n<< /Type /Pages /Kids [")
	for i := 0; i < pages; i++ {
		fmt.Fprintf(&buf, " %d 0 R", 3+i*3)
	}
	fmt.Fprintf(&buf, " ] /Count %d >>\nendobj\n", pages)

	for i := 0; i < pages; i++ {
		pageObj, contentObj, imageObj := 3+i*3, 4+i*3, 5+i*3

		begin()
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << /XObject << /Im0 %d 0 R >> >> /Contents %d 0 R >>\nendobj\n",
			pageObj, LetterWidth, LetterHeight, imageObj, contentObj)

		content := fmt.Sprintf("q %d 0 0 %d 0 0 cm /Im0 Do Q", LetterWidth, LetterHeight)
		begin()
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", contentObj, len(content), content)

		data := make([]byte, imageWidth*height)
		rnd.Read(data)
		begin()
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Length %d >>\nstream\n",
			imageObj, imageWidth, height, len(data))
		buf.Write(data)
		buf.WriteString("\nendstream\nendobj\n")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets))
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets[1:] {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets), xref)

	return buf.Bytes()
}

// Write stores Build's output as name inside dir and returns the path.
func Write(t testing.TB, dir, name string, pages, payload int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(pages, payload, int64(len(name)+pages)), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
	return path
}

// WriteCorrupt stores a file that carries a PDF header but no valid body.
func WriteCorrupt(t testing.TB, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("%PDF-1.4\nthis is not a pdf body\n%%EOF\n"), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
	return path
}
