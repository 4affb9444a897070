package ocr

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether content starts with the PDF header.
func IsPDF(content []byte) bool {
	return bytes.HasPrefix(content, pdfMagic)
}

// CountPages reads the page tree of a PDF locally. It is a hint only: scanned
// packets are often damaged, so callers fall back to probing on error.
func CountPages(content []byte) (int, error) {
	if !IsPDF(content) {
		return 0, fmt.Errorf("not a pdf")
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(content), conf)
	if err != nil {
		return 0, fmt.Errorf("pdf page count: %w", err)
	}
	return n, nil
}
