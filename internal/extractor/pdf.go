package extractor

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var ErrTooManyPages = errors.New("document has too many pages")

// InspectPDF reads the page count of a PDF and enforces maxPages when it
// is positive. Malformed files are reported as errors.
func InspectPDF(content []byte, maxPages int) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	pages, err := api.PageCount(bytes.NewReader(content), cfg)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	if maxPages > 0 && pages > maxPages {
		return pages, fmt.Errorf("%w: %d > %d", ErrTooManyPages, pages, maxPages)
	}
	return pages, nil
}
