// Package extractor talks to the document conversion service that turns
// raw document bytes into markdown, plain text, tables and confidence
// numbers. The service itself is opaque to the pipeline.
package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/iago/licitacao-pipeline/internal/domain"
)

// ErrExtractionFailed marks any failure of the extraction collaborator.
// It is fatal to the task that called it.
var ErrExtractionFailed = errors.New("document extraction failed")

var ErrResponseTooLarge = errors.New("extraction response too large")

type Extractor interface {
	Extract(ctx context.Context, content []byte, fileName string) (domain.Extraction, error)
}

// Error wraps the underlying cause so callers can match both
// ErrExtractionFailed and the cause itself.
type Error struct {
	FileName string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.FileName, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrExtractionFailed, e.Err}
}

func fail(fileName string, err error) error {
	return &Error{FileName: fileName, Err: err}
}

// HTTPError is a non-2xx answer from the extraction service.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("extraction service status %d: %s", e.StatusCode, e.Message)
}

// normalize fills the confidence block when the service reported none.
func normalize(extraction domain.Extraction) domain.Extraction {
	if extraction.Confidence == (domain.Confidence{}) {
		extraction.Confidence = domain.DefaultConfidence()
	} else if extraction.Confidence.Overall == 0 {
		extraction.Confidence.Overall = domain.DefaultConfidence().Overall
	}
	if extraction.Tables == nil {
		extraction.Tables = []domain.Table{}
	}
	return extraction
}
