package extractor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/iago/licitacao-pipeline/internal/domain"
)

var pdfMagic = []byte("%PDF-")

// TextExtractor treats the document as UTF-8 text. It is the fallback when
// no extraction service is configured and what the offline CLI uses.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (TextExtractor) Extract(ctx context.Context, content []byte, fileName string) (domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Extraction{}, fail(fileName, err)
	}
	if bytes.HasPrefix(content, pdfMagic) {
		return domain.Extraction{}, fail(fileName, errors.New("pdf documents need an extraction service"))
	}
	if !utf8.Valid(content) {
		return domain.Extraction{}, fail(fileName, errors.New("document is not valid utf-8 text"))
	}
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return domain.Extraction{}, fail(fileName, errors.New("document is empty"))
	}

	// Form feeds separate pages in text exports.
	pages := strings.Count(text, "\f") + 1
	return normalize(domain.Extraction{
		Markdown: text,
		Text:     text,
		Pages:    pages,
	}), nil
}
