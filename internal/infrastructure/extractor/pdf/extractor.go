package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type Extractor struct {
	maxPages int
}

// NewExtractor returns a PDF text extractor. maxPages <= 0 disables the page limit.
func NewExtractor(maxPages int) *Extractor {
	return &Extractor{maxPages: maxPages}
}

func (e *Extractor) Extract(ctx context.Context, doc domain.Document) (string, error) {
	pages, err := api.PageCount(bytes.NewReader(doc.Content), model.NewDefaultConfiguration())
	if err != nil {
		return "", domain.WrapError(domain.ErrValidation, "read pdf", fmt.Errorf("%s: %w", doc.SourceID, err))
	}
	if pages == 0 {
		return "", domain.WrapError(domain.ErrValidation, "read pdf", errors.New("pdf has no pages"))
	}
	if e.maxPages > 0 && pages > e.maxPages {
		return "", domain.WrapError(domain.ErrValidation, "read pdf", fmt.Errorf("pdf has %d pages, limit is %d", pages, e.maxPages))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	reader, err := lpdf.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	if err != nil {
		return "", domain.WrapError(domain.ErrValidation, "open pdf", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", domain.WrapError(domain.ErrValidation, "extract pdf text", errors.New("pdf contains no extractable text"))
	}
	return string(raw), nil
}
