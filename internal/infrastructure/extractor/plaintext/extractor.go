package plaintext

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, doc domain.Document) (string, error) {
	raw := doc.Content
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrValidation, "extract text", fmt.Errorf("%s is not valid UTF-8 text", doc.SourceID))
	}
	if len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF {
		raw = raw[3:]
	}
	if len(raw) == 0 {
		return "", domain.WrapError(domain.ErrValidation, "extract text", errors.New("empty document"))
	}
	return string(raw), nil
}
