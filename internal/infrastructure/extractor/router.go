package extractor

import (
	"context"
	"fmt"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// Router dispatches extraction by declared content type.
type Router struct {
	byType map[domain.ContentType]ports.TextExtractor
}

func NewRouter(byType map[domain.ContentType]ports.TextExtractor) *Router {
	return &Router{byType: byType}
}

func (r *Router) Extract(ctx context.Context, doc domain.Document) (string, error) {
	ext, ok := r.byType[doc.ContentType]
	if !ok {
		return "", domain.WrapError(domain.ErrValidation, "extract text", fmt.Errorf("unsupported content type %q", doc.ContentType))
	}
	return ext.Extract(ctx, doc)
}
