package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// DocumentIngestor is the inbound contract for synchronous ingestion.
type DocumentIngestor interface {
	Ingest(ctx context.Context, filename, contentType string, body io.Reader) (*domain.IngestResult, error)
}

// TextIngestor ingests text handed over directly rather than as an upload.
type TextIngestor interface {
	IngestText(ctx context.Context, filename, text string) (*domain.IngestResult, error)
}

// DocumentEnqueuer accepts an upload for asynchronous ingestion.
type DocumentEnqueuer interface {
	Enqueue(ctx context.Context, filename, contentType string, body io.Reader) (*domain.DocumentRecord, error)
}

// DocumentQueryService answers a validated natural-language query.
type DocumentQueryService interface {
	Query(ctx context.Context, query string) (*domain.Answer, error)
}

// DocumentReader is the inbound read model for ingestion state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
}

// DocumentProcessor runs a queued ingestion.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
