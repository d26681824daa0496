package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// DocumentRepository persists ingestion records.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.DocumentRecord) error
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
	FindReadyBySource(ctx context.Context, sourceID string) (*domain.DocumentRecord, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, segmentCount int, errMessage string) error
}

// ObjectStorage stores raw uploads awaiting asynchronous ingestion.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, documentID string) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor turns raw document bytes into text.
type TextExtractor interface {
	Extract(ctx context.Context, doc domain.Document) (string, error)
}

// Chunker splits normalized document text into overlapping segments.
type Chunker interface {
	Split(doc domain.Document, text string, chunkSize, overlap int) ([]domain.Segment, error)
}

// Embedder builds vectors for segments and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]domain.Vector, error)
	EmbedQuery(ctx context.Context, text string) (domain.Vector, error)
}

// VectorIndex stores index entries durably and answers top-k cosine searches.
type VectorIndex interface {
	Insert(ctx context.Context, entries []domain.IndexEntry) error
	Search(ctx context.Context, query domain.Vector, k int) ([]domain.ScoredSegment, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Generator produces the final user-facing answer text.
type Generator interface {
	Generate(ctx context.Context, prompt domain.Prompt) (string, error)
}
