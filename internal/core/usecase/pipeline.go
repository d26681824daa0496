package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// IngestPipeline turns one document into index entries: extract, chunk,
// embed, insert. It performs no retries; a failure leaves the index as it
// was before the call.
type IngestPipeline struct {
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	chunkSize int
	overlap   int
}

func NewIngestPipeline(
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	chunkSize, overlap int,
) *IngestPipeline {
	return &IngestPipeline{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// Run returns the number of segments inserted.
func (p *IngestPipeline) Run(ctx context.Context, doc domain.Document) (int, error) {
	text, err := p.extractText(ctx, doc)
	if err != nil {
		return 0, err
	}

	segments, err := p.chunk(doc, text)
	if err != nil {
		return 0, err
	}

	vectors, err := p.embed(ctx, segments)
	if err != nil {
		return 0, err
	}

	entries := make([]domain.IndexEntry, len(segments))
	for i := range segments {
		entries[i] = domain.IndexEntry{Vector: vectors[i], Segment: segments[i]}
	}
	if err := p.index.Insert(ctx, entries); err != nil {
		return 0, fmt.Errorf("insert segments: %w", err)
	}
	return len(entries), nil
}

func (p *IngestPipeline) extractText(ctx context.Context, doc domain.Document) (string, error) {
	text, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return "", domain.WrapError(domain.ErrValidation, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

func (p *IngestPipeline) chunk(doc domain.Document, text string) ([]domain.Segment, error) {
	segments, err := p.chunker.Split(doc, text, p.chunkSize, p.overlap)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	if len(segments) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "chunk document", errors.New("chunking produced zero segments"))
	}
	return segments, nil
}

func (p *IngestPipeline) embed(ctx context.Context, segments []domain.Segment) ([]domain.Vector, error) {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed segments: %w", err)
	}
	if len(vectors) != len(segments) {
		return nil, domain.WrapError(
			domain.ErrEmbeddingUnavailable,
			"embed segments",
			fmt.Errorf("vectors/segments mismatch: %d/%d", len(vectors), len(segments)),
		)
	}
	return vectors, nil
}
