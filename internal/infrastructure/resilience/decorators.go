package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// ProviderClassifier retries only failures the providers tagged as
// temporary. Context cancellation is neither retried nor counted.
func ProviderClassifier(err error) ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{Retryable: false, RecordFailure: true}
}

// GuardedEmbedder runs an Embedder through the executor. The wrapped
// embedder itself never retries.
type GuardedEmbedder struct {
	next ports.Embedder
	exec *Executor
}

func NewGuardedEmbedder(next ports.Embedder, exec *Executor) *GuardedEmbedder {
	return &GuardedEmbedder{next: next, exec: exec}
}

func (g *GuardedEmbedder) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	var out []domain.Vector
	err := g.exec.Guard(ctx, "embedder.embed", domain.ErrEmbeddingUnavailable, func(ctx context.Context) error {
		vectors, err := g.next.Embed(ctx, texts)
		if err != nil {
			return err
		}
		out = vectors
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *GuardedEmbedder) EmbedQuery(ctx context.Context, text string) (domain.Vector, error) {
	var out domain.Vector
	err := g.exec.Guard(ctx, "embedder.embed_query", domain.ErrEmbeddingUnavailable, func(ctx context.Context) error {
		vector, err := g.next.EmbedQuery(ctx, text)
		if err != nil {
			return err
		}
		out = vector
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type GuardedGenerator struct {
	next ports.Generator
	exec *Executor
}

func NewGuardedGenerator(next ports.Generator, exec *Executor) *GuardedGenerator {
	return &GuardedGenerator{next: next, exec: exec}
}

func (g *GuardedGenerator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	var out string
	err := g.exec.Guard(ctx, "generator.generate", domain.ErrGenerationUnavailable, func(ctx context.Context) error {
		text, err := g.next.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
