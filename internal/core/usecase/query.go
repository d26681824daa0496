package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const (
	DefaultTopK            = 3
	DefaultMaxContextChars = 4000
)

// QueryUseCase answers a question from the indexed documents.
type QueryUseCase struct {
	retriever       *Retriever
	composer        *AnswerComposer
	topK            int
	maxContextChars int
}

func NewQueryUseCase(retriever *Retriever, composer *AnswerComposer, topK, maxContextChars int) *QueryUseCase {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}
	return &QueryUseCase{
		retriever:       retriever,
		composer:        composer,
		topK:            topK,
		maxContextChars: maxContextChars,
	}
}

func (uc *QueryUseCase) Query(ctx context.Context, query string) (*domain.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrValidation, "query", errors.New("query is required"))
	}

	results, err := uc.retriever.Retrieve(ctx, query, uc.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	answer, err := uc.composer.Compose(ctx, query, results, uc.maxContextChars)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	return answer, nil
}
