package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const (
	// NoContextMarker replaces the context block when nothing was retrieved
	// or nothing fits the budget.
	NoContextMarker = "NO CONTEXT FOUND"

	SystemInstruction = "You answer questions about the user's documents. " +
		"Answer only from the given context. " +
		"If the context is insufficient to answer, say so plainly and do not guess."

	contextSeparator = "\n\n"
)

// AnswerComposer builds a bounded prompt from ranked segments and asks the
// generator for the final answer.
type AnswerComposer struct {
	generator ports.Generator
}

func NewAnswerComposer(generator ports.Generator) *AnswerComposer {
	return &AnswerComposer{generator: generator}
}

func (c *AnswerComposer) Compose(
	ctx context.Context,
	query string,
	results domain.RetrievalResult,
	maxContextChars int,
) (*domain.Answer, error) {
	if maxContextChars < 1 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "compose", fmt.Errorf("max context chars must be >= 1, got %d", maxContextChars))
	}

	included := SelectContext(results, maxContextChars)
	prompt := BuildPrompt(query, included)

	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		if domain.IsKind(err, domain.ErrGenerationUnavailable) {
			return nil, fmt.Errorf("generate answer: %w", err)
		}
		return nil, domain.WrapError(domain.ErrGenerationUnavailable, "generate answer", err)
	}

	return &domain.Answer{
		Query:           query,
		ContextSegments: included,
		Text:            text,
	}, nil
}

// SelectContext keeps segments in rank order until the next one would push
// the joined context past maxChars. Segments are never cut.
func SelectContext(results domain.RetrievalResult, maxChars int) []domain.Segment {
	included := make([]domain.Segment, 0, len(results))
	used := 0
	sepLen := utf8.RuneCountInString(contextSeparator)
	for _, r := range results {
		add := utf8.RuneCountInString(r.Segment.Text)
		if len(included) > 0 {
			add += sepLen
		}
		if used+add > maxChars {
			break
		}
		included = append(included, r.Segment)
		used += add
	}
	return included
}

func BuildPrompt(query string, segments []domain.Segment) domain.Prompt {
	contextBlock := NoContextMarker
	if len(segments) > 0 {
		texts := make([]string, len(segments))
		for i, s := range segments {
			texts[i] = s.Text
		}
		contextBlock = strings.Join(texts, contextSeparator)
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return domain.Prompt{System: SystemInstruction, User: b.String()}
}
