package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func scored(id, text string, score float64) domain.ScoredSegment {
	return domain.ScoredSegment{Segment: domain.Segment{ID: id, SourceID: "doc", Text: text}, Score: score}
}

func TestComposeRespectsBudgetWithoutCuttingSegments(t *testing.T) {
	gen := &generatorFake{answer: "42"}
	composer := NewAnswerComposer(gen)
	results := domain.RetrievalResult{
		scored("a", strings.Repeat("a", 40), 0.9),
		scored("b", strings.Repeat("b", 40), 0.8),
		scored("c", strings.Repeat("c", 40), 0.7),
	}

	// 40 + 2 + 40 = 82 fits, the third segment would need 124.
	answer, err := composer.Compose(context.Background(), "q", results, 100)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if len(answer.ContextSegments) != 2 || answer.ContextSegments[0].ID != "a" || answer.ContextSegments[1].ID != "b" {
		t.Fatalf("unexpected context segments: %+v", answer.ContextSegments)
	}
	if strings.Contains(gen.prompt.User, "ccc") {
		t.Fatalf("dropped segment leaked into prompt")
	}
	if !strings.Contains(gen.prompt.User, strings.Repeat("a", 40)+"\n\n"+strings.Repeat("b", 40)) {
		t.Fatalf("expected segments joined in rank order, got %q", gen.prompt.User)
	}
	if gen.prompt.System != SystemInstruction {
		t.Fatalf("expected fixed system instruction")
	}
	if answer.Text != "42" || answer.Query != "q" {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestComposeStopsAtFirstSegmentThatDoesNotFit(t *testing.T) {
	gen := &generatorFake{answer: "ok"}
	results := domain.RetrievalResult{
		scored("big", strings.Repeat("x", 50), 0.9),
		scored("small", "tiny", 0.8),
	}
	answer, err := NewAnswerComposer(gen).Compose(context.Background(), "q", results, 20)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if len(answer.ContextSegments) != 0 {
		t.Fatalf("expected lower-ranked segments dropped, got %+v", answer.ContextSegments)
	}
	if !strings.Contains(gen.prompt.User, NoContextMarker) {
		t.Fatalf("expected no-context marker, got %q", gen.prompt.User)
	}
}

func TestComposeEmptyResultsStillCallsGenerator(t *testing.T) {
	gen := &generatorFake{answer: "I cannot answer from the documents."}
	answer, err := NewAnswerComposer(gen).Compose(context.Background(), "what?", nil, 1000)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one generator call, got %d", gen.calls)
	}
	if !strings.Contains(gen.prompt.User, NoContextMarker) || !strings.Contains(gen.prompt.User, "what?") {
		t.Fatalf("unexpected prompt %q", gen.prompt.User)
	}
	if len(answer.ContextSegments) != 0 {
		t.Fatalf("expected empty context segments")
	}
}

func TestComposeCountsCharactersNotBytes(t *testing.T) {
	gen := &generatorFake{answer: "ok"}
	results := domain.RetrievalResult{scored("ru", strings.Repeat("ж", 10), 1)}
	answer, err := NewAnswerComposer(gen).Compose(context.Background(), "q", results, 10)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if len(answer.ContextSegments) != 1 {
		t.Fatalf("10 two-byte runes must fit a 10 character budget")
	}
}

func TestComposeWrapsGeneratorFailures(t *testing.T) {
	gen := &generatorFake{err: errors.New("socket closed")}
	_, err := NewAnswerComposer(gen).Compose(context.Background(), "q", nil, 100)
	if !domain.IsKind(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}

	gen.err = domain.WrapError(domain.ErrGenerationUnavailable, "ollama generate", errors.New("503"))
	_, err = NewAnswerComposer(gen).Compose(context.Background(), "q", nil, 100)
	if !domain.IsKind(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
}

func TestComposeRejectsNonPositiveBudget(t *testing.T) {
	gen := &generatorFake{}
	_, err := NewAnswerComposer(gen).Compose(context.Background(), "q", nil, 0)
	if !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called")
	}
}
