package metrics

import (
	"context"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/observability/tokens"
)

// InstrumentedGenerator records approximate prompt and completion tokens of
// every successful generation.
type InstrumentedGenerator struct {
	next    ports.Generator
	metrics *HTTPServerMetrics
	counter tokens.Counter
	service string
	model   string
}

func NewInstrumentedGenerator(next ports.Generator, m *HTTPServerMetrics, counter tokens.Counter, service, model string) *InstrumentedGenerator {
	if counter == nil {
		counter = tokens.Estimate{}
	}
	return &InstrumentedGenerator{next: next, metrics: m, counter: counter, service: service, model: model}
}

func (g *InstrumentedGenerator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	text, err := g.next.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	in := g.counter.Count(prompt.System) + g.counter.Count(prompt.User)
	g.metrics.RecordTokenUsage(g.service, "query", g.model, in, g.counter.Count(text))
	return text, nil
}
