package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultMaxBatchSize = 32
)

type Options struct {
	// Timeout bounds every provider call; zero means 60s.
	Timeout      time.Duration
	MaxBatchSize int
	HTTPClient   *http.Client
}

type Client struct {
	baseURL      string
	genModel     string
	embedModel   string
	timeout      time.Duration
	maxBatchSize int
	httpClient   *http.Client
}

func New(baseURL, genModel, embedModel string) *Client {
	return NewWithOptions(baseURL, genModel, embedModel, Options{})
}

func NewWithOptions(baseURL, genModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	batch := options.MaxBatchSize
	if batch <= 0 {
		batch = defaultMaxBatchSize
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		genModel:     genModel,
		embedModel:   embedModel,
		timeout:      timeout,
		maxBatchSize: batch,
		httpClient:   httpClient,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// Embed submits texts in batches of at most MaxBatchSize and returns one
// vector per input, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([]domain.Vector, 0, len(texts))
	for start := 0; start < len(texts); start += e.client.maxBatchSize {
		end := start + e.client.maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}

	dim := len(out[0])
	for i, v := range out {
		if len(v) == 0 || len(v) != dim {
			return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "ollama embed", fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim))
		}
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([]domain.Vector, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.client.timeout)
	defer cancel()

	request := map[string]any{
		"model": e.client.embedModel,
		"input": batch,
	}
	var response struct {
		Embeddings []domain.Vector `json:"embeddings"`
	}
	if err := e.client.postJSON(callCtx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, wrapProviderError(domain.ErrEmbeddingUnavailable, "ollama embed", err)
	}
	if len(response.Embeddings) != len(batch) {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "ollama embed", fmt.Errorf("got %d vectors for %d inputs", len(response.Embeddings), len(batch)))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) (domain.Vector, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.client.timeout)
	defer cancel()

	reqBody := map[string]any{
		"model":  g.client.genModel,
		"system": prompt.System,
		"prompt": prompt.User,
		"stream": false,
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.postJSON(callCtx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", wrapProviderError(domain.ErrGenerationUnavailable, "ollama generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}
