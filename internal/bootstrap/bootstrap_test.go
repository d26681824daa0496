package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
)

// letterVector counts letters so similar texts land close together.
func letterVector(text string) []float32 {
	v := make([]float32, 27)
	v[26] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			vectors := make([][]float32, 0, len(req.Input))
			for _, in := range req.Input {
				vectors = append(vectors, letterVector(in))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
		case "/api/generate":
			_ = json.NewEncoder(w).Encode(map[string]any{"response": "stub answer"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, ollamaURL string) config.Config {
	t.Helper()
	return config.Config{
		IndexBackend:       config.BackendSQLite,
		SQLitePath:         filepath.Join(t.TempDir(), "docqa.db"),
		LLMProvider:        config.ProviderOllama,
		OllamaURL:          ollamaURL,
		OllamaGenModel:     "llama3.1:8b",
		OllamaEmbedModel:   "nomic-embed-text",
		EmbedBatchSize:     8,
		ChunkSize:          100,
		ChunkOverlap:       20,
		RAGTopK:            3,
		RAGMaxContextChars: 4000,
		ResilienceEnabled:  true,
		RetryMaxAttempts:   2,
		BreakerEnabled:     false,
	}
}

func TestNewWiresSQLiteIngestAndQuery(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, fakeOllama(t).URL)

	app, err := New(ctx, cfg, Options{Service: "test"})
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Queue, "queue stays off without async ingestion")
	assert.Nil(t, app.EnqueueUC)

	text := strings.Repeat("zebras graze on the open plain near the river. ", 6)
	result, err := app.IngestUC.Ingest(ctx, "zebras.txt", "text/plain", strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, result.Status)
	assert.Greater(t, result.SegmentCount, 1)

	count, err := app.Index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.SegmentCount, count)

	answer, err := app.QueryUC.Query(ctx, "where do zebras graze?")
	require.NoError(t, err)
	assert.Equal(t, "stub answer", answer.Text)
	require.NotEmpty(t, answer.ContextSegments)
	assert.Equal(t, "zebras.txt", answer.ContextSegments[0].SourceID)

	_, err = app.IngestUC.Ingest(ctx, "zebras.txt", "text/plain", strings.NewReader(text))
	assert.True(t, domain.IsKind(err, domain.ErrAlreadyIngested), "got %v", err)

	after, err := app.Index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, count, after)
}

func TestNewRejectsOpenAIWithoutKey(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.LLMProvider = config.ProviderOpenAI

	_, err := New(context.Background(), cfg, Options{Service: "test"})
	assert.True(t, domain.IsKind(err, domain.ErrInvalidConfig), "got %v", err)
}
