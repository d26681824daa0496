package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/core/usecase"
	"github.com/kirillkom/docqa/internal/infrastructure/chunking"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/xlsx"
	"github.com/kirillkom/docqa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docqa/internal/infrastructure/llm/openai"
	"github.com/kirillkom/docqa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docqa/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
	"github.com/kirillkom/docqa/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/sqlite"
	"github.com/kirillkom/docqa/internal/observability/metrics"
	"github.com/kirillkom/docqa/internal/observability/tokens"
)

// Options selects the optional parts of the graph a command needs.
type Options struct {
	Service string
	// Metrics, when set, receives provider retries and token usage.
	Metrics *metrics.HTTPServerMetrics
	// Queue forces the NATS queue on even when async ingestion is disabled.
	Queue bool
}

type App struct {
	Config config.Config

	Index     ports.VectorIndex
	Repo      ports.DocumentRepository
	Queue     ports.MessageQueue
	IngestUC  *usecase.IngestUseCase
	EnqueueUC *usecase.EnqueueUseCase
	ProcessUC *usecase.ProcessUseCase
	QueryUC   *usecase.QueryUseCase

	closers []func() error
}

func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}

	embedder, generator, model, err := newProviders(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.ResilienceEnabled {
		executor := resilience.NewExecutor(resilience.Config{
			RetryMaxAttempts:        cfg.RetryMaxAttempts,
			RetryInitialBackoff:     cfg.RetryInitialBackoff,
			RetryMaxBackoff:         cfg.RetryMaxBackoff,
			BreakerEnabled:          cfg.BreakerEnabled,
			BreakerMinRequests:      cfg.BreakerMinRequests,
			BreakerFailureRatio:     cfg.BreakerFailureRatio,
			BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
			BreakerHalfOpenMaxCalls: cfg.BreakerHalfOpenMaxCalls,
		})
		if opts.Metrics != nil {
			executor.SetRetryHook(func(operation string, _ int) {
				opts.Metrics.RecordProviderRetry(opts.Service, operation)
			})
		}
		embedder = resilience.NewGuardedEmbedder(embedder, executor)
		generator = resilience.NewGuardedGenerator(generator, executor)
	}
	if opts.Metrics != nil {
		generator = metrics.NewInstrumentedGenerator(generator, opts.Metrics, tokens.New(tokenizerModel(cfg, model)), opts.Service, model)
	}

	extractors := extractor.NewRouter(map[domain.ContentType]ports.TextExtractor{
		domain.ContentTypeText: plaintext.NewExtractor(),
		domain.ContentTypePDF:  pdf.NewExtractor(cfg.PDFMaxPages),
		domain.ContentTypeXLSX: xlsx.NewExtractor(),
	})
	pipeline := usecase.NewIngestPipeline(extractors, chunking.NewSplitter(), embedder, app.Index, cfg.ChunkSize, cfg.ChunkOverlap)

	app.IngestUC = usecase.NewIngestUseCase(app.Repo, pipeline, cfg.MaxUploadBytes)
	app.QueryUC = usecase.NewQueryUseCase(
		usecase.NewRetriever(embedder, app.Index),
		usecase.NewAnswerComposer(generator),
		cfg.RAGTopK,
		cfg.RAGMaxContextChars,
	)

	if cfg.AsyncIngestEnabled || opts.Queue {
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
			JobTimeout:         cfg.WorkerJobTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, func() error { queue.Close(); return nil })
		app.Queue = queue
		app.EnqueueUC = usecase.NewEnqueueUseCase(app.Repo, storage, queue, cfg.MaxUploadBytes)
		app.ProcessUC = usecase.NewProcessUseCase(app.Repo, storage, pipeline)
	}

	slog.Info("bootstrap_ready",
		"service", opts.Service,
		"index_backend", cfg.IndexBackend,
		"llm_provider", cfg.LLMProvider,
		"async_ingest", app.Queue != nil,
		"resilience", cfg.ResilienceEnabled,
	)
	return app, nil
}

// initStore wires the vector index and the document registry. Qdrant keeps
// its registry in the local SQLite file.
func (a *App) initStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.IndexBackend {
	case config.BackendPostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		a.Repo = postgres.NewDocumentRepository(db)
		a.Index = postgres.NewVectorIndex(db)
	case config.BackendQdrant:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite registry: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.Repo = store.DocumentRepository()
		a.Index = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	default:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite index: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.Repo = store.DocumentRepository()
		a.Index = store.VectorIndex()
	}
	return nil
}

// newProviders returns the embedder, the generator and the generation model name.
func newProviders(cfg config.Config) (ports.Embedder, ports.Generator, string, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		client, err := openai.New(openai.Config{
			APIKey:       cfg.OpenAIAPIKey,
			BaseURL:      cfg.OpenAIBaseURL,
			EmbedModel:   cfg.OpenAIEmbedModel,
			ChatModel:    cfg.OpenAIChatModel,
			Timeout:      cfg.ProviderTimeout,
			MaxBatchSize: cfg.EmbedBatchSize,
		})
		if err != nil {
			return nil, nil, "", err
		}
		return openai.NewEmbedder(client), openai.NewGenerator(client), cfg.OpenAIChatModel, nil
	default:
		client := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
			Timeout:      cfg.ProviderTimeout,
			MaxBatchSize: cfg.EmbedBatchSize,
		})
		return ollama.NewEmbedder(client), ollama.NewGenerator(client), cfg.OllamaGenModel, nil
	}
}

func tokenizerModel(cfg config.Config, model string) string {
	if cfg.TokenizerModel != "" {
		return cfg.TokenizerModel
	}
	return model
}

func (a *App) Close() {
	if a.Index != nil {
		_ = a.Index.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		slog.Warn("bootstrap_close_failed", "error", err)
	}
}
