package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	cfg      config.Config
	ingestor ports.DocumentIngestor
	enqueuer ports.DocumentEnqueuer
	queries  ports.DocumentQueryService
	docs     ports.DocumentReader
	index    ports.VectorIndex
	metrics  *metrics.HTTPServerMetrics
	validate *validator.Validate
}

type Option func(*Router)

// WithEnqueuer enables POST /v1/documents/async.
func WithEnqueuer(enqueuer ports.DocumentEnqueuer) Option {
	return func(rt *Router) { rt.enqueuer = enqueuer }
}

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) { rt.metrics = m }
}

// WithIndex lets /healthz report the number of stored segments.
func WithIndex(index ports.VectorIndex) Option {
	return func(rt *Router) { rt.index = index }
}

func NewRouter(
	cfg config.Config,
	ingestor ports.DocumentIngestor,
	queries ports.DocumentQueryService,
	docs ports.DocumentReader,
	opts ...Option,
) *Router {
	rt := &Router{
		cfg:      cfg,
		ingestor: ingestor,
		queries:  queries,
		docs:     docs,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.ingestDocument)
	mux.HandleFunc("POST /v1/documents/async", rt.enqueueDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	mux.HandleFunc("POST /v1/query", rt.query)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if rt.index != nil {
		count, err := rt.index.Count(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
			return
		}
		resp["segments"] = count
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) ingestDocument(w http.ResponseWriter, r *http.Request) {
	if rt.ingestor == nil {
		writeError(w, r, http.StatusNotImplemented, errors.New("synchronous ingestion is disabled"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, rt.uploadLimit())

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, formFileStatus(err), errors.New("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	start := time.Now()
	result, err := rt.ingestor.Ingest(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if rt.metrics != nil {
		segments := 0
		if result != nil {
			segments = result.SegmentCount
		}
		rt.metrics.RecordIngest(serviceName, "sync", segments, err)
	}
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}

	slog.Info("document_ingested",
		"request_id", requestIDFromContext(r.Context()),
		"document_id", result.DocumentID,
		"source_id", result.SourceID,
		"segments", result.SegmentCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusCreated, result)
}

func (rt *Router) enqueueDocument(w http.ResponseWriter, r *http.Request) {
	if rt.enqueuer == nil {
		writeError(w, r, http.StatusNotImplemented, errors.New("asynchronous ingestion is disabled"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, rt.uploadLimit())

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, formFileStatus(err), errors.New("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	record, err := rt.enqueuer.Enqueue(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordIngest(serviceName, "async", 0, err)
		}
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("document id is required"))
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type queryRequest struct {
	Query string `json:"query"`
}

type querySource struct {
	SegmentID     string          `json:"segment_id"`
	SourceID      string          `json:"source_id"`
	SequenceIndex int             `json:"sequence_index"`
	Span          domain.CharSpan `json:"char_span"`
	Text          string          `json:"text"`
}

type queryResponse struct {
	Query   string        `json:"query"`
	Answer  string        `json:"answer"`
	Sources []querySource `json:"sources"`
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := rt.validateQuery(req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	answer, err := rt.queries.Query(r.Context(), req.Query)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRAGObservation(serviceName, "/v1/query", len(answer.ContextSegments), time.Since(start))
	}

	resp := queryResponse{
		Query:   answer.Query,
		Answer:  answer.Text,
		Sources: make([]querySource, 0, len(answer.ContextSegments)),
	}
	for _, seg := range answer.ContextSegments {
		resp.Sources = append(resp.Sources, querySource{
			SegmentID:     seg.ID,
			SourceID:      seg.SourceID,
			SequenceIndex: seg.SequenceIndex,
			Span:          seg.Span,
			Text:          seg.Text,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// validateQuery bounds the query in characters, not bytes.
func (rt *Router) validateQuery(req queryRequest) error {
	limit := rt.cfg.QueryMaxChars
	if limit <= 0 {
		limit = 500
	}
	err := rt.validate.Var(req.Query, fmt.Sprintf("required,max=%d", limit))
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	if verrs[0].Tag() == "max" {
		return fmt.Errorf("query is %d characters, limit is %d", utf8.RuneCountInString(req.Query), limit)
	}
	return errors.New("query is required")
}

func (rt *Router) uploadLimit() int64 {
	if rt.cfg.MaxUploadBytes > 0 {
		// Multipart framing on top of the file itself.
		return rt.cfg.MaxUploadBytes + 1<<20
	}
	return 26 << 20
}

func formFileStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
