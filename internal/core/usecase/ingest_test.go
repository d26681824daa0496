package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/infrastructure/chunking"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/plaintext"
)

func newTestPipeline(embedder *hashEmbedder, index *indexFake) *IngestPipeline {
	return NewIngestPipeline(plaintext.NewExtractor(), chunking.NewSplitter(), embedder, index, 1000, 200)
}

func longText(n int) string {
	var b strings.Builder
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf"}
	for i := 0; b.Len() < n; i++ {
		b.WriteString(words[i%len(words)])
		b.WriteByte(' ')
	}
	return b.String()[:n]
}

func TestIngestSuccess(t *testing.T) {
	repo := newRepoFake()
	index := newIndexFake()
	uc := NewIngestUseCase(repo, newTestPipeline(&hashEmbedder{}, index), 0)

	res, err := uc.Ingest(context.Background(), "notes.txt", "text/plain", strings.NewReader(longText(2400)))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Status != domain.StatusReady || res.SegmentCount != 3 || res.SourceID != "notes.txt" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if index.idx.Len() != 3 {
		t.Fatalf("expected 3 indexed segments, got %d", index.idx.Len())
	}
	doc, _ := repo.GetByID(context.Background(), res.DocumentID)
	if doc.Status != domain.StatusReady || doc.SegmentCount != 3 {
		t.Fatalf("unexpected record: %+v", doc)
	}
}

func TestIngestTextIgnoresBinaryExtension(t *testing.T) {
	repo := newRepoFake()
	index := newIndexFake()
	router := extractor.NewRouter(map[domain.ContentType]ports.TextExtractor{
		domain.ContentTypeText: plaintext.NewExtractor(),
		domain.ContentTypePDF:  pdf.NewExtractor(0),
	})
	uc := NewIngestUseCase(repo, NewIngestPipeline(router, chunking.NewSplitter(), &hashEmbedder{}, index, 1000, 200), 0)

	res, err := uc.IngestText(context.Background(), "minutes.pdf", longText(1500))
	if err != nil {
		t.Fatalf("IngestText() error = %v", err)
	}
	if res.SourceID != "minutes.pdf" || res.SegmentCount == 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	doc, _ := repo.GetByID(context.Background(), res.DocumentID)
	if doc.ContentType != domain.ContentTypeText {
		t.Fatalf("text must be recorded as text, got %q", doc.ContentType)
	}

	// The upload path still trusts the extension.
	_, err = uc.Ingest(context.Background(), "agenda.pdf", "text/plain", strings.NewReader(longText(1500)))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected the pdf extractor to reject plain text, got %v", err)
	}
}

func TestIngestRejectsAlreadyIngestedSource(t *testing.T) {
	repo := newRepoFake()
	index := newIndexFake()
	uc := NewIngestUseCase(repo, newTestPipeline(&hashEmbedder{}, index), 0)

	if _, err := uc.Ingest(context.Background(), "notes.txt", "", strings.NewReader(longText(1500))); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	before := index.idx.Len()

	_, err := uc.Ingest(context.Background(), "dir/notes.txt", "", strings.NewReader(longText(1500)))
	if !domain.IsKind(err, domain.ErrAlreadyIngested) {
		t.Fatalf("expected ErrAlreadyIngested, got %v", err)
	}
	if index.idx.Len() != before {
		t.Fatalf("index changed after rejected ingest: %d -> %d", before, index.idx.Len())
	}
}

func TestIngestEmbeddingFailureLeavesIndexUnchanged(t *testing.T) {
	repo := newRepoFake()
	index := newIndexFake()
	embedder := &hashEmbedder{err: domain.WrapError(domain.ErrEmbeddingUnavailable, "embed", errors.New("connection refused"))}
	uc := NewIngestUseCase(repo, newTestPipeline(embedder, index), 0)

	_, err := uc.Ingest(context.Background(), "a.txt", "", strings.NewReader("some content here"))
	if !domain.IsKind(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if index.idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d", index.idx.Len())
	}
	if len(repo.statusCalls) != 1 || repo.statusCalls[0].status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %+v", repo.statusCalls)
	}
	if embedder.calls != 1 {
		t.Fatalf("expected exactly one embed call, got %d", embedder.calls)
	}
}

func TestIngestIndexErrorIsPropagated(t *testing.T) {
	repo := newRepoFake()
	index := newIndexFake()
	index.insertErr = domain.WrapError(domain.ErrPersistenceFailure, "insert", errors.New("disk full"))
	uc := NewIngestUseCase(repo, newTestPipeline(&hashEmbedder{}, index), 0)

	_, err := uc.Ingest(context.Background(), "a.txt", "", strings.NewReader("some content here"))
	if !domain.IsKind(err, domain.ErrPersistenceFailure) || !domain.IsKind(err, domain.ErrIndex) {
		t.Fatalf("expected persistence index error, got %v", err)
	}
}

func TestIngestValidation(t *testing.T) {
	uc := NewIngestUseCase(newRepoFake(), newTestPipeline(&hashEmbedder{}, newIndexFake()), 16)

	cases := []struct {
		name     string
		filename string
		body     string
	}{
		{name: "empty body", filename: "a.txt", body: ""},
		{name: "missing filename", filename: " ", body: "content"},
		{name: "too large", filename: "a.txt", body: strings.Repeat("x", 17)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Ingest(context.Background(), tc.filename, "", strings.NewReader(tc.body))
			if !domain.IsKind(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestIngestEmptyExtractedTextIsValidationError(t *testing.T) {
	repo := newRepoFake()
	pipeline := NewIngestPipeline(&extractorFake{text: ""}, chunking.NewSplitter(), &hashEmbedder{}, newIndexFake(), 1000, 200)
	uc := NewIngestUseCase(repo, pipeline, 0)

	_, err := uc.Ingest(context.Background(), "scan.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestResolveContentType(t *testing.T) {
	cases := []struct {
		filename, declared string
		want               domain.ContentType
	}{
		{"report.PDF", "", domain.ContentTypePDF},
		{"sheet.xlsx", "application/octet-stream", domain.ContentTypeXLSX},
		{"upload", "application/pdf", domain.ContentTypePDF},
		{"notes.md", "text/markdown", domain.ContentTypeText},
	}
	for _, tc := range cases {
		if got := ResolveContentType(tc.filename, tc.declared); got != tc.want {
			t.Fatalf("ResolveContentType(%q, %q) = %q, want %q", tc.filename, tc.declared, got, tc.want)
		}
	}
}

func TestSourceIDUsesBaseName(t *testing.T) {
	got, err := SourceID(`C:\docs\manual.pdf`)
	if err != nil || got != "manual.pdf" {
		t.Fatalf("SourceID() = %q, %v", got, err)
	}
}
