package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const DefaultMaxUploadBytes int64 = 25 << 20

// IngestUseCase runs the whole pipeline inside the caller's request and
// reports the outcome synchronously.
type IngestUseCase struct {
	repo     ports.DocumentRepository
	pipeline *IngestPipeline
	maxBytes int64
}

func NewIngestUseCase(repo ports.DocumentRepository, pipeline *IngestPipeline, maxBytes int64) *IngestUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &IngestUseCase{repo: repo, pipeline: pipeline, maxBytes: maxBytes}
}

func (uc *IngestUseCase) Ingest(ctx context.Context, filename, contentType string, body io.Reader) (*domain.IngestResult, error) {
	return uc.ingest(ctx, filename, ResolveContentType(filename, contentType), body)
}

// IngestText ingests text supplied directly by the caller. The filename only
// names the source; its extension never selects a binary extractor.
func (uc *IngestUseCase) IngestText(ctx context.Context, filename, text string) (*domain.IngestResult, error) {
	return uc.ingest(ctx, filename, domain.ContentTypeText, strings.NewReader(text))
}

func (uc *IngestUseCase) ingest(ctx context.Context, filename string, contentType domain.ContentType, body io.Reader) (*domain.IngestResult, error) {
	sourceID, err := SourceID(filename)
	if err != nil {
		return nil, err
	}
	content, err := readBounded(body, uc.maxBytes)
	if err != nil {
		return nil, err
	}
	if err := ensureNotIngested(ctx, uc.repo, sourceID, ""); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &domain.DocumentRecord{
		ID:          uuid.NewString(),
		SourceID:    sourceID,
		ContentType: contentType,
		Status:      domain.StatusProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	doc := domain.Document{SourceID: sourceID, ContentType: record.ContentType, Content: content}
	count, err := uc.pipeline.Run(ctx, doc)
	if err != nil {
		if failErr := markFailed(ctx, uc.repo, record.ID, err); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}

	if err := uc.repo.UpdateStatus(ctx, record.ID, domain.StatusReady, count, ""); err != nil {
		return nil, fmt.Errorf("set status=ready: %w", err)
	}

	return &domain.IngestResult{
		DocumentID:   record.ID,
		SourceID:     sourceID,
		Status:       domain.StatusReady,
		SegmentCount: count,
	}, nil
}

// SourceID derives the stable source identifier from an upload filename.
func SourceID(filename string) (string, error) {
	name := strings.TrimSpace(filepath.Base(strings.ReplaceAll(filename, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "", domain.WrapError(domain.ErrValidation, "source id", errors.New("filename is required"))
	}
	return name, nil
}

// ResolveContentType prefers the filename extension and falls back to the
// declared MIME type for names without a known extension.
func ResolveContentType(filename, declared string) domain.ContentType {
	byName := domain.ContentTypeFromFilename(filename)
	if byName != domain.ContentTypeText {
		return byName
	}
	mime := strings.ToLower(strings.TrimSpace(declared))
	switch {
	case strings.HasPrefix(mime, "application/pdf"):
		return domain.ContentTypePDF
	case strings.HasPrefix(mime, "application/vnd.openxmlformats-officedocument.spreadsheetml"):
		return domain.ContentTypeXLSX
	default:
		return domain.ContentTypeText
	}
}

func readBounded(body io.Reader, maxBytes int64) ([]byte, error) {
	if body == nil {
		return nil, domain.WrapError(domain.ErrValidation, "read upload", errors.New("empty body"))
	}
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "read upload", errors.New("empty document"))
	}
	if n > maxBytes {
		return nil, domain.WrapError(domain.ErrValidation, "read upload", fmt.Errorf("document exceeds %d bytes", maxBytes))
	}
	return buf.Bytes(), nil
}

// ensureNotIngested rejects a source that already has a ready record other
// than exceptID.
func ensureNotIngested(ctx context.Context, repo ports.DocumentRepository, sourceID, exceptID string) error {
	existing, err := repo.FindReadyBySource(ctx, sourceID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return nil
		}
		return fmt.Errorf("check existing source: %w", err)
	}
	if existing.ID == exceptID {
		return nil
	}
	return domain.WrapError(domain.ErrAlreadyIngested, "ingest", fmt.Errorf("source %q ingested as %s", sourceID, existing.ID))
}

func markFailed(ctx context.Context, repo ports.DocumentRepository, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return repo.UpdateStatus(ctx, documentID, domain.StatusFailed, 0, processErr.Error())
}
