package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// EnqueueUseCase stores an upload and hands it to the worker through the queue.
type EnqueueUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	queue    ports.MessageQueue
	maxBytes int64
}

func NewEnqueueUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	maxBytes int64,
) *EnqueueUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &EnqueueUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		maxBytes: maxBytes,
	}
}

func (uc *EnqueueUseCase) Enqueue(
	ctx context.Context,
	filename, contentType string,
	body io.Reader,
) (*domain.DocumentRecord, error) {
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

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.DocumentRecord{
		ID:          id,
		SourceID:    sourceID,
		ContentType: ResolveContentType(filename, contentType),
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discard(ctx, storageKey)
		return nil, fmt.Errorf("create document record: %w", err)
	}

	if err := uc.queue.PublishDocumentUploaded(ctx, doc.ID); err != nil {
		err = fmt.Errorf("publish upload event: %w", err)
		// No worker will see this record; close it out instead of leaving it uploaded.
		if failErr := markFailed(context.WithoutCancel(ctx), uc.repo, doc.ID, err); failErr != nil {
			slog.Error("enqueue_status_update_failed", "document_id", doc.ID, "error", failErr)
		}
		uc.discard(ctx, storageKey)
		return nil, err
	}

	return doc, nil
}

// discard removes an upload no worker will ever read.
func (uc *EnqueueUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("enqueue_discard_failed", "storage_key", key, "error", err)
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
