package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// ProcessUseCase runs queued ingestions in the worker.
type ProcessUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	pipeline *IngestPipeline
}

func NewProcessUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	pipeline *IngestPipeline,
) *ProcessUseCase {
	return &ProcessUseCase{
		repo:     repo,
		storage:  storage,
		pipeline: pipeline,
	}
}

// ProcessByID is safe to call again for a redelivered message: a record that
// is already ready is left untouched.
func (uc *ProcessUseCase) ProcessByID(ctx context.Context, documentID string) error {
	record, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if record.Status == domain.StatusReady {
		return nil
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, 0, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	count, err := uc.process(ctx, record)
	if err != nil {
		if failErr := markFailed(ctx, uc.repo, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusReady, count, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessUseCase) process(ctx context.Context, record *domain.DocumentRecord) (int, error) {
	if err := ensureNotIngested(ctx, uc.repo, record.SourceID, record.ID); err != nil {
		return 0, err
	}

	content, err := uc.load(ctx, record.StoragePath)
	if err != nil {
		return 0, err
	}

	return uc.pipeline.Run(ctx, domain.Document{
		SourceID:    record.SourceID,
		ContentType: record.ContentType,
		Content:     content,
	})
}

func (uc *ProcessUseCase) load(ctx context.Context, key string) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open stored upload: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored upload: %w", err)
	}
	return content, nil
}
