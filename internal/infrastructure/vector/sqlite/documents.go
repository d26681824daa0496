package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type documentRepository struct {
	store *Store
}

func (r *documentRepository) Create(ctx context.Context, doc *domain.DocumentRecord) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, source_id, content_type, storage_path, status, segment_count, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.SourceID, string(doc.ContentType), doc.StoragePath, string(doc.Status),
		doc.SegmentCount, doc.Error, formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *documentRepository) GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, source_id, content_type, storage_path, status, segment_count, error_message, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (r *documentRepository) FindReadyBySource(ctx context.Context, sourceID string) (*domain.DocumentRecord, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, source_id, content_type, storage_path, status, segment_count, error_message, created_at, updated_at
		FROM documents WHERE source_id = ? AND status = ?
		ORDER BY updated_at DESC LIMIT 1
	`, sourceID, string(domain.StatusReady))
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("find ready document for %s: %w", sourceID, err)
	}
	return doc, nil
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, segmentCount int, errMessage string) error {
	res, err := r.store.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, segment_count = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`, string(status), segmentCount, errMessage, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document status", fmt.Errorf("id %s", id))
	}
	return nil
}

func scanDocument(row *sql.Row) (*domain.DocumentRecord, error) {
	var (
		doc                  domain.DocumentRecord
		contentType, status  string
		createdAt, updatedAt string
	)
	err := row.Scan(&doc.ID, &doc.SourceID, &contentType, &doc.StoragePath, &status,
		&doc.SegmentCount, &doc.Error, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.ContentType = domain.ContentType(contentType)
	doc.Status = domain.DocumentStatus(status)
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return &doc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
