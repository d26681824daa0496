package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/flat"
)

const dimensionKey = "dimension"

type vectorIndex struct {
	store *Store
}

// Insert writes the whole batch in one transaction. Once the commit succeeds
// the batch is reported as stored, whatever happens to the mirror refresh.
func (x *vectorIndex) Insert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if _, err := flat.ValidateBatch(entries, 0); err != nil {
		return err
	}

	s := x.store
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := x.insertTx(ctx, entries); err != nil {
		return err
	}
	x.syncMirror(ctx)
	return nil
}

// syncMirror loads committed rows into the mirror even if the caller has gone
// away. A failure is only logged: Search refreshes before every read.
func (x *vectorIndex) syncMirror(ctx context.Context) {
	if err := x.store.refresh(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("sqlite_mirror_refresh_failed", "path", x.store.path, "error", err)
	}
}

func (x *vectorIndex) insertTx(ctx context.Context, entries []domain.IndexEntry) (err error) {
	tx, err := x.store.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrPersistenceFailure, "begin insert", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	dim, err := storedDimension(ctx, tx)
	if err != nil {
		return err
	}
	batchDim := len(entries[0].Vector)
	switch {
	case dim == 0:
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES (?, ?)`, dimensionKey, strconv.Itoa(batchDim)); err != nil {
			return domain.WrapError(domain.ErrPersistenceFailure, "store dimension", err)
		}
	case dim != batchDim:
		return domain.WrapError(domain.ErrDimensionMismatch, "insert", fmt.Errorf("batch has dimension %d, index has %d", batchDim, dim))
	}

	if err := checkExisting(ctx, tx, entries); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (id, source_id, sequence_index, text, span_start, span_end, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return domain.WrapError(domain.ErrPersistenceFailure, "prepare insert", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		seg := e.Segment
		if _, err := stmt.ExecContext(ctx, seg.ID, seg.SourceID, seg.SequenceIndex, seg.Text, seg.Span.Start, seg.Span.End, encodeVector(e.Vector)); err != nil {
			if isConstraintError(err) {
				return domain.WrapError(domain.ErrDuplicateSegment, "insert", fmt.Errorf("segment %s: %w", seg.ID, err))
			}
			return domain.WrapError(domain.ErrPersistenceFailure, "insert segment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrPersistenceFailure, "commit insert", err)
	}
	return nil
}

func (x *vectorIndex) Search(ctx context.Context, query domain.Vector, k int) ([]domain.ScoredSegment, error) {
	if k < 1 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "search", fmt.Errorf("k must be >= 1, got %d", k))
	}
	if err := x.store.refresh(ctx); err != nil {
		return nil, err
	}
	return x.store.mirror.Search(query, k)
}

func (x *vectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, domain.WrapError(domain.ErrPersistenceFailure, "count segments", err)
	}
	return n, nil
}

// Close is a no-op: the Store owns the database handle.
func (x *vectorIndex) Close() error {
	return nil
}

func storedDimension(ctx context.Context, tx *sql.Tx) (int, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = ?`, dimensionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.WrapError(domain.ErrPersistenceFailure, "read dimension", err)
	}
	dim, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.WrapError(domain.ErrPersistenceFailure, "parse dimension", err)
	}
	return dim, nil
}

func checkExisting(ctx context.Context, tx *sql.Tx, entries []domain.IndexEntry) error {
	placeholders := make([]string, len(entries))
	args := make([]any, len(entries))
	for i, e := range entries {
		placeholders[i] = "?"
		args[i] = e.Segment.ID
	}
	var existing string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM segments WHERE id IN (`+strings.Join(placeholders, ",")+`) LIMIT 1`, args...,
	).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return domain.WrapError(domain.ErrPersistenceFailure, "check duplicates", err)
	default:
		return domain.WrapError(domain.ErrDuplicateSegment, "insert", fmt.Errorf("segment %s already indexed", existing))
	}
}

func isConstraintError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}
