package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/flat"
)

const insertLockKey int64 = 2026021002

// VectorIndex keeps segments in a pgvector column. Inserts from every
// process are serialized by a transaction-scoped advisory lock.
type VectorIndex struct {
	db *sql.DB
}

func NewVectorIndex(db *sql.DB) *VectorIndex {
	return &VectorIndex{db: db}
}

func (x *VectorIndex) Insert(ctx context.Context, entries []domain.IndexEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	if _, err := flat.ValidateBatch(entries, 0); err != nil {
		return err
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrPersistenceFailure, "begin insert", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, insertLockKey); err != nil {
		return domain.WrapError(domain.ErrPersistenceFailure, "acquire insert lock", err)
	}

	dim, err := readDimension(tx.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimension'`))
	if err != nil {
		return err
	}
	batchDim := len(entries[0].Vector)
	switch {
	case dim == 0:
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES ('dimension', $1)`, strconv.Itoa(batchDim)); err != nil {
			return domain.WrapError(domain.ErrPersistenceFailure, "store dimension", err)
		}
	case dim != batchDim:
		return domain.WrapError(domain.ErrDimensionMismatch, "insert", fmt.Errorf("batch has dimension %d, index has %d", batchDim, dim))
	}

	for _, e := range entries {
		seg := e.Segment
		res, err := tx.ExecContext(ctx, `
INSERT INTO segments (id, source_id, sequence_index, text, span_start, span_end, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`, seg.ID, seg.SourceID, seg.SequenceIndex, seg.Text, seg.Span.Start, seg.Span.End, pgvector.NewVector(e.Vector))
		if err != nil {
			return domain.WrapError(domain.ErrPersistenceFailure, "insert segment", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return domain.WrapError(domain.ErrPersistenceFailure, "insert segment rows affected", err)
		}
		if affected == 0 {
			return domain.WrapError(domain.ErrDuplicateSegment, "insert", fmt.Errorf("segment %s already indexed", seg.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrPersistenceFailure, "commit insert", err)
	}
	return nil
}

func (x *VectorIndex) Search(ctx context.Context, query domain.Vector, k int) ([]domain.ScoredSegment, error) {
	if k < 1 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "search", fmt.Errorf("k must be >= 1, got %d", k))
	}

	dim, err := readDimension(x.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimension'`))
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []domain.ScoredSegment{}, nil
	}
	if len(query) != dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "search", fmt.Errorf("query has dimension %d, index has %d", len(query), dim))
	}

	rows, err := x.db.QueryContext(ctx, `
SELECT id, source_id, sequence_index, text, span_start, span_end, 1 - (embedding <=> $1) AS score
FROM segments
ORDER BY embedding <=> $1, sequence_index, source_id, id
LIMIT $2
`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistenceFailure, "search segments", err)
	}
	defer rows.Close()

	out := make([]domain.ScoredSegment, 0, k)
	for rows.Next() {
		var (
			s     domain.ScoredSegment
			score sql.NullFloat64
		)
		if err := rows.Scan(&s.Segment.ID, &s.Segment.SourceID, &s.Segment.SequenceIndex, &s.Segment.Text,
			&s.Segment.Span.Start, &s.Segment.Span.End, &score); err != nil {
			return nil, domain.WrapError(domain.ErrPersistenceFailure, "scan segment", err)
		}
		// pgvector yields NaN distance for zero vectors.
		if score.Valid && score.Float64 == score.Float64 {
			s.Score = score.Float64
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistenceFailure, "search segments", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return domain.Less(out[i], out[j]) })
	return out, nil
}

func (x *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, domain.WrapError(domain.ErrPersistenceFailure, "count segments", err)
	}
	return n, nil
}

// Close is a no-op; the *sql.DB is shared with the document repository.
func (x *VectorIndex) Close() error {
	return nil
}

func readDimension(row *sql.Row) (int, error) {
	var raw string
	err := row.Scan(&raw)
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
