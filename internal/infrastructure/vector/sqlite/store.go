// Package sqlite is the default durable backend: a single SQLite file holding
// the segment index and the document registry.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/flat"
)

//go:embed schema.sql
var schema string

// Store owns the database handle. The segment table is mirrored into a flat
// index which is refreshed from disk before every search, so rows written by
// another process sharing the file become visible too.
type Store struct {
	db   *sql.DB
	path string

	writeMu sync.Mutex

	mirrorMu sync.Mutex
	mirror   *flat.Index
	lastRow  int64
}

// Open creates or opens the database at path and loads every stored segment.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "open sqlite", fmt.Errorf("path is empty"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, domain.WrapError(domain.ErrPersistenceFailure, "open sqlite", fmt.Errorf("create data dir: %w", err))
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistenceFailure, "open sqlite", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, domain.WrapError(domain.ErrPersistenceFailure, "migrate sqlite", err)
	}

	s := &Store{db: db, path: path, mirror: flat.New()}
	if err := s.refresh(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) VectorIndex() ports.VectorIndex {
	return &vectorIndex{store: s}
}

func (s *Store) DocumentRepository() ports.DocumentRepository {
	return &documentRepository{store: s}
}

// refresh appends rows written since the last refresh to the mirror.
func (s *Store) refresh(ctx context.Context) error {
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, id, source_id, sequence_index, text, span_start, span_end, embedding
		FROM segments WHERE rowid > ? ORDER BY rowid
	`, s.lastRow)
	if err != nil {
		return domain.WrapError(domain.ErrPersistenceFailure, "load segments", err)
	}
	defer rows.Close()

	var (
		batch []domain.IndexEntry
		last  = s.lastRow
	)
	for rows.Next() {
		var (
			rowID int64
			seg   domain.Segment
			blob  []byte
		)
		if err := rows.Scan(&rowID, &seg.ID, &seg.SourceID, &seg.SequenceIndex, &seg.Text, &seg.Span.Start, &seg.Span.End, &blob); err != nil {
			return domain.WrapError(domain.ErrPersistenceFailure, "scan segment", err)
		}
		batch = append(batch, domain.IndexEntry{Vector: decodeVector(blob), Segment: seg})
		last = rowID
	}
	if err := rows.Err(); err != nil {
		return domain.WrapError(domain.ErrPersistenceFailure, "load segments", err)
	}
	if len(batch) == 0 {
		return nil
	}
	if err := s.mirror.Add(batch); err != nil {
		return fmt.Errorf("rebuild mirror: %w", err)
	}
	s.lastRow = last
	return nil
}

func encodeVector(v domain.Vector) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) domain.Vector {
	if len(data)%4 != 0 {
		return nil
	}
	v := make(domain.Vector, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}
