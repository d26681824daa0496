package sqlite

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "index.db")
	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func testEntry(source string, seq int, vec ...float32) domain.IndexEntry {
	return domain.IndexEntry{
		Vector: vec,
		Segment: domain.Segment{
			ID:            fmt.Sprintf("%s-%d", source, seq),
			SourceID:      source,
			SequenceIndex: seq,
			Text:          fmt.Sprintf("text %s %d", source, seq),
			Span:          domain.CharSpan{Start: seq * 10, End: seq*10 + 10},
		},
	}
}

func TestInsertAndSearch(t *testing.T) {
	store, _ := setupTestStore(t)
	idx := store.VectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, []domain.IndexEntry{
		testEntry("doc", 0, 1, 0, 0),
		testEntry("doc", 1, 0, 1, 0),
		testEntry("doc", 2, 0, 0, 1),
	}))

	res, err := idx.Search(ctx, domain.Vector{0, 1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "doc-1", res[0].Segment.ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.Equal(t, domain.CharSpan{Start: 10, End: 20}, res[0].Segment.Span)
	assert.Equal(t, "text doc 1", res[0].Segment.Text)
}

func TestInsertIsDurableAcrossReopen(t *testing.T) {
	store, path := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.VectorIndex().Insert(ctx, []domain.IndexEntry{
		testEntry("doc", 0, 0.6, 0.8),
		testEntry("doc", 1, 0.8, 0.6),
	}))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	idx := reopened.VectorIndex()
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := idx.Search(ctx, domain.Vector{0.6, 0.8}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "doc-0", res[0].Segment.ID)

	err = idx.Insert(ctx, []domain.IndexEntry{testEntry("other", 0, 1, 0, 0)})
	assert.True(t, domain.IsKind(err, domain.ErrDimensionMismatch), "dimension must survive reopen: %v", err)
}

func TestInsertRejectsDuplicatesWithoutWriting(t *testing.T) {
	store, _ := setupTestStore(t)
	idx := store.VectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, []domain.IndexEntry{testEntry("doc", 0, 1, 0)}))

	err := idx.Insert(ctx, []domain.IndexEntry{testEntry("doc", 1, 0, 1), testEntry("doc", 0, 1, 0)})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrDuplicateSegment))
	assert.True(t, domain.IsKind(err, domain.ErrIndex))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = idx.Insert(ctx, []domain.IndexEntry{testEntry("doc", 5, 0, 1), testEntry("doc", 5, 0, 1)})
	assert.True(t, domain.IsKind(err, domain.ErrDuplicateSegment))
}

func TestDimensionMismatch(t *testing.T) {
	store, _ := setupTestStore(t)
	idx := store.VectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, []domain.IndexEntry{testEntry("doc", 0, 1, 0, 0)}))

	err := idx.Insert(ctx, []domain.IndexEntry{testEntry("doc", 1, 1, 0)})
	assert.True(t, domain.IsKind(err, domain.ErrDimensionMismatch))

	_, err = idx.Search(ctx, domain.Vector{1, 0}, 1)
	assert.True(t, domain.IsKind(err, domain.ErrDimensionMismatch))
}

func TestSearchEmptyIndex(t *testing.T) {
	store, _ := setupTestStore(t)

	res, err := store.VectorIndex().Search(context.Background(), domain.Vector{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = store.VectorIndex().Search(context.Background(), domain.Vector{1, 0}, 0)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidConfig))
}

func TestConcurrentInsertsSerialize(t *testing.T) {
	store, _ := setupTestStore(t)
	idx := store.VectorIndex()
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			angle := float64(w) / writers
			errs <- idx.Insert(ctx, []domain.IndexEntry{
				testEntry(fmt.Sprintf("src-%d", w), 0, float32(math.Cos(angle)), float32(math.Sin(angle))),
				testEntry(fmt.Sprintf("src-%d", w), 1, float32(math.Sin(angle)), float32(math.Cos(angle))),
			})
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers*2, n)

	res, err := idx.Search(ctx, domain.Vector{1, 0}, writers*2)
	require.NoError(t, err)
	assert.Len(t, res, writers*2)
}

func TestSecondHandleSeesWrites(t *testing.T) {
	store, path := setupTestStore(t)
	ctx := context.Background()

	other, err := Open(ctx, path)
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, store.VectorIndex().Insert(ctx, []domain.IndexEntry{testEntry("doc", 0, 1, 0)}))

	res, err := other.VectorIndex().Search(ctx, domain.Vector{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "doc-0", res[0].Segment.ID)
}

func TestInsertSucceedsWhenCallerCancelsAfterCommit(t *testing.T) {
	store, path := setupTestStore(t)
	ctx := context.Background()

	other, err := Open(ctx, path)
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.VectorIndex().Insert(ctx, []domain.IndexEntry{
		testEntry("doc", 0, 1, 0),
		testEntry("doc", 1, 0, 1),
	}))

	// The rows are committed; a cancelled caller must not leave the mirror behind.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	store.VectorIndex().(*vectorIndex).syncMirror(cancelled)
	assert.Equal(t, 2, store.mirror.Len())

	require.NoError(t, store.VectorIndex().Insert(ctx, []domain.IndexEntry{testEntry("doc", 2, 1, 1)}))
	assert.Equal(t, 3, store.mirror.Len())
}

func TestDocumentRepositoryLifecycle(t *testing.T) {
	store, _ := setupTestStore(t)
	repo := store.DocumentRepository()
	ctx := context.Background()

	doc := &domain.DocumentRecord{
		ID:          "doc-1",
		SourceID:    "notes.txt",
		ContentType: domain.ContentTypeText,
		Status:      domain.StatusProcessing,
	}
	require.NoError(t, repo.Create(ctx, doc))

	_, err := repo.FindReadyBySource(ctx, "notes.txt")
	assert.True(t, domain.IsKind(err, domain.ErrDocumentNotFound))

	require.NoError(t, repo.UpdateStatus(ctx, "doc-1", domain.StatusReady, 3, ""))

	got, err := repo.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, got.Status)
	assert.Equal(t, 3, got.SegmentCount)
	assert.Equal(t, domain.ContentTypeText, got.ContentType)
	assert.False(t, got.CreatedAt.IsZero())

	ready, err := repo.FindReadyBySource(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", ready.ID)

	err = repo.UpdateStatus(ctx, "missing", domain.StatusFailed, 0, "boom")
	assert.True(t, domain.IsKind(err, domain.ErrDocumentNotFound))

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, domain.IsKind(err, domain.ErrDocumentNotFound))
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	in := domain.Vector{0.25, -1.5, 3}
	assert.Equal(t, in, decodeVector(encodeVector(in)))
	assert.Nil(t, decodeVector([]byte{1, 2, 3}))
}
