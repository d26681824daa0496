// Package flat is an exact, in-memory cosine similarity index. Durable
// backends keep one as their search structure and rebuild it from disk.
package flat

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type item struct {
	segment domain.Segment
	vector  domain.Vector
	norm    float64
}

type Index struct {
	mu    sync.RWMutex
	dim   int
	items []item
	ids   map[string]struct{}
}

func New() *Index {
	return &Index{ids: make(map[string]struct{})}
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.items)
}

// Dimension returns the established dimension, 0 while empty.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

func (x *Index) Contains(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.ids[id]
	return ok
}

// Add appends entries atomically: either all are added or none.
func (x *Index) Add(entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	dim, err := ValidateBatch(entries, x.dim)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, ok := x.ids[e.Segment.ID]; ok {
			return domain.WrapError(domain.ErrDuplicateSegment, "flat add", fmt.Errorf("segment %s already indexed", e.Segment.ID))
		}
	}

	x.dim = dim
	for _, e := range entries {
		vec := make(domain.Vector, len(e.Vector))
		copy(vec, e.Vector)
		x.items = append(x.items, item{segment: e.Segment, vector: vec, norm: Norm(vec)})
		x.ids[e.Segment.ID] = struct{}{}
	}
	return nil
}

// Search returns the k most similar segments ordered by domain.Less.
func (x *Index) Search(query domain.Vector, k int) ([]domain.ScoredSegment, error) {
	if k < 1 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "search", fmt.Errorf("k must be >= 1, got %d", k))
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.items) == 0 {
		return []domain.ScoredSegment{}, nil
	}
	if len(query) != x.dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "search", fmt.Errorf("query has dimension %d, index has %d", len(query), x.dim))
	}

	qNorm := Norm(query)
	scored := make([]domain.ScoredSegment, 0, len(x.items))
	for _, it := range x.items {
		scored = append(scored, domain.ScoredSegment{
			Segment: it.segment,
			Score:   cosine(query, qNorm, it.vector, it.norm),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return domain.Less(scored[i], scored[j]) })
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// ValidateBatch checks a batch against an established dimension (0 when
// unset) and returns the batch dimension. It rejects empty vectors, mixed
// dimensions and repeated segment ids inside the batch.
func ValidateBatch(entries []domain.IndexEntry, established int) (int, error) {
	dim := established
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.Segment.ID == "" {
			return 0, domain.WrapError(domain.ErrValidation, "validate batch", fmt.Errorf("entry %d has empty segment id", i))
		}
		if len(e.Vector) == 0 {
			return 0, domain.WrapError(domain.ErrDimensionMismatch, "validate batch", fmt.Errorf("entry %d has empty vector", i))
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return 0, domain.WrapError(domain.ErrDimensionMismatch, "validate batch", fmt.Errorf("entry %d has dimension %d, expected %d", i, len(e.Vector), dim))
		}
		if _, ok := seen[e.Segment.ID]; ok {
			return 0, domain.WrapError(domain.ErrDuplicateSegment, "validate batch", fmt.Errorf("segment %s repeated in batch", e.Segment.ID))
		}
		seen[e.Segment.ID] = struct{}{}
	}
	return dim, nil
}

func Norm(v domain.Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b; 0 when either is a zero vector.
func Cosine(a, b domain.Vector) float64 {
	return cosine(a, Norm(a), b, Norm(b))
}

func cosine(a domain.Vector, aNorm float64, b domain.Vector, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	score := dot / (aNorm * bNorm)
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}
