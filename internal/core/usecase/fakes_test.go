package usecase

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"io"
	"sync"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/flat"
)

type statusCall struct {
	status       domain.DocumentStatus
	segmentCount int
	errMsg       string
}

type repoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.DocumentRecord
	createErr   error
	findErr     error
	statusCalls []statusCall
}

func newRepoFake() *repoFake {
	return &repoFake{docs: make(map[string]*domain.DocumentRecord)}
}

func (f *repoFake) Create(_ context.Context, doc *domain.DocumentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *repoFake) FindReadyBySource(_ context.Context, sourceID string) (*domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, doc := range f.docs {
		if doc.SourceID == sourceID && doc.Status == domain.StatusReady {
			copyDoc := *doc
			return &copyDoc, nil
		}
	}
	return nil, domain.ErrDocumentNotFound
}

func (f *repoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, segmentCount int, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: status, segmentCount: segmentCount, errMsg: errMessage})
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = status
	doc.SegmentCount = segmentCount
	doc.Error = errMessage
	return nil
}

type storageFake struct {
	files   map[string][]byte
	saveErr error
	deleted []string
}

func newStorageFake() *storageFake {
	return &storageFake{files: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.files[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.files[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	delete(f.files, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishDocumentUploaded(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeDocumentUploaded(context.Context, func(context.Context, string) error) error {
	return nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, domain.Document) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// hashEmbedder maps text to a bag of hashed character trigrams, so identical
// texts get identical vectors and similar texts score close.
type hashEmbedder struct {
	dim      int
	err      error
	calls    int
	queryErr error
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([]domain.Vector, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([]domain.Vector, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) (domain.Vector, error) {
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return e.vector(text), nil
}

func (e *hashEmbedder) vector(text string) domain.Vector {
	dim := e.dim
	if dim == 0 {
		dim = 64
	}
	v := make(domain.Vector, dim)
	runes := []rune(text)
	for i := 0; i+3 <= len(runes); i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte(string(runes[i : i+3])))
		v[h.Sum32()%uint32(dim)]++
	}
	return v
}

// indexFake wraps the flat index; insertErr forces failures.
type indexFake struct {
	idx       *flat.Index
	insertErr error
	searchErr error
	lastK     int
}

func newIndexFake() *indexFake {
	return &indexFake{idx: flat.New()}
}

func (f *indexFake) Insert(_ context.Context, entries []domain.IndexEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.idx.Add(entries)
}

func (f *indexFake) Search(_ context.Context, query domain.Vector, k int) ([]domain.ScoredSegment, error) {
	f.lastK = k
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.idx.Search(query, k)
}

func (f *indexFake) Count(context.Context) (int, error) { return f.idx.Len(), nil }

func (f *indexFake) Close() error { return nil }

type generatorFake struct {
	answer string
	err    error
	prompt domain.Prompt
	calls  int
}

func (f *generatorFake) Generate(_ context.Context, prompt domain.Prompt) (string, error) {
	f.calls++
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}
