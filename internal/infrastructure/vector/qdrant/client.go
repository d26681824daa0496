package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/flat"
)

// Extra hits requested beyond k so equal scores at the cut can be re-ordered
// by the tie-break rules before trimming.
const tieSlack = 16

var pointNamespace = uuid.MustParse("0f7a4e38-3c8c-4b0e-9d37-0c2f5f1b7a11")

// Client is a VectorIndex backed by one Qdrant collection using Cosine distance.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	writeMu sync.Mutex

	dimMu     sync.Mutex
	dimension int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type payload struct {
	SegmentID     string `json:"segment_id"`
	SourceID      string `json:"source_id"`
	SequenceIndex int    `json:"sequence_index"`
	Text          string `json:"text"`
	SpanStart     int    `json:"span_start"`
	SpanEnd       int    `json:"span_end"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload payload   `json:"payload"`
}

// Insert upserts the batch with wait=true after checking that none of its
// points exist. Writes from this process are serialized.
func (c *Client) Insert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if _, err := flat.ValidateBatch(entries, 0); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	batchDim := len(entries[0].Vector)
	dim, err := c.collectionDimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		if err := c.ensureCollection(ctx, batchDim); err != nil {
			return err
		}
		if dim, err = c.collectionDimension(ctx); err != nil {
			return err
		}
	}
	if dim != batchDim {
		return domain.WrapError(domain.ErrDimensionMismatch, "qdrant insert", fmt.Errorf("batch has dimension %d, collection has %d", batchDim, dim))
	}

	points := make([]point, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		seg := e.Segment
		id := PointID(seg.ID)
		ids = append(ids, id)
		points = append(points, point{
			ID:     id,
			Vector: e.Vector,
			Payload: payload{
				SegmentID:     seg.ID,
				SourceID:      seg.SourceID,
				SequenceIndex: seg.SequenceIndex,
				Text:          seg.Text,
				SpanStart:     seg.Span.Start,
				SpanEnd:       seg.Span.End,
			},
		})
	}

	existing, err := c.existingPoints(ctx, ids)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return domain.WrapError(domain.ErrDuplicateSegment, "qdrant insert", fmt.Errorf("%d points already indexed, first %s", len(existing), existing[0]))
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil); err != nil {
		return domain.WrapError(domain.ErrPersistenceFailure, "qdrant upsert", err)
	}
	return nil
}

func (c *Client) Search(ctx context.Context, query domain.Vector, k int) ([]domain.ScoredSegment, error) {
	if k < 1 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "qdrant search", fmt.Errorf("k must be >= 1, got %d", k))
	}
	dim, err := c.collectionDimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []domain.ScoredSegment{}, nil
	}
	if len(query) != dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "qdrant search", fmt.Errorf("query has dimension %d, collection has %d", len(query), dim))
	}

	reqBody := map[string]any{
		"vector":       query,
		"limit":        k + tieSlack,
		"with_payload": true,
	}
	var searchResp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, reqBody, &searchResp); err != nil {
		return nil, domain.WrapError(domain.ErrPersistenceFailure, "qdrant search", err)
	}

	out := make([]domain.ScoredSegment, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.ScoredSegment{
			Segment: domain.Segment{
				ID:            r.Payload.SegmentID,
				SourceID:      r.Payload.SourceID,
				SequenceIndex: r.Payload.SequenceIndex,
				Text:          r.Payload.Text,
				Span:          domain.CharSpan{Start: r.Payload.SpanStart, End: r.Payload.SpanEnd},
			},
			Score: r.Score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return domain.Less(out[i], out[j]) })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodPost, url, map[string]any{"exact": true}, &countResp)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.WrapError(domain.ErrPersistenceFailure, "qdrant count", err)
	}
	return countResp.Result.Count, nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// PointID maps a segment ID to a Qdrant point ID. Qdrant accepts only UUIDs
// or integers, so other IDs are hashed into a UUIDv5.
func PointID(segmentID string) string {
	if id, err := uuid.Parse(segmentID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(segmentID)).String()
}

// collectionDimension returns the configured vector size, 0 when the
// collection does not exist yet.
func (c *Client) collectionDimension(ctx context.Context) (int, error) {
	c.dimMu.Lock()
	known := c.dimension
	c.dimMu.Unlock()
	if known > 0 {
		return known, nil
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodGet, url, nil, &info)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.WrapError(domain.ErrPersistenceFailure, "qdrant collection info", err)
	}

	size := info.Result.Config.Params.Vectors.Size
	c.dimMu.Lock()
	c.dimension = size
	c.dimMu.Unlock()
	return size, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodPut, url, reqBody, nil)
	// 409 when another process created it first.
	if err != nil && !isConflict(err) {
		return domain.WrapError(domain.ErrPersistenceFailure, "qdrant ensure collection", err)
	}
	return nil
}

func (c *Client) existingPoints(ctx context.Context, ids []string) ([]string, error) {
	var resp struct {
		Result []struct {
			ID any `json:"id"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points", c.baseURL, c.collection)
	reqBody := map[string]any{"ids": ids, "with_payload": false, "with_vector": false}
	if err := c.do(ctx, http.MethodPost, url, reqBody, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrPersistenceFailure, "qdrant retrieve points", err)
	}
	out := make([]string, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, fmt.Sprintf("%v", r.ID))
	}
	return out, nil
}

type statusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *statusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("qdrant status: %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("qdrant status: %s", e.Status)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.StatusCode == http.StatusNotFound
}

func isConflict(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.StatusCode == http.StatusConflict
}

func (c *Client) do(ctx context.Context, method, url string, reqBody any, out any) error {
	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
