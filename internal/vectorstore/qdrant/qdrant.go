package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"ragqa/internal/domain"
)

// Storage is a minimal REST client to Qdrant.
// Point ids are passage positions; the collection uses cosine distance.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	count      atomic.Int64
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Open checks that the collection exists and records its point count.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	s := NewStorage(cfg)
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh reloads the cached point count from the collection info.
func (s *Storage) Refresh(ctx context.Context) error {
	var resp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodGet, s.collectionURL(""), nil, &resp); err != nil {
		return err
	}
	s.count.Store(resp.Result.PointsCount)
	return nil
}

// Count returns the point count observed by the last Open/Refresh/Upsert.
func (s *Storage) Count() int { return int(s.count.Load()) }

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	// Qdrant returns 200 OK if the collection exists with the same schema.
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.doJSON(ctx, http.MethodPut, s.collectionURL(""), body, nil)
}

func (s *Storage) Upsert(ctx context.Context, ids []int, vectors [][]float64) error {
	if len(ids) != len(vectors) {
		return errors.New("ids and vectors length mismatch")
	}
	points := make([]map[string]any, len(ids))
	for i := range ids {
		points[i] = map[string]any{
			"id":     ids[i],
			"vector": vectors[i],
		}
	}
	body := map[string]any{"points": points}
	if err := s.doJSON(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return err
	}
	s.count.Add(int64(len(ids)))
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.Hit, error) {
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": false,
	}
	var resp struct {
		Result []struct {
			ID    json.RawMessage `json:"id"`
			Score float64         `json:"score"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, err := strconv.Atoi(string(r.ID))
		if err != nil {
			// UUID point ids cannot map to a passage position.
			id = -1
		}
		hits = append(hits, domain.Hit{ID: id, Score: r.Score})
	}
	return hits, nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
