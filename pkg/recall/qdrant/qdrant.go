// Package qdrant provides a recall backend over the Qdrant HTTP API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/recall"
)

// Backend talks to a Qdrant collection over HTTP. Only vector queries
// are supported; key lookups belong to the in-memory backend.
type Backend struct {
	BaseURL    string
	Collection string
	HTTPClient *http.Client
}

var _ recall.Backend = (*Backend)(nil)

func New(url, collection string) *Backend {
	return &Backend{
		BaseURL:    strings.TrimRight(url, "/"),
		Collection: collection,
		HTTPClient: &http.Client{},
	}
}

// CreateCollection creates the vector collection.
// PUT /collections/{name} with {"vectors": {"size": dims, "distance": "Cosine"}}
func (b *Backend) CreateCollection(ctx context.Context, dimensions int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling create collection request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", b.BaseURL, b.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant create collection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant create collection returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// searchRequest is the JSON body for Qdrant's search endpoint.
type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type searchResponse struct {
	Result []searchResult `json:"result"`
}

type searchResult struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Search performs a nearest-neighbor search.
// POST /collections/{name}/points/search
func (b *Backend) Search(ctx context.Context, q recall.Query) ([]api.RecallEntry, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("qdrant backend requires a query vector")
	}

	limit := q.TopK
	if limit <= 0 {
		limit = 5
	}
	data, err := json.Marshal(searchRequest{
		Vector:      q.Vector,
		Limit:       limit,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", b.BaseURL, b.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qdrant search returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var searchResp searchResponse
	if err := json.Unmarshal(respBody, &searchResp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	entries := make([]api.RecallEntry, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		e := api.RecallEntry{
			ID:    fmt.Sprintf("%v", r.ID),
			Score: r.Score,
		}
		if content, ok := r.Payload["content"].(string); ok {
			e.Payload = content
		}
		entries = append(entries, e)
	}
	return entries, nil
}
