package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dirigent-dev/dirigent/pkg/recall"
)

func TestBackend_Search(t *testing.T) {
	var gotReq searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/memories/points/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"id": 7, "score": 0.91, "payload": map[string]any{"content": "first hit"}},
				{"id": "uuid-2", "score": 0.55, "payload": map[string]any{"content": "second hit"}},
			},
		})
	}))
	defer srv.Close()

	b := New(srv.URL, "memories")
	entries, err := b.Search(context.Background(), recall.Query{
		Vector: []float32{0.1, 0.2, 0.3},
		TopK:   2,
	})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if !gotReq.WithPayload {
		t.Error("search must request payloads")
	}
	if gotReq.Limit != 2 {
		t.Errorf("TopK must become the search limit, got %d", gotReq.Limit)
	}
	if len(gotReq.Vector) != 3 {
		t.Errorf("query vector not forwarded: %v", gotReq.Vector)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "7" || entries[0].Score != 0.91 || entries[0].Payload != "first hit" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
}

func TestBackend_RequiresVector(t *testing.T) {
	b := New("http://localhost:6333", "memories")
	if _, err := b.Search(context.Background(), recall.Query{Key: "text only"}); err == nil {
		t.Fatal("key-only queries must be rejected")
	}
}

func TestBackend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer srv.Close()

	b := New(srv.URL, "missing")
	if _, err := b.Search(context.Background(), recall.Query{Vector: []float32{1}}); err == nil {
		t.Fatal("non-200 responses must be errors")
	}
}

func TestBackend_CreateCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/collections/memories" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		vectors, _ := body["vectors"].(map[string]any)
		if vectors["size"] != float64(384) || vectors["distance"] != "Cosine" {
			t.Errorf("unexpected collection config %v", vectors)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := New(srv.URL, "memories").CreateCollection(context.Background(), 384); err != nil {
		t.Fatalf("create collection failed: %v", err)
	}
}
