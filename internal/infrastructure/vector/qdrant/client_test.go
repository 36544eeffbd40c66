package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
)

func TestQueryParsesResultsAndFilter(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{
					"score": 0.91,
					"payload": map[string]any{
						"passage_id":  "filing.pdf:p2:c1",
						"text":        "net interest margin widened",
						"source":      "filing.pdf",
						"page":        "2",
						"category":    "reports",
						"chunk_index": 1,
						"token_count": 42,
					},
				},
				{
					"score":   0.74,
					"payload": map[string]any{"passage_id": "policy.pdf:p1:c0", "text": "risk appetite"},
				},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "passages")
	results, err := c.Query(context.Background(), []float32{0.1, 0.2}, 5, domain.SearchFilter{Category: "reports"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if gotPath != "/collections/passages/points/search" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody["limit"] != float64(5) || gotBody["with_payload"] != true {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
	filter, ok := gotBody["filter"].(map[string]any)
	if !ok {
		t.Fatalf("expected category filter in request: %v", gotBody)
	}
	must := filter["must"].([]any)[0].(map[string]any)
	if must["key"] != "category" || must["match"].(map[string]any)["value"] != "reports" {
		t.Fatalf("unexpected filter clause: %v", must)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	first := results[0]
	if first.Score != 0.91 || first.Signal != domain.SignalDense {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if first.Passage.ID != "filing.pdf:p2:c1" || first.Passage.Content != "net interest margin widened" {
		t.Fatalf("payload not mapped: %+v", first.Passage)
	}
	if first.Passage.ChunkIndex != 1 || first.Passage.TokenCount != 42 || first.Passage.Category != "reports" {
		t.Fatalf("numeric payload not mapped: %+v", first.Passage)
	}
}

func TestQueryOmitsFilterWithoutCategory(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": []map[string]any{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "passages")
	if _, err := c.Query(context.Background(), []float32{0.1}, 3, domain.SearchFilter{}); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if _, ok := gotBody["filter"]; ok {
		t.Fatalf("filter must be absent without a category: %v", gotBody)
	}
}

func TestQueryWrapsStatusFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "passages")
	_, err := c.Query(context.Background(), []float32{0.1}, 3, domain.SearchFilter{})
	if !domain.IsKind(err, domain.ErrUpstreamService) {
		t.Fatalf("expected ErrUpstreamService, got %v", err)
	}
}

func TestQueryWrapsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result": [{`))
	}))
	defer srv.Close()

	c := New(srv.URL, "passages")
	_, err := c.Query(context.Background(), []float32{0.1}, 3, domain.SearchFilter{})
	if !domain.IsKind(err, domain.ErrUpstreamService) {
		t.Fatalf("expected ErrUpstreamService, got %v", err)
	}
}

func TestQueryWrapsTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	c := New(srv.URL, "passages")
	_, err := c.Query(context.Background(), []float32{0.1}, 3, domain.SearchFilter{})
	if !domain.IsKind(err, domain.ErrUpstreamService) {
		t.Fatalf("expected ErrUpstreamService, got %v", err)
	}
}

func TestUpsertEnsuresCollectionThenWritesPoints(t *testing.T) {
	type call struct {
		method string
		path   string
		body   map[string]any
	}
	var calls []call

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, call{method: r.Method, path: r.URL.Path, body: body})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "passages")
	passages := []domain.Passage{
		{ID: "doc.pdf:p1:c0", Content: "chunk text", Source: "doc.pdf", Page: "1", Category: "reports", ChunkIndex: 0, TokenCount: 2, Embedding: []float32{0.1, 0.2, 0.3}},
	}
	if err := c.Upsert(context.Background(), passages); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected ensure + upsert, got %d calls", len(calls))
	}

	ensure := calls[0]
	if ensure.method != http.MethodPut || ensure.path != "/collections/passages" {
		t.Fatalf("unexpected ensure call: %+v", ensure)
	}
	vectors := ensure.body["vectors"].(map[string]any)
	if vectors["size"] != float64(3) || vectors["distance"] != "Cosine" {
		t.Fatalf("unexpected collection config: %v", vectors)
	}

	upsert := calls[1]
	if upsert.method != http.MethodPut || upsert.path != "/collections/passages/points" {
		t.Fatalf("unexpected upsert call: %+v", upsert)
	}
	points := upsert.body["points"].([]any)
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	point := points[0].(map[string]any)
	if point["id"] != pointID("doc.pdf:p1:c0") {
		t.Fatalf("point ID must be the deterministic hash, got %v", point["id"])
	}
	payload := point["payload"].(map[string]any)
	if payload["passage_id"] != "doc.pdf:p1:c0" || payload["text"] != "chunk text" || payload["category"] != "reports" {
		t.Fatalf("unexpected payload: %v", payload)
	}

	// A second upsert with the same vector size skips the ensure call.
	if err := c.Upsert(context.Background(), passages); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("expected ensure to be cached, got %d calls", len(calls))
	}
}

func TestUpsertAcceptsExistingCollection(t *testing.T) {
	var pointsWritten bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/passages" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		pointsWritten = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "passages")
	err := c.Upsert(context.Background(), []domain.Passage{
		{ID: "doc.pdf:p1:c0", Content: "text", Embedding: []float32{0.5}},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !pointsWritten {
		t.Fatalf("points must still be written when the collection already exists")
	}
}

func TestUpsertRejectsMissingEmbedding(t *testing.T) {
	c := New("http://unused", "passages")
	err := c.Upsert(context.Background(), []domain.Passage{{ID: "doc.pdf:p1:c0", Content: "text"}})
	if err == nil {
		t.Fatalf("expected error for passage without embedding")
	}
}

func TestUpsertEmptyBatchIsNoop(t *testing.T) {
	c := New("http://unused", "passages")
	if err := c.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("Upsert(nil) error = %v", err)
	}
}

func TestPointIDIsDeterministic(t *testing.T) {
	a := pointID("doc.pdf:p1:c0")
	b := pointID("doc.pdf:p1:c0")
	other := pointID("doc.pdf:p1:c1")
	if a != b {
		t.Fatalf("same passage must hash to the same point ID: %s vs %s", a, b)
	}
	if a == other {
		t.Fatalf("distinct passages must not collide")
	}
}
