package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrapeWorker(t *testing.T, m *WorkerMetrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}

func TestObserveRebuildExposesSeries(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.ObserveRebuild("worker", 120*time.Millisecond, 340)

	exposition := scrapeWorker(t, m)
	if !strings.Contains(exposition, `frag_worker_sparse_rebuild_duration_seconds_count{service="worker"} 1`) {
		t.Fatalf("rebuild duration not observed:\n%s", exposition)
	}
	if !strings.Contains(exposition, `frag_worker_corpus_passages{service="worker"} 340`) {
		t.Fatalf("corpus gauge not set:\n%s", exposition)
	}

	// The gauge tracks the latest rebuild, it does not accumulate.
	m.ObserveRebuild("worker", 80*time.Millisecond, 350)
	exposition = scrapeWorker(t, m)
	if !strings.Contains(exposition, `frag_worker_corpus_passages{service="worker"} 350`) {
		t.Fatalf("corpus gauge must follow the last rebuild:\n%s", exposition)
	}
}

func TestFinishDocumentCountsByStatus(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.StartDocument()
	m.FinishDocument("worker", 10*time.Millisecond, nil)
	m.StartDocument()
	m.FinishDocument("worker", 10*time.Millisecond, errors.New("extract failed"))

	exposition := scrapeWorker(t, m)
	if !strings.Contains(exposition, `frag_worker_document_process_total{service="worker",status="success"} 1`) {
		t.Fatalf("success not counted:\n%s", exposition)
	}
	if !strings.Contains(exposition, `frag_worker_document_process_total{service="worker",status="error"} 1`) {
		t.Fatalf("error not counted:\n%s", exposition)
	}
	if !strings.Contains(exposition, `frag_worker_document_process_in_flight{service="worker"} 0`) {
		t.Fatalf("in-flight gauge must return to zero:\n%s", exposition)
	}
}
