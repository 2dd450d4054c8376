package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"detectd/internal/artifactcache"
	"detectd/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestFetch_DownloadAndCache(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 4096)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	cache := artifactcache.Open(artifactcache.Config{
		Path:         filepath.Join(t.TempDir(), "artifacts.db"),
		MaxSizeBytes: 1 << 20,
	})
	defer cache.Close()

	f := New(cache, testLogger())
	f.Policy = fastPolicy()

	ctx := context.Background()
	got, err := f.Fetch(ctx, "det-a", srv.URL, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %d bytes", len(got))
	}
	// Second fetch must come from the cache, not the network.
	got2, err := f.Fetch(ctx, "det-a", srv.URL, nil)
	if err != nil {
		t.Fatalf("Fetch (cached): %v", err)
	}
	if !bytes.Equal(got2, payload) {
		t.Fatalf("cached payload mismatch")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 network hit, got %d", hits.Load())
	}
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("weights"))
	}))
	defer srv.Close()

	f := New(nil, testLogger())
	f.Policy = fastPolicy()
	got, err := f.Fetch(context.Background(), "det-b", srv.URL, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "weights" {
		t.Fatalf("unexpected payload %q", got)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := New(nil, testLogger())
	f.Policy = fastPolicy()
	if _, err := f.Fetch(context.Background(), "det-c", srv.URL, nil); err == nil {
		t.Fatalf("expected error for 404")
	}
	if calls.Load() != 1 {
		t.Fatalf("404 should not be retried, got %d attempts", calls.Load())
	}
}

func TestFetch_ProgressMonotonic(t *testing.T) {
	payload := bytes.Repeat([]byte{1}, 256<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "262144")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f := New(nil, testLogger())
	f.Policy = fastPolicy()
	var seen []int
	if _, err := f.Fetch(context.Background(), "det-d", srv.URL, func(pct int) {
		seen = append(seen, pct)
	}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(seen) == 0 || seen[len(seen)-1] != 100 {
		t.Fatalf("progress must end at 100: %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress regressed at %d: %v", i, seen)
		}
	}
}

func TestFetch_LocalPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model.onnx")
	if err := writeFile(p, []byte("graph")); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := New(nil, testLogger())
	f.Policy = fastPolicy()
	got, err := f.Fetch(context.Background(), "det-e", p, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "graph" {
		t.Fatalf("unexpected payload %q", got)
	}
}
