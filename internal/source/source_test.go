package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestTextNeverWaits(t *testing.T) {
	s := NewText("hello")
	if s.CacheKey() != "text" {
		t.Fatalf("unexpected cache key %q", s.CacheKey())
	}
	content, err := s.Fetch(context.Background())
	if err != nil || content != "hello" {
		t.Fatalf("fetch = %q, %v", content, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatalf("expected Wait to block until ctx done")
	}
}

func TestPathCacheKeyAndFetch(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte("net: {}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := NewPath(p)
	if s.CacheKey() != "path:"+p {
		t.Fatalf("unexpected cache key %q", s.CacheKey())
	}
	content, err := s.Fetch(context.Background())
	if err != nil || content != "net: {}" {
		t.Fatalf("fetch = %q, %v", content, err)
	}
}

func TestPollFallsBackToCacheOnFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n == 1 {
			w.Write([]byte("first body"))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPoll(srv.URL, 0)
	first, err := p.Fetch(context.Background())
	if err != nil || first != "first body" {
		t.Fatalf("first fetch = %q, %v", first, err)
	}

	second, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected fallback to cache, got error: %v", err)
	}
	if second != "first body" {
		t.Fatalf("expected cached body, got %q", second)
	}
	if atomic.LoadInt32(&hits) != 1+pollRetries {
		t.Fatalf("expected 1 + %d http attempts, got %d", pollRetries, hits)
	}
}

func TestPollNoCacheOnFirstFailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPoll(srv.URL, 0)
	if _, err := p.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error when there is no cache to fall back to")
	}
}

func TestPollEmptyBodyNotCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n == 1 {
			w.Write([]byte("good"))
			return
		}
		// empty 200 body must not overwrite the cache
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPoll(srv.URL, 0)
	if _, err := p.Fetch(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if second != "good" {
		t.Fatalf("expected cache retained, got %q", second)
	}
}
