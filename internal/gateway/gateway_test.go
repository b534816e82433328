package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sparklabs/sparkshell/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newUpstream returns a server counting hits per path. API routes answer with
// a JSON body, everything else with a small document.
func newUpstream(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/"):
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"success":true,"data":[{"id":1,"title":"Drink water"}]}`))
		case r.URL.Path == "/missing":
			http.NotFound(w, r)
		default:
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>shell for " + r.URL.Path + "</html>"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(g *Gateway, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	g.Handler(nil).ServeHTTP(rec, req)
	return rec
}

func TestServeAPI_NetworkFirstWithOfflineFallback(t *testing.T) {
	// Given an online upstream and an empty cache
	var hits atomic.Int64
	upstream := newUpstream(t, &hits)
	g := New(upstream.URL, "spark-v1", 10*time.Minute, nil, newTestStore(t))

	// When the API is reachable, the live response is served and cached
	rec := doRequest(g, http.MethodGet, "/api/missions/today?userId=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("online status = %d", rec.Code)
	}
	if src := rec.Header().Get(SourceHeader); src != "upstream" {
		t.Errorf("online source = %q, want upstream", src)
	}
	online := rec.Body.String()

	// When the upstream goes away, the cached response is served instead
	upstream.Close()
	rec = doRequest(g, http.MethodGet, "/api/missions/today?userId=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("offline status = %d, want cached 200", rec.Code)
	}
	if rec.Body.String() != online {
		t.Errorf("offline body = %q, want the cached online body", rec.Body.String())
	}
	if src := rec.Header().Get(SourceHeader); src != "api-cache" {
		t.Errorf("offline source = %q, want api-cache", src)
	}
}

func TestServeAPI_CacheExpiryBoundary(t *testing.T) {
	var hits atomic.Int64
	upstream := newUpstream(t, &hits)
	g := New(upstream.URL, "spark-v1", 10*time.Minute, nil, newTestStore(t))

	base := time.Now()
	current := base
	g.now = func() time.Time { return current }

	// Cache the response at t=0, then go offline
	if rec := doRequest(g, http.MethodGet, "/api/missions/today", nil); rec.Code != http.StatusOK {
		t.Fatalf("seed status = %d", rec.Code)
	}
	upstream.Close()

	// Just inside the window the entry is still servable
	current = base.Add(10*time.Minute - time.Second)
	if rec := doRequest(g, http.MethodGet, "/api/missions/today", nil); rec.Code != http.StatusOK {
		t.Errorf("status at 9m59s = %d, want 200", rec.Code)
	}

	// Just past the window it is gone, even before any janitor pass
	current = base.Add(10*time.Minute + time.Second)
	if rec := doRequest(g, http.MethodGet, "/api/missions/today", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status at 10m01s = %d, want 503", rec.Code)
	}
}

func TestServeAPI_NonGETNeverCachedNorServedFromCache(t *testing.T) {
	var hits atomic.Int64
	upstream := newUpstream(t, &hits)
	s := newTestStore(t)
	g := New(upstream.URL, "spark-v1", 10*time.Minute, nil, s)

	if rec := doRequest(g, http.MethodPost, "/api/missions/1/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("online POST status = %d", rec.Code)
	}
	if _, err := s.GetCacheEntry(context.Background(), APICacheName, http.MethodPost, "/api/missions/1/start", time.Now()); err == nil {
		t.Error("POST response was cached")
	}

	upstream.Close()
	if rec := doRequest(g, http.MethodPost, "/api/missions/1/start", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("offline POST status = %d, want 503", rec.Code)
	}
}

func TestServeAPI_ErrorStatusNotCached(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(upstream.Close)
	g := New(upstream.URL, "spark-v1", 10*time.Minute, nil, newTestStore(t))

	if rec := doRequest(g, http.MethodGet, "/api/missions/today", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want the upstream 500 passed through", rec.Code)
	}

	upstream.Close()
	if rec := doRequest(g, http.MethodGet, "/api/missions/today", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("offline status = %d, want 503 since the error was never cached", rec.Code)
	}
}

func TestServeStatic_CacheFirstSkipsNetworkOnHit(t *testing.T) {
	var hits atomic.Int64
	upstream := newUpstream(t, &hits)
	g := New(upstream.URL, "spark-v1", 10*time.Minute, nil, newTestStore(t))

	first := doRequest(g, http.MethodGet, "/src/App.tsx", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hits after miss = %d, want 1", hits.Load())
	}

	second := doRequest(g, http.MethodGet, "/src/App.tsx", nil)
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d", second.Code)
	}
	if hits.Load() != 1 {
		t.Errorf("upstream hits after hit = %d, want still 1", hits.Load())
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("cached body differs from original")
	}
	if src := second.Header().Get(SourceHeader); src != "static-cache" {
		t.Errorf("cache hit source = %q, want static-cache", src)
	}
}

func TestServeStatic_NonOKPassesThroughUncached(t *testing.T) {
	var hits atomic.Int64
	upstream := newUpstream(t, &hits)
	g := New(upstream.URL, "spark-v1", 10*time.Minute, nil, newTestStore(t))

	if rec := doRequest(g, http.MethodGet, "/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	// A second request must hit the upstream again
	doRequest(g, http.MethodGet, "/missing", nil)
	if hits.Load() != 2 {
		t.Errorf("upstream hits = %d, want 2 for uncached 404", hits.Load())
	}
}

func TestServeStatic_OfflineNavigationFallsBackToShell(t *testing.T) {
	var hits atomic.Int64
	upstream := newUpstream(t, &hits)
	g := New(upstream.URL, "spark-v1", 10*time.Minute, nil, newTestStore(t))

	// Cache the application shell while online
	shell := doRequest(g, http.MethodGet, "/", nil)
	if shell.Code != http.StatusOK {
		t.Fatalf("shell status = %d", shell.Code)
	}
	upstream.Close()

	// A navigation to an uncached route serves the shell
	rec := doRequest(g, http.MethodGet, "/missions/42", map[string]string{"Accept": "text/html"})
	if rec.Code != http.StatusOK {
		t.Fatalf("offline navigation status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != shell.Body.String() {
		t.Errorf("offline navigation body = %q, want the cached shell", rec.Body.String())
	}
	if src := rec.Header().Get(SourceHeader); src != "shell-fallback" {
		t.Errorf("offline navigation source = %q, want shell-fallback", src)
	}

	// A non-navigation asset miss stays a failure
	if rec := doRequest(g, http.MethodGet, "/assets/logo.svg", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("offline asset status = %d, want 503", rec.Code)
	}
}

func TestInstall_PrecachesManifestAndSkipsFailures(t *testing.T) {
	var hits atomic.Int64
	upstream := newUpstream(t, &hits)
	s := newTestStore(t)
	manifest := []string{"/", "/index.html", "/missing", "/manifest.json"}
	g := New(upstream.URL, "spark-v1", 10*time.Minute, manifest, s)

	g.Install(context.Background())

	for _, path := range []string{"/", "/index.html", "/manifest.json"} {
		if _, err := s.GetCacheEntry(context.Background(), "spark-v1", http.MethodGet, path, time.Now()); err != nil {
			t.Errorf("asset %s not precached: %v", path, err)
		}
	}
	// The 404 asset is skipped without aborting the rest
	if _, err := s.GetCacheEntry(context.Background(), "spark-v1", http.MethodGet, "/missing", time.Now()); err == nil {
		t.Error("failed asset was cached")
	}
}

func TestActivate_DeletesStaleGenerationsKeepsAPICache(t *testing.T) {
	// Given entries from an old generation, the current one, and the API cache
	s := newTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"spark-v0", "spark-v1", APICacheName} {
		err := s.PutCacheEntry(ctx, store.CacheEntry{
			CacheName: name,
			URLKey:    "/",
			Method:    http.MethodGet,
			Status:    http.StatusOK,
			Body:      []byte(name),
			StoredAt:  time.Now(),
		})
		if err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	g := New("http://localhost:0", "spark-v1", 10*time.Minute, nil, s)
	if err := g.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	names, err := s.ListCacheNames(ctx)
	if err != nil {
		t.Fatalf("ListCacheNames: %v", err)
	}
	got := map[string]bool{}
	for _, n := range names {
		got[n] = true
	}
	if got["spark-v0"] {
		t.Error("stale generation spark-v0 survived activation")
	}
	if !got["spark-v1"] {
		t.Error("current generation was deleted")
	}
	if !got[APICacheName] {
		t.Error("API cache was deleted during activation")
	}
}
