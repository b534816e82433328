// Package gateway is the offline cache layer: a local proxy that intercepts
// every outbound request and applies one of two policies. API calls are
// network-first with a short-TTL fallback cache for offline reads; everything
// else is cache-first against a generation-tagged static cache that is
// garbage-collected wholesale when a new generation activates.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sparklabs/sparkshell/internal/push"
	"github.com/sparklabs/sparkshell/internal/store"
)

// APICacheName is the fixed name of the short-lived API response cache. It is
// independent of static generations and survives activation cleanup.
const APICacheName = "spark-api-cache"

// apiPathPrefix routes a request to the network-first policy.
const apiPathPrefix = "/api/"

// SourceHeader names the tier that produced a response: the upstream origin,
// one of the cache tiers, or the offline shell fallback.
const SourceHeader = "X-Spark-Source"

const (
	sourceUpstream      = "upstream"
	sourceAPICache      = "api-cache"
	sourceStaticCache   = "static-cache"
	sourceShellFallback = "shell-fallback"
)

// CacheStore is the persistence surface the gateway needs.
// Implemented by store.SQLiteStore.
type CacheStore interface {
	PutCacheEntry(ctx context.Context, entry store.CacheEntry) error
	GetCacheEntry(ctx context.Context, cacheName, method, urlKey string, now time.Time) (*store.CacheEntry, error)
	ListCacheNames(ctx context.Context) ([]string, error)
	DeleteCachesExcept(ctx context.Context, keep []string) (int64, error)
}

// Gateway proxies requests to the upstream origin with offline caching.
type Gateway struct {
	upstream   string
	generation string
	apiTTL     time.Duration
	precache   []string
	cache      CacheStore
	client     *http.Client

	// now is injectable for TTL boundary tests.
	now func() time.Time
}

// New creates a gateway for the given upstream origin (scheme://host).
func New(upstream, generation string, apiTTL time.Duration, precache []string, cache CacheStore) *Gateway {
	return &Gateway{
		upstream:   strings.TrimRight(upstream, "/"),
		generation: generation,
		apiTTL:     apiTTL,
		precache:   precache,
		cache:      cache,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// Install pre-populates the static cache with the critical asset manifest.
// Individual asset failures are logged and skipped; the gateway signals
// readiness regardless, mirroring an install that activates immediately.
func (g *Gateway) Install(ctx context.Context) {
	for _, path := range g.precache {
		if err := g.precacheAsset(ctx, path); err != nil {
			slog.Warn("precache asset failed",
				"component", "gateway",
				"asset", path,
				"error", err,
			)
			continue
		}
		slog.Debug("asset precached", "component", "gateway", "asset", path)
	}
	slog.Info("gateway installed",
		"component", "gateway",
		"generation", g.generation,
		"assets", len(g.precache),
	)
}

func (g *Gateway) precacheAsset(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.upstream+path, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	return g.cache.PutCacheEntry(ctx, store.CacheEntry{
		CacheName: g.generation,
		URLKey:    path,
		Method:    http.MethodGet,
		Status:    resp.StatusCode,
		Headers:   resp.Header.Clone(),
		Body:      body,
		StoredAt:  g.now(),
	})
}

// Activate garbage-collects every static generation except the current one
// and takes over traffic immediately. The API cache is never a generation and
// always survives.
func (g *Gateway) Activate(ctx context.Context) error {
	deleted, err := g.cache.DeleteCachesExcept(ctx, []string{g.generation, APICacheName})
	if err != nil {
		return fmt.Errorf("clean stale generations: %w", err)
	}
	slog.Info("gateway activated",
		"component", "gateway",
		"generation", g.generation,
		"stale_entries_deleted", deleted,
	)
	return nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler(pushHooks *push.Hooks) http.Handler {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	if pushHooks != nil {
		r.Post("/push/event", pushHooks.HandleEvent)
		r.Post("/push/click", pushHooks.HandleClick)
	}

	r.HandleFunc("/*", g.serve)
	return r
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, apiPathPrefix) {
		g.serveAPI(w, r)
		return
	}
	g.serveStatic(w, r)
}

// serveAPI is the network-first policy: the live response wins and refreshes
// the short-lived fallback cache; only a transport failure consults it.
func (g *Gateway) serveAPI(w http.ResponseWriter, r *http.Request) {
	urlKey := requestKey(r)

	resp, body, err := g.forward(r)
	if err == nil {
		// Only successful GET responses are worth caching for offline reads
		if r.Method == http.MethodGet && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			expires := g.now().Add(g.apiTTL)
			cacheErr := g.cache.PutCacheEntry(r.Context(), store.CacheEntry{
				CacheName: APICacheName,
				URLKey:    urlKey,
				Method:    r.Method,
				Status:    resp.StatusCode,
				Headers:   resp.Header.Clone(),
				Body:      body,
				StoredAt:  g.now(),
				ExpiresAt: &expires,
			})
			if cacheErr != nil {
				slog.Warn("api cache write failed",
					"component", "gateway",
					"url", urlKey,
					"error", cacheErr,
				)
			}
		}
		w.Header().Set(SourceHeader, sourceUpstream)
		writeResponse(w, resp.StatusCode, resp.Header, body)
		return
	}

	// Offline: fall back to the short-lived cache for reads
	if r.Method == http.MethodGet {
		if entry, cacheErr := g.cache.GetCacheEntry(r.Context(), APICacheName, r.Method, urlKey, g.now()); cacheErr == nil {
			w.Header().Set(SourceHeader, sourceAPICache)
			writeResponse(w, entry.Status, entry.Headers, entry.Body)
			return
		}
	}

	slog.Warn("api request failed with no cached fallback",
		"component", "gateway",
		"method", r.Method,
		"url", urlKey,
		"error", err,
	)
	http.Error(w, "Network error", http.StatusServiceUnavailable)
}

// serveStatic is the cache-first policy: a hit never touches the network; a
// miss populates the current generation from a successful upstream response.
func (g *Gateway) serveStatic(w http.ResponseWriter, r *http.Request) {
	urlKey := requestKey(r)

	if entry, err := g.cache.GetCacheEntry(r.Context(), g.generation, http.MethodGet, urlKey, g.now()); err == nil {
		w.Header().Set(SourceHeader, sourceStaticCache)
		writeResponse(w, entry.Status, entry.Headers, entry.Body)
		return
	}

	resp, body, err := g.forward(r)
	if err != nil {
		// Offline navigation falls back to the cached application shell
		if isNavigation(r) {
			if entry, cacheErr := g.cache.GetCacheEntry(r.Context(), g.generation, http.MethodGet, "/", g.now()); cacheErr == nil {
				w.Header().Set(SourceHeader, sourceShellFallback)
				writeResponse(w, entry.Status, entry.Headers, entry.Body)
				return
			}
		}
		http.Error(w, "Network error", http.StatusServiceUnavailable)
		return
	}

	// Only normal successful responses enter the durable cache; everything
	// else passes through untouched.
	if r.Method == http.MethodGet && resp.StatusCode == http.StatusOK {
		if err := g.cache.PutCacheEntry(r.Context(), store.CacheEntry{
			CacheName: g.generation,
			URLKey:    urlKey,
			Method:    http.MethodGet,
			Status:    resp.StatusCode,
			Headers:   resp.Header.Clone(),
			Body:      body,
			StoredAt:  g.now(),
		}); err != nil {
			slog.Warn("static cache write failed",
				"component", "gateway",
				"url", urlKey,
				"error", err,
			)
		}
	}

	w.Header().Set(SourceHeader, sourceUpstream)
	writeResponse(w, resp.StatusCode, resp.Header, body)
}

// forward relays the request to the upstream origin and drains the body so
// it can be both cached and served.
func (g *Gateway) forward(r *http.Request) (*http.Response, []byte, error) {
	var reqBody io.Reader
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("read request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, g.upstream+requestKey(r), reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("build upstream request: %w", err)
	}
	copyHeaders(req.Header, r.Header)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read upstream response: %w", err)
	}
	return resp, body, nil
}

// requestKey is the cache identity of a request: path plus query.
func requestKey(r *http.Request) string {
	key := r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	return key
}

// isNavigation reports whether the request is for a top-level document.
func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" {
		return dest == "document"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeResponse(w http.ResponseWriter, status int, headers http.Header, body []byte) {
	copyHeaders(w.Header(), headers)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write response", "component", "gateway", "error", err)
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
