// Package server exposes the search pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smokhtari/torobworker/internal/scrape"
	"smokhtari/torobworker/internal/store"
	"smokhtari/torobworker/logger"
	scrapeerrors "smokhtari/torobworker/pkg/errors"
)

const defaultLogLimit = 50

// Server wires the scraper and stores into an HTTP API
type Server struct {
	scraper *scrape.Scraper
	cache   store.CacheStore
	logs    store.SearchLogStore
	metrics *scrape.Metrics
	log     *logger.Logger
}

// NewServer creates the HTTP server facade. Metrics may be nil, in which
// case the metrics endpoint is not mounted.
func NewServer(scraper *scrape.Scraper, cache store.CacheStore, logs store.SearchLogStore, metrics *scrape.Metrics) *Server {
	return &Server{
		scraper: scraper,
		cache:   cache,
		logs:    logs,
		metrics: metrics,
		log:     logger.ForServer(),
	}
}

// Router builds the chi router with all API routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.accessLog)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/bulk-search", s.handleBulkSearch)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", s.handleCacheStats)
			r.Delete("/", s.handleClearCache)
			r.Get("/{productID}", s.handleGetCached)
			r.Delete("/{productID}", s.handleDeleteCached)
		})

		r.Get("/search/stats", s.handleSearchStats)
		r.Get("/logs", s.handleLogs)
	})

	return r
}

// accessLog logs each request with its duration
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("elapsed", time.Since(start).String()).
			Msg("Request handled")
	})
}

type searchRequest struct {
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, scrapeerrors.New(scrapeerrors.CategoryInvalidInput, err))
		return
	}

	var result *scrape.Result
	var err error
	if req.ForceRefresh {
		result, err = s.scraper.Refresh(r.Context(), req.ProductID, req.ProductName)
	} else {
		result, err = s.scraper.Search(r.Context(), req.ProductID, req.ProductName)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

type bulkSearchRequest struct {
	Products []scrape.BulkProduct `json:"products"`
}

func (s *Server) handleBulkSearch(w http.ResponseWriter, r *http.Request) {
	var req bulkSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, scrapeerrors.New(scrapeerrors.CategoryInvalidInput, err))
		return
	}
	if len(req.Products) == 0 {
		writeError(w, scrapeerrors.NewWithMessage(scrapeerrors.CategoryInvalidInput, "محصولی برای جستجو ارسال نشده است", nil))
		return
	}

	report, err := s.scraper.BulkSearch(r.Context(), req.Products)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

func (s *Server) handleGetCached(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		writeError(w, scrapeerrors.New(scrapeerrors.CategoryInvalidInput, err))
		return
	}

	result, err := s.scraper.GetCached(r.Context(), productID)
	if err != nil {
		if errors.Is(err, store.ErrCacheMiss) {
			writeError(w, scrapeerrors.New(scrapeerrors.CategoryNotFound, err))
			return
		}
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (s *Server) handleDeleteCached(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		writeError(w, scrapeerrors.New(scrapeerrors.CategoryInvalidInput, err))
		return
	}

	if err := s.cache.Delete(r.Context(), productID); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]int64{"product_id": productID})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}

func (s *Server) handleSearchStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, scrapeerrors.New(scrapeerrors.CategoryInvalidInput, err))
			return
		}
		days = parsed
	}

	stats, err := s.logs.Stats(r.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, scrapeerrors.New(scrapeerrors.CategoryInvalidInput, err))
			return
		}
		limit = parsed
	}

	entries, err := s.logs.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, entries)
}

// ListenAndServe runs the HTTP server until the context is cancelled, then
// shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
