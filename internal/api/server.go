// Package api exposes the admin HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openharvest/douyin-crawler/internal/crawler"
	"github.com/openharvest/douyin-crawler/internal/douyin"
	"github.com/openharvest/douyin-crawler/internal/metrics"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Crawls is the orchestrator surface the server drives.
type Crawls interface {
	Start(req crawler.Request) error
	Stop()
	Snapshot() crawler.Status
}

// Catalog is the read/maintenance slice of the store the server consumes.
type Catalog interface {
	ListVideos(ctx context.Context, limit, offset int) ([]douyin.VideoRecord, error)
	ListCreators(ctx context.Context, limit, offset int) ([]douyin.CreatorRecord, error)
	CountVideos(ctx context.Context) (int64, error)
	ClearVideos(ctx context.Context) error
}

// Server wires HTTP handlers to the crawl orchestrator and the store.
type Server struct {
	router  chi.Router
	crawls  Crawls
	catalog Catalog
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(crawls Crawls, catalog Catalog, logger *zap.Logger) *Server {
	s := &Server{
		crawls:  crawls,
		catalog: catalog,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/start", s.startCrawl)
			r.Post("/stop", s.stopCrawl)
			r.Get("/status", s.crawlStatus)
		})
		r.Get("/videos", s.listVideos)
		r.Get("/videos/count", s.countVideos)
		r.Delete("/videos", s.clearVideos)
		r.Get("/creators", s.listCreators)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the only hard dependency once the process is up.
	if _, err := s.catalog.CountVideos(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawler.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.crawls.Start(req); err != nil {
		switch {
		case errors.Is(err, douyin.ErrCrawlInProgress):
			writeError(w, http.StatusConflict, "a crawl is already running")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "mode": string(req.Mode)})
}

func (s *Server) stopCrawl(w http.ResponseWriter, _ *http.Request) {
	s.crawls.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) crawlStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.crawls.Snapshot())
}

func (s *Server) listVideos(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	videos, err := s.catalog.ListVideos(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list videos failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	if videos == nil {
		videos = []douyin.VideoRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": videos, "limit": limit, "offset": offset})
}

func (s *Server) countVideos(w http.ResponseWriter, r *http.Request) {
	n, err := s.catalog.CountVideos(r.Context())
	if err != nil {
		s.logger.Error("count videos failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count videos")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) clearVideos(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.ClearVideos(r.Context()); err != nil {
		s.logger.Error("clear videos failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear videos")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) listCreators(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	creators, err := s.catalog.ListCreators(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list creators failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list creators")
		return
	}
	if creators == nil {
		creators = []douyin.CreatorRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"creators": creators, "limit": limit, "offset": offset})
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, maxPageLimit)
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
