// Package http exposes operational endpoints and the dashboard read API.
// The read API only queries persisted rows; it has no view into a running
// cycle beyond what the store holds.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klongtoey/airhealth/internal/domain"
	"github.com/klongtoey/airhealth/internal/quota"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// IndexReader is the store's dashboard read path.
type IndexReader interface {
	LatestIndex(ctx context.Context, locationID string) (domain.HealthIndexRecord, bool, error)
	IndexHistory(ctx context.Context, locationID string, since time.Time) ([]domain.HealthIndexRecord, error)
}

// QuotaReader reports provider budget consumption.
type QuotaReader interface {
	CurrentUsage(ctx context.Context, provider string) (quota.Usage, error)
}

// Server exposes health, readiness, metrics, and read API HTTP endpoints.
type Server struct {
	httpServer *http.Server
	locations  []domain.Location
	reader     IndexReader
	quotas     QuotaReader
	logger     *slog.Logger
}

// NewServer creates the HTTP server and wires its routes.
func NewServer(addr string, locations []domain.Location, reader IndexReader, quotas QuotaReader, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		locations: locations,
		reader:    reader,
		quotas:    quotas,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/locations", s.handleLocations)
	mux.HandleFunc("GET /api/v1/locations/{id}/index", s.handleLatestIndex)
	mux.HandleFunc("GET /api/v1/locations/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/index/nearby", s.handleNearby)
	mux.HandleFunc("GET /api/v1/quota", s.handleQuota)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleLocations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.locations)
}

func (s *Server) handleLatestIndex(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.knownLocation(id) {
		writeError(w, http.StatusNotFound, "unknown location")
		return
	}
	rec, ok, err := s.reader.LatestIndex(r.Context(), id)
	if err != nil {
		s.logger.Error("latest index query failed", "location", id, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if !ok {
		// No record yet is not a failure; collection simply has not
		// covered this location.
		writeError(w, http.StatusNotFound, "no index computed yet")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.knownLocation(id) {
		writeError(w, http.StatusNotFound, "unknown location")
		return
	}
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 168 {
			writeError(w, http.StatusBadRequest, "hours must be 1-168")
			return
		}
		hours = n
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	recs, err := s.reader.IndexHistory(r.Context(), id, since)
	if err != nil {
		s.logger.Error("history query failed", "location", id, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	loc, distance, ok := domain.NearestLocation(s.locations, lat, lon)
	if !ok {
		writeError(w, http.StatusNotFound, "no locations configured")
		return
	}

	resp := struct {
		Location  domain.Location           `json:"location"`
		DistanceM float64                   `json:"distance_m"`
		Index     *domain.HealthIndexRecord `json:"index,omitempty"`
	}{Location: loc, DistanceM: distance}

	rec, found, err := s.reader.LatestIndex(r.Context(), loc.ID)
	if err != nil {
		s.logger.Error("nearby index query failed", "location", loc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if found {
		resp.Index = &rec
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}
	usage, err := s.quotas.CurrentUsage(r.Context(), provider)
	if err != nil {
		s.logger.Error("quota query failed", "provider", provider, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) knownLocation(id string) bool {
	for _, loc := range s.locations {
		if loc.ID == id {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
