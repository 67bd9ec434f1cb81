package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/pandora-weather-scanner/internal/observability"
	"github.com/kjstillabower/pandora-weather-scanner/internal/registry"
	"github.com/kjstillabower/pandora-weather-scanner/internal/service"
)

// HealthConfig holds what the health handler reports beyond liveness.
type HealthConfig struct {
	StartTime time.Time
	// CacheEntries, when set, reports the current cache size.
	CacheEntries func() int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService *service.WeatherService
	healthConfig   *HealthConfig
	logger         *zap.Logger
	shuttingDown   atomic.Bool
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(weatherService *service.WeatherService, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weatherService: weatherService,
		healthConfig:   healthConfig,
		logger:         logger,
	}
}

// SetShuttingDown flips the health endpoint to 503 shutting-down. Call on SIGTERM/SIGINT.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// GetWeather handles GET /get_weather/{location}.
// 404 for keys outside the registry, 503 when the upstream fetch failed.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["location"]

	result, err := h.weatherService.Lookup(r.Context(), key)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, service.ErrLocationNotFound):
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", "Location '"+key+"' not found")
	case errors.Is(err, service.ErrUpstreamUnavailable):
		writeServiceError(w, r, err)
	default:
		observability.LoggerFrom(r.Context(), h.logger).Error("lookup failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Internal error")
	}
}

type locationsResponse struct {
	Locations []registry.Location `json:"locations"`
}

// GetLocations handles GET /locations.
func (h *Handler) GetLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, locationsResponse{Locations: h.weatherService.Registry().All()})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, statusCode := "healthy", http.StatusOK
	if h.shuttingDown.Load() {
		status, statusCode = "shutting-down", http.StatusServiceUnavailable
	}

	checks := map[string]interface{}{
		"locations": h.weatherService.Registry().Len(),
	}
	resp := map[string]interface{}{
		"status":    status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil {
		if h.healthConfig.CacheEntries != nil {
			checks["cacheEntries"] = h.healthConfig.CacheEntries()
		}
		if !h.healthConfig.StartTime.IsZero() {
			resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
		}
	}
	writeJSON(w, statusCode, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError writes 503 for upstream failures. The failure kind was already
// logged by the service; the client only learns to try again later.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Failed to fetch weather data. Please try again later.")
	observability.LoggerFrom(r.Context(), nil).Debug("upstream error", zap.Error(err))
}
