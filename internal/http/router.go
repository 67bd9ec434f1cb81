package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/pandora-weather-scanner/internal/observability"
)

// RouterConfig carries the optional pieces of the route table.
type RouterConfig struct {
	Limiter   *rate.Limiter    // applied to lookups only; nil disables
	InFlight  *InFlightTracker // nil disables tracking
	StaticDir string           // served under /static/ when non-empty
}

// NewRouter wires handlers and middleware into a mux.Router.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	if cfg.InFlight != nil {
		router.Use(cfg.InFlight.Middleware)
	}
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/locations", h.GetLocations).Methods(http.MethodGet)

	weatherRouter := router.PathPrefix("/get_weather").Subrouter()
	weatherRouter.Use(RateLimitMiddleware(cfg.Limiter))
	weatherRouter.HandleFunc("/{location}", h.GetWeather).Methods(http.MethodGet)

	if cfg.StaticDir != "" {
		router.PathPrefix("/static/").Handler(
			http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))),
		).Methods(http.MethodGet)
	}
	return router
}
