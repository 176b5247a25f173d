package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/city-weather-dashboard/internal/traffic"
)

// RouterConfig holds the middleware settings for NewRouter.
type RouterConfig struct {
	// RequestTimeout bounds routes that call WeatherAPI. Zero disables it.
	RequestTimeout time.Duration
	// Limiter rate limits the dashboard routes. Nil disables it.
	Limiter  *rate.Limiter
	Tracker  *traffic.Tracker
	InFlight *InFlightTracker
	Metrics  http.Handler
}

// NewRouter wires the dashboard routes. /health and /metrics skip rate limiting.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware(cfg.InFlight))
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter, cfg.Tracker))
	api.HandleFunc("/dashboard", h.GetDashboard).Methods(http.MethodGet)
	api.HandleFunc("/cities", h.GetCities).Methods(http.MethodGet)
	api.HandleFunc("/cities/refresh", h.PostRefreshCities).Methods(http.MethodPost)
	api.HandleFunc("/sort/{column}", h.PostSort).Methods(http.MethodPost)
	api.HandleFunc("/filter", h.PutFilter).Methods(http.MethodPut)

	upstream := api.NewRoute().Subrouter()
	if cfg.RequestTimeout > 0 {
		upstream.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	upstream.HandleFunc("/search", h.PostSearch).Methods(http.MethodPost)
	upstream.HandleFunc("/refresh", h.PostRefreshCurrent).Methods(http.MethodPost)
	upstream.HandleFunc("/suggestions", h.GetSuggestions).Methods(http.MethodGet)
	upstream.HandleFunc("/suggestions/{index}", h.PostSelectSuggestion).Methods(http.MethodPost)
	upstream.HandleFunc("/locate", h.PostLocate).Methods(http.MethodPost)
	return router
}
