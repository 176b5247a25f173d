package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-dashboard/internal/cache"
	"github.com/kjstillabower/city-weather-dashboard/internal/client"
	"github.com/kjstillabower/city-weather-dashboard/internal/dashboard"
	"github.com/kjstillabower/city-weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/city-weather-dashboard/internal/loader"
	"github.com/kjstillabower/city-weather-dashboard/internal/surface"
	"github.com/kjstillabower/city-weather-dashboard/internal/table"
	"github.com/kjstillabower/city-weather-dashboard/internal/traffic"
	"github.com/kjstillabower/city-weather-dashboard/internal/validation"
)

// Dashboard is the application context the handlers drive. *dashboard.App implements it.
type Dashboard interface {
	Dispatch(ctx context.Context, intent dashboard.Intent) error
	Suggest(ctx context.Context, text string) surface.Suggestions
	Status() dashboard.Status
	RefreshAllAsync() error
}

// StateSource returns the rendered dashboard. *surface.Snapshot implements it.
type StateSource interface {
	State() surface.State
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// Overloaded is reported when inbound requests in OverloadWindow exceed
	// OverloadThresholdPct of what RateLimitRPS admits over that window.
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	// CachePing, when set, is called to check cache reachability.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	app          Dashboard
	state        StateSource
	cache        cache.CityCache
	tracker      *traffic.Tracker
	lifecycle    *lifecycle.State
	healthConfig *HealthConfig
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. tracker and healthConfig may be nil.
func NewHandler(
	app Dashboard,
	state StateSource,
	c cache.CityCache,
	tracker *traffic.Tracker,
	lc *lifecycle.State,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if lc == nil {
		lc = &lifecycle.State{}
	}
	return &Handler{
		app:          app,
		state:        state,
		cache:        c,
		tracker:      tracker,
		lifecycle:    lc,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// dashboardResponse is the full dashboard as served to clients.
type dashboardResponse struct {
	Status dashboard.Status `json:"status"`
	surface.State
}

func (h *Handler) snapshot() dashboardResponse {
	return dashboardResponse{Status: h.app.Status(), State: h.state.State()}
}

// GetDashboard handles GET /dashboard.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// GetCities handles GET /cities?filter=&sort=&dir=. It renders the table from the cache
// without changing the dashboard's own filter or sort. Omitted parameters fall back to
// the dashboard's current values.
func (h *Handler) GetCities(w http.ResponseWriter, r *http.Request) {
	status := h.app.Status()
	q := r.URL.Query()

	filter := status.Filter
	if q.Has("filter") {
		filter = q.Get("filter")
	}
	spec := status.Sort
	if q.Has("sort") {
		col, err := table.ParseColumn(q.Get("sort"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_SORT", err.Error())
			return
		}
		dir, err := table.ParseDirection(q.Get("dir"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_SORT", err.Error())
			return
		}
		spec = table.SortSpec{Column: col, Direction: dir}
	}

	entries, err := h.cache.Entries(r.Context())
	if err != nil {
		LoggerFrom(r.Context(), h.logger).Error("read city cache", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", "Failed to load weather data. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, table.Render(entries, filter, spec).Highlight(status.CurrentCity))
}

// PostRefreshCities handles POST /cities/refresh. The refresh runs in the background.
func (h *Handler) PostRefreshCities(w http.ResponseWriter, r *http.Request) {
	if err := h.app.RefreshAllAsync(); err != nil {
		if errors.Is(err, loader.ErrInFlight) {
			writeError(w, r, http.StatusConflict, "REFRESH_IN_PROGRESS", "A roster refresh is already running")
			return
		}
		writeDispatchError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

// PostSearch handles POST /search with body {"query": "..."}.
func (h *Handler) PostSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	h.dispatch(w, r, dashboard.Search{Query: body.Query})
}

// PostRefreshCurrent handles POST /refresh, reloading the current city.
func (h *Handler) PostRefreshCurrent(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, dashboard.RefreshCurrent{})
}

// GetSuggestions handles GET /suggestions?q=.
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Suggest(r.Context(), r.URL.Query().Get("q")))
}

// PostSelectSuggestion handles POST /suggestions/{index}.
func (h *Handler) PostSelectSuggestion(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INDEX", "suggestion index must be an integer")
		return
	}
	h.dispatch(w, r, dashboard.SelectSuggestion{Index: index})
}

// PostSort handles POST /sort/{column}, a header click.
func (h *Handler) PostSort(w http.ResponseWriter, r *http.Request) {
	col, err := table.ParseColumn(mux.Vars(r)["column"])
	if err != nil || col == table.ColumnNone {
		writeError(w, r, http.StatusBadRequest, "INVALID_SORT", "sort column must be city, temp or humidity")
		return
	}
	h.dispatch(w, r, dashboard.ToggleSort{Column: col})
}

// PutFilter handles PUT /filter with body {"text": "..."}.
func (h *Handler) PutFilter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	h.dispatch(w, r, dashboard.FilterChanged{Text: body.Text})
}

// PostLocate handles POST /locate with body {"lat": .., "lon": ..} or {"error": "..."}.
func (h *Handler) PostLocate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lat   *float64 `json:"lat"`
		Lon   *float64 `json:"lon"`
		Error string   `json:"error"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	intent := dashboard.Locate{Err: body.Error}
	if intent.Err == "" {
		if body.Lat == nil || body.Lon == nil {
			intent.Err = "Access denied"
		} else {
			intent.Lat, intent.Lon = *body.Lat, *body.Lon
		}
	}
	h.dispatch(w, r, intent)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, intent dashboard.Intent) {
	if err := h.app.Dispatch(r.Context(), intent); err != nil {
		writeDispatchError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	cities := -1
	if n, err := h.cache.Len(r.Context()); err == nil {
		cities = n
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":         result.status,
		"service":        "city-weather-dashboard",
		"version":        "dev",
		"checks":         checks,
		"rosterInFlight": h.app.Status().RosterInFlight,
		"cachedCities":   cities,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if h.lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if hc := h.healthConfig; hc != nil && hc.OverloadWindow > 0 && hc.OverloadThresholdPct > 0 && hc.RateLimitRPS > 0 {
		threshold := float64(hc.RateLimitRPS) * hc.OverloadWindow.Seconds() * float64(hc.OverloadThresholdPct) / 100
		if float64(h.tracker.RequestCount(hc.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		failures, total := h.tracker.UpstreamErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(failures) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return false
	}
	return true
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": CorrelationID(r.Context()),
		},
	})
}

// writeDispatchError maps dashboard and upstream errors to HTTP responses.
func writeDispatchError(w http.ResponseWriter, r *http.Request, fallback *zap.Logger, err error) {
	LoggerFrom(r.Context(), fallback).Debug("dispatch error", zap.Error(err))

	var geoErr *dashboard.GeolocationError
	switch {
	case errors.As(err, &geoErr):
		writeError(w, r, http.StatusBadRequest, "GEOLOCATION_ERROR", geoErr.Error())
	case errors.Is(err, validation.ErrLocatorEmpty),
		errors.Is(err, validation.ErrLocatorTooLong),
		errors.Is(err, validation.ErrLocatorInvalidChars),
		errors.Is(err, validation.ErrCoordinatesOutOfRange):
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
	case errors.Is(err, dashboard.ErrNoSuggestion):
		writeError(w, r, http.StatusNotFound, "SUGGESTION_NOT_FOUND", "no suggestion at that position")
	case errors.Is(err, client.ErrLocationNotFound):
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", "Failed to load weather for that location.")
	case errors.Is(err, loader.ErrInFlight):
		writeError(w, r, http.StatusConflict, "REFRESH_IN_PROGRESS", "A roster refresh is already running")
	case errors.Is(err, context.DeadlineExceeded), client.IsTimeout(err):
		writeError(w, r, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Weather provider did not respond in time")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
}
