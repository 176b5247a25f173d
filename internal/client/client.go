package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/city-weather-dashboard/internal/models"
	"github.com/kjstillabower/city-weather-dashboard/internal/observability"
	"github.com/kjstillabower/city-weather-dashboard/internal/traffic"
)

const (
	EndpointCurrent  = "current"
	EndpointForecast = "forecast"
	EndpointSearch   = "search"
)

// weatherAPILocationNotFound is the WeatherAPI error code for "No matching location found."
const weatherAPILocationNotFound = 1006

// WeatherClient performs the three read-only WeatherAPI calls. A locator is a place
// name or a "lat,lon" pair. Failures are *NetworkError or *DecodeError; nothing is retried.
type WeatherClient interface {
	Current(ctx context.Context, locator string) (*models.CurrentResponse, error)
	Forecast(ctx context.Context, locator string, days int) (*models.ForecastResponse, error)
	Search(ctx context.Context, query string) ([]models.Place, error)
}

// WeatherAPIClient talks to api.weatherapi.com/v1.
type WeatherAPIClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
	tracker *traffic.Tracker
}

// NewWeatherAPIClient validates the key and returns a client. tracker may be nil.
func NewWeatherAPIClient(apiKey, baseURL string, timeout time.Duration, tracker *traffic.Tracker) (*WeatherAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	return &WeatherAPIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		tracker: tracker,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Current fetches current conditions with air quality.
func (c *WeatherAPIClient) Current(ctx context.Context, locator string) (*models.CurrentResponse, error) {
	params := url.Values{}
	params.Set("q", locator)
	params.Set("aqi", "yes")

	var out models.CurrentResponse
	if err := c.get(ctx, EndpointCurrent, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Forecast fetches a days-long forecast without air quality.
func (c *WeatherAPIClient) Forecast(ctx context.Context, locator string, days int) (*models.ForecastResponse, error) {
	params := url.Values{}
	params.Set("q", locator)
	params.Set("days", strconv.Itoa(days))
	params.Set("aqi", "no")

	var out models.ForecastResponse
	if err := c.get(ctx, EndpointForecast, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search returns places matching the query text.
func (c *WeatherAPIClient) Search(ctx context.Context, query string) ([]models.Place, error) {
	params := url.Values{}
	params.Set("q", query)

	var out []models.Place
	if err := c.get(ctx, EndpointSearch, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WeatherAPIClient) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	err := c.do(ctx, endpoint, params, out)
	if err != nil {
		c.tracker.Record(traffic.UpstreamFailed)
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
		return err
	}
	c.tracker.Record(traffic.UpstreamOK)
	return nil
}

func (c *WeatherAPIClient) do(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, params)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return &NetworkError{Endpoint: endpoint, Err: fmt.Errorf("build request: %w", err)}
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(endpoint, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

func (c *WeatherAPIClient) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/" + endpoint + ".json")
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params.Set("key", c.apiKey)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// apiErrorBody is the WeatherAPI error envelope: {"error":{"code":1006,"message":"..."}}.
type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func statusError(endpoint string, statusCode int, body []byte) error {
	var apiErr apiErrorBody
	_ = json.Unmarshal(body, &apiErr)

	ne := &NetworkError{Endpoint: endpoint, StatusCode: statusCode, Message: apiErr.Error.Message}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		ne.Err = ErrInvalidAPIKey
	case statusCode == http.StatusTooManyRequests:
		ne.Err = ErrRateLimited
	case statusCode == http.StatusNotFound || apiErr.Error.Code == weatherAPILocationNotFound:
		ne.Err = ErrLocationNotFound
	}
	return ne
}

type correlationIDKey struct{}

// WithCorrelationID stores a correlation ID that outbound requests forward.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func extractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// IsTimeout reports whether err came from a deadline or cancellation.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
