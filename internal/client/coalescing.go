package client

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/city-weather-dashboard/internal/models"
)

// call is one upstream request that several callers may wait on.
type call[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// coalescer shares a single in-flight fn per key among concurrent callers.
type coalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*call[T]
	timeout  time.Duration
}

func newCoalescer[T any](timeout time.Duration) *coalescer[T] {
	return &coalescer[T]{inFlight: make(map[string]*call[T]), timeout: timeout}
}

// do runs fn for key unless a request for key is already in flight, in which case it
// waits for that result. fn runs detached from the caller's cancellation so one caller
// giving up does not fail the others; each caller still stops waiting on its own ctx.
func (c *coalescer[T]) do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, bool, error) {
	c.mu.Lock()
	cl, shared := c.inFlight[key]
	if !shared {
		cl = &call[T]{done: make(chan struct{})}
		c.inFlight[key] = cl
		go func() {
			cl.result, cl.err = fn(context.WithoutCancel(ctx))
			c.mu.Lock()
			delete(c.inFlight, key)
			c.mu.Unlock()
			close(cl.done)
		}()
	}
	c.mu.Unlock()

	waitCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	select {
	case <-cl.done:
		return cl.result, shared, cl.err
	case <-waitCtx.Done():
		var zero T
		return zero, shared, waitCtx.Err()
	}
}

// Coalescing wraps a WeatherClient so concurrent identical lookups share one upstream
// call. The roster refresh, suggestion enrichment and auto refresh often ask for the
// same city at once. Results are shared between callers and must not be mutated.
type Coalescing struct {
	next     WeatherClient
	current  *coalescer[*models.CurrentResponse]
	forecast *coalescer[*models.ForecastResponse]
	search   *coalescer[[]models.Place]
	onShared func(endpoint string)
}

// CoalescingOption configures a Coalescing client.
type CoalescingOption func(*Coalescing)

// WithOnShared registers a hook called whenever a caller joins an in-flight request.
func WithOnShared(fn func(endpoint string)) CoalescingOption {
	return func(c *Coalescing) { c.onShared = fn }
}

// NewCoalescing wraps next. timeout bounds how long any caller waits; zero waits on ctx only.
func NewCoalescing(next WeatherClient, timeout time.Duration, opts ...CoalescingOption) *Coalescing {
	c := &Coalescing{
		next:     next,
		current:  newCoalescer[*models.CurrentResponse](timeout),
		forecast: newCoalescer[*models.ForecastResponse](timeout),
		search:   newCoalescer[[]models.Place](timeout),
		onShared: func(string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func coalesceKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (c *Coalescing) Current(ctx context.Context, locator string) (*models.CurrentResponse, error) {
	res, shared, err := c.current.do(ctx, coalesceKey(locator), func(ctx context.Context) (*models.CurrentResponse, error) {
		return c.next.Current(ctx, locator)
	})
	if shared {
		c.onShared(EndpointCurrent)
	}
	return res, err
}

func (c *Coalescing) Forecast(ctx context.Context, locator string, days int) (*models.ForecastResponse, error) {
	key := coalesceKey(locator) + "|" + strconv.Itoa(days)
	res, shared, err := c.forecast.do(ctx, key, func(ctx context.Context) (*models.ForecastResponse, error) {
		return c.next.Forecast(ctx, locator, days)
	})
	if shared {
		c.onShared(EndpointForecast)
	}
	return res, err
}

func (c *Coalescing) Search(ctx context.Context, query string) ([]models.Place, error) {
	res, shared, err := c.search.do(ctx, coalesceKey(query), func(ctx context.Context) ([]models.Place, error) {
		return c.next.Search(ctx, query)
	})
	if shared {
		c.onShared(EndpointSearch)
	}
	return slices.Clone(res), err
}
