package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-dashboard/internal/cache"
	"github.com/kjstillabower/city-weather-dashboard/internal/models"
	"github.com/kjstillabower/city-weather-dashboard/internal/observability"
)

// ErrInFlight is returned when a refresh is requested while another is running.
var ErrInFlight = errors.New("roster refresh already in progress")

// ErrRefreshPanicked wraps a panic recovered during a refresh.
var ErrRefreshPanicked = errors.New("roster refresh panicked")

// Fetcher fetches current conditions for one city. client.WeatherClient satisfies it.
type Fetcher interface {
	Current(ctx context.Context, locator string) (*models.CurrentResponse, error)
}

// Result summarizes one refresh.
type Result struct {
	Batches int
	Loaded  int
	Failed  int
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithOnBatch sets the hook invoked after every batch settles, typically a table re-render.
func WithOnBatch(fn func(ctx context.Context)) Option {
	return func(l *Loader) { l.onBatch = fn }
}

// WithOnError sets the hook invoked when a refresh fails as a whole.
func WithOnError(fn func(err error)) Option {
	return func(l *Loader) { l.onError = fn }
}

// WithSleep replaces the inter-batch wait. Used by tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loader) { l.sleep = fn }
}

// Loader refreshes a fixed roster of cities into a CityCache in batches.
// Cities within a batch are fetched concurrently; batches run one after another
// with a fixed delay between them. At most one refresh runs at a time.
type Loader struct {
	fetcher   Fetcher
	cache     cache.CityCache
	roster    []string
	batchSize int
	delay     time.Duration

	logger  *zap.Logger
	onBatch func(ctx context.Context)
	onError func(err error)
	sleep   func(ctx context.Context, d time.Duration) error

	inFlight atomic.Bool
}

// New creates a Loader for roster. batchSize below 1 is treated as 1.
func New(fetcher Fetcher, c cache.CityCache, roster []string, batchSize int, delay time.Duration, opts ...Option) *Loader {
	l := &Loader{
		fetcher:   fetcher,
		cache:     c,
		roster:    append([]string(nil), roster...),
		batchSize: max(batchSize, 1),
		delay:     delay,
		logger:    zap.NewNop(),
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Roster returns a copy of the configured cities.
func (l *Loader) Roster() []string {
	return append([]string(nil), l.roster...)
}

// InFlight reports whether a refresh is running.
func (l *Loader) InFlight() bool {
	return l.inFlight.Load()
}

// Refresh loads every roster city, batch by batch. Individual city failures are logged
// and leave that city's previous record untouched; they are never returned.
// Returns ErrInFlight without doing anything if a refresh is already running.
func (l *Loader) Refresh(ctx context.Context) (Result, error) {
	if !l.inFlight.CompareAndSwap(false, true) {
		observability.RosterRefreshesTotal.WithLabelValues("skipped").Inc()
		return Result{}, ErrInFlight
	}
	defer l.inFlight.Store(false)
	return l.run(ctx, false)
}

// RefreshAll clears the cache and then refreshes. When a refresh is already running
// it returns ErrInFlight and the cache is left as is.
func (l *Loader) RefreshAll(ctx context.Context) (Result, error) {
	if !l.inFlight.CompareAndSwap(false, true) {
		observability.RosterRefreshesTotal.WithLabelValues("skipped").Inc()
		return Result{}, ErrInFlight
	}
	defer l.inFlight.Store(false)
	return l.run(ctx, true)
}

// StartRefreshAll claims the in-flight flag and runs RefreshAll in a new goroutine.
// A running refresh is reported synchronously as ErrInFlight. Otherwise the returned
// channel receives the outcome once, after the flag has been released.
func (l *Loader) StartRefreshAll(ctx context.Context) (<-chan error, error) {
	if !l.inFlight.CompareAndSwap(false, true) {
		observability.RosterRefreshesTotal.WithLabelValues("skipped").Inc()
		return nil, ErrInFlight
	}
	done := make(chan error, 1)
	go func() {
		_, err := l.run(ctx, true)
		l.inFlight.Store(false)
		done <- err
	}()
	return done, nil
}

func (l *Loader) run(ctx context.Context, clearFirst bool) (res Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRefreshPanicked, r)
		}
		duration := time.Since(start)
		observability.RosterRefreshDuration.Observe(duration.Seconds())
		switch {
		case err == nil:
			observability.RosterRefreshesTotal.WithLabelValues("completed").Inc()
			l.logger.Info("roster refresh complete",
				zap.Int("batches", res.Batches),
				zap.Int("loaded", res.Loaded),
				zap.Int("failed", res.Failed),
				zap.Duration("duration", duration))
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			observability.RosterRefreshesTotal.WithLabelValues("cancelled").Inc()
			l.logger.Info("roster refresh cancelled", zap.Int("batches", res.Batches), zap.Error(err))
		default:
			observability.RosterRefreshesTotal.WithLabelValues("failed").Inc()
			l.logger.Error("roster refresh failed", zap.Error(err))
			if l.onError != nil {
				l.onError(err)
			}
		}
	}()

	if clearFirst {
		if err := l.cache.Clear(ctx); err != nil {
			return res, fmt.Errorf("clear city cache: %w", err)
		}
	}

	groups := Partition(l.roster, l.batchSize)
	l.logger.Info("roster refresh started", zap.Int("cities", len(l.roster)), zap.Int("batches", len(groups)))
	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		loaded, failed := l.loadBatch(ctx, group)
		res.Batches++
		res.Loaded += loaded
		res.Failed += failed
		observability.RosterBatchesTotal.Inc()

		if l.onBatch != nil {
			l.onBatch(ctx)
		}
		if i < len(groups)-1 {
			if err := l.sleep(ctx, l.delay); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// loadBatch fetches every city in group concurrently and waits for all of them.
func (l *Loader) loadBatch(ctx context.Context, group []string) (loaded, failed int) {
	var wg sync.WaitGroup
	okCh := make(chan bool, len(group))
	for _, city := range group {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := l.loadCity(ctx, city)
			observability.RecordCityFetch(city, ok)
			okCh <- ok
		}()
	}
	wg.Wait()
	close(okCh)
	for ok := range okCh {
		if ok {
			loaded++
		} else {
			failed++
		}
	}
	return loaded, failed
}

func (l *Loader) loadCity(ctx context.Context, city string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("city fetch panicked", zap.String("city", city), zap.Any("panic", r))
			ok = false
		}
	}()
	payload, err := l.fetcher.Current(ctx, city)
	if err != nil {
		l.logger.Warn("city fetch failed", zap.String("city", city), zap.Error(err))
		return false
	}
	if !payload.Valid() {
		l.logger.Warn("city fetch returned incomplete payload", zap.String("city", city))
		return false
	}
	if err := l.cache.Set(ctx, city, payload); err != nil {
		l.logger.Warn("city cache write failed", zap.String("city", city), zap.Error(err))
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
