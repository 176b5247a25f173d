package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/city-weather-dashboard/internal/models"
)

// CityCache maps a city name to its last fetched payload. It holds at most one
// record per city; Set replaces the record wholesale. Entries returns snapshots
// in first-insertion order so that a stable sort downstream is deterministic.
type CityCache interface {
	Set(ctx context.Context, city string, payload *models.CurrentResponse) error
	Get(ctx context.Context, city string) (models.CityRecord, bool, error)
	Clear(ctx context.Context) error
	Entries(ctx context.Context) ([]models.CityRecord, error)
	Len(ctx context.Context) (int, error)
}

// Option configures a cache backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// InMemoryCache implements CityCache with a map plus an insertion-order slice.
// Safe for concurrent use.
type InMemoryCache struct {
	mu      sync.RWMutex
	records map[string]models.CityRecord
	order   []string
	now     func() time.Time
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache(opts ...Option) *InMemoryCache {
	o := buildOptions(opts)
	return &InMemoryCache{
		records: make(map[string]models.CityRecord),
		now:     o.now,
	}
}

// Set creates or overwrites the record for city, stamped with the current time.
func (c *InMemoryCache) Set(ctx context.Context, city string, payload *models.CurrentResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[city]; !ok {
		c.order = append(c.order, city)
	}
	c.records[city] = models.CityRecord{City: city, Payload: payload, FetchedAt: c.now()}
	return nil
}

// Get returns the record for city if present.
func (c *InMemoryCache) Get(ctx context.Context, city string) (models.CityRecord, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[city]
	return rec, ok, nil
}

// Clear empties the cache.
func (c *InMemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]models.CityRecord)
	c.order = nil
	return nil
}

// Entries returns a snapshot of all records in first-insertion order.
func (c *InMemoryCache) Entries(ctx context.Context) ([]models.CityRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.CityRecord, 0, len(c.order))
	for _, city := range c.order {
		out = append(out, c.records[city])
	}
	return out, nil
}

// Len returns the number of records.
func (c *InMemoryCache) Len(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}
