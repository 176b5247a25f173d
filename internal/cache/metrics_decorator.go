package cache

import (
	"context"

	"github.com/kjstillabower/city-weather-dashboard/internal/models"
	"github.com/kjstillabower/city-weather-dashboard/internal/observability"
)

// MetricsDecorator counts backend errors per operation in cacheErrorsTotal.
type MetricsDecorator struct {
	next    CityCache
	backend string
}

// NewMetricsDecorator wraps next; backend is the metric label (in_memory, memcached, redis).
func NewMetricsDecorator(next CityCache, backend string) *MetricsDecorator {
	return &MetricsDecorator{next: next, backend: backend}
}

func (m *MetricsDecorator) observe(op string, err error) error {
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(m.backend, op).Inc()
	}
	return err
}

func (m *MetricsDecorator) Set(ctx context.Context, city string, payload *models.CurrentResponse) error {
	return m.observe("set", m.next.Set(ctx, city, payload))
}

func (m *MetricsDecorator) Get(ctx context.Context, city string) (models.CityRecord, bool, error) {
	rec, ok, err := m.next.Get(ctx, city)
	return rec, ok, m.observe("get", err)
}

func (m *MetricsDecorator) Clear(ctx context.Context) error {
	return m.observe("clear", m.next.Clear(ctx))
}

func (m *MetricsDecorator) Entries(ctx context.Context) ([]models.CityRecord, error) {
	entries, err := m.next.Entries(ctx)
	return entries, m.observe("entries", err)
}

func (m *MetricsDecorator) Len(ctx context.Context) (int, error) {
	n, err := m.next.Len(ctx)
	return n, m.observe("len", err)
}
