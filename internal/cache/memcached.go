package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/city-weather-dashboard/internal/models"
)

// ErrIndexContention is returned when the city index could not be updated after
// repeated compare-and-swap conflicts.
var ErrIndexContention = errors.New("city index contention")

const (
	memcachedRecordPrefix = "dashboard:city:"
	memcachedIndexKey     = "dashboard:cities"
)

// MemcachedCache implements CityCache on memcached. Each record is a JSON item and
// a separate index item keeps the city order. Items never expire; Clear removes them.
// Index updates use compare-and-swap so concurrent writers never drop each other's cities.
type MemcachedCache struct {
	client *memcache.Client
	now    func() time.Time
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, opts ...Option) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	o := buildOptions(opts)
	return &MemcachedCache{client: client, now: o.now}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// recordKey escapes the city name; memcached keys may not contain whitespace.
func recordKey(city string) string {
	return memcachedRecordPrefix + url.QueryEscape(city)
}

// Set implements CityCache.Set.
func (c *MemcachedCache) Set(ctx context.Context, city string, payload *models.CurrentResponse) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(models.CityRecord{City: city, Payload: payload, FetchedAt: c.now()})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := c.client.Set(&memcache.Item{Key: recordKey(city), Value: raw}); err != nil {
		return fmt.Errorf("memcached set %s: %w", city, err)
	}

	return c.addToIndex(city)
}

// maxIndexAttempts bounds the compare-and-swap loop on the index item.
const maxIndexAttempts = 50

// addToIndex appends city to the index unless present. A lost race (ErrCASConflict,
// ErrNotStored, or the item vanishing under Clear) re-reads the index and tries again.
func (c *MemcachedCache) addToIndex(city string) error {
	for range maxIndexAttempts {
		item, err := c.client.Get(memcachedIndexKey)
		if errors.Is(err, memcache.ErrCacheMiss) {
			raw, err := json.Marshal([]string{city})
			if err != nil {
				return fmt.Errorf("encode index: %w", err)
			}
			err = c.client.Add(&memcache.Item{Key: memcachedIndexKey, Value: raw})
			if errors.Is(err, memcache.ErrNotStored) {
				continue
			}
			if err != nil {
				return fmt.Errorf("memcached add index: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("memcached get index: %w", err)
		}

		var index []string
		if err := json.Unmarshal(item.Value, &index); err != nil {
			return fmt.Errorf("decode index: %w", err)
		}
		if slices.Contains(index, city) {
			return nil
		}
		raw, err := json.Marshal(append(index, city))
		if err != nil {
			return fmt.Errorf("encode index: %w", err)
		}
		item.Value = raw
		err = c.client.CompareAndSwap(item)
		if errors.Is(err, memcache.ErrCASConflict) || errors.Is(err, memcache.ErrNotStored) || errors.Is(err, memcache.ErrCacheMiss) {
			continue
		}
		if err != nil {
			return fmt.Errorf("memcached cas index: %w", err)
		}
		return nil
	}
	return fmt.Errorf("memcached index update for %s: %w", city, ErrIndexContention)
}

// Get implements CityCache.Get. Returns false, nil on cache miss.
func (c *MemcachedCache) Get(ctx context.Context, city string) (models.CityRecord, bool, error) {
	if ctx.Err() != nil {
		return models.CityRecord{}, false, ctx.Err()
	}
	item, err := c.client.Get(recordKey(city))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.CityRecord{}, false, nil
		}
		return models.CityRecord{}, false, fmt.Errorf("memcached get %s: %w", city, err)
	}
	var rec models.CityRecord
	if err := json.Unmarshal(item.Value, &rec); err != nil {
		return models.CityRecord{}, false, fmt.Errorf("decode record %s: %w", city, err)
	}
	return rec, true, nil
}

// Clear implements CityCache.Clear.
func (c *MemcachedCache) Clear(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	index, err := c.index()
	if err != nil {
		return err
	}
	for _, city := range index {
		if err := c.client.Delete(recordKey(city)); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			return fmt.Errorf("memcached delete %s: %w", city, err)
		}
	}
	if err := c.client.Delete(memcachedIndexKey); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("memcached delete index: %w", err)
	}
	return nil
}

// Entries implements CityCache.Entries. Records evicted by memcached are skipped.
func (c *MemcachedCache) Entries(ctx context.Context) ([]models.CityRecord, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	index, err := c.index()
	if err != nil {
		return nil, err
	}
	if len(index) == 0 {
		return nil, nil
	}
	keys := make([]string, len(index))
	for i, city := range index {
		keys[i] = recordKey(city)
	}
	items, err := c.client.GetMulti(keys)
	if err != nil {
		return nil, fmt.Errorf("memcached get multi: %w", err)
	}
	out := make([]models.CityRecord, 0, len(index))
	for _, key := range keys {
		item, ok := items[key]
		if !ok {
			continue
		}
		var rec models.CityRecord
		if err := json.Unmarshal(item.Value, &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len implements CityCache.Len.
func (c *MemcachedCache) Len(ctx context.Context) (int, error) {
	entries, err := c.Entries(ctx)
	return len(entries), err
}

func (c *MemcachedCache) index() ([]string, error) {
	item, err := c.client.Get(memcachedIndexKey)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("memcached get index: %w", err)
	}
	var index []string
	if err := json.Unmarshal(item.Value, &index); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return index, nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
