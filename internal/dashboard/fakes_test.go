package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/city-weather-dashboard/internal/cache"
	"github.com/kjstillabower/city-weather-dashboard/internal/client"
	"github.com/kjstillabower/city-weather-dashboard/internal/loader"
	"github.com/kjstillabower/city-weather-dashboard/internal/models"
	"github.com/kjstillabower/city-weather-dashboard/internal/surface"
)

// fakeClient serves canned WeatherAPI responses keyed by locator.
type fakeClient struct {
	mu          sync.Mutex
	current     map[string]*models.CurrentResponse
	forecastErr error
	places      []models.Place
	searchErr   error
	calls       []string
	searches    []string
	// block, when set, holds every Current call until closed.
	block chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{current: map[string]*models.CurrentResponse{}}
}

func (f *fakeClient) add(locator, name, region string, temp float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := 60.0
	f.current[locator] = &models.CurrentResponse{
		Location: &models.Location{Name: name, Region: region, Country: "India", TzID: "Asia/Kolkata"},
		Current: &models.Current{
			TempC:       temp,
			Humidity:    &h,
			Condition:   &models.Condition{Text: "Sunny"},
			AirQuality:  map[string]float64{"us-epa-index": 3},
			LastUpdated: "2025-11-25 14:30",
		},
	}
}

func (f *fakeClient) Current(ctx context.Context, locator string) (*models.CurrentResponse, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, locator)
	if r, ok := f.current[locator]; ok {
		return r, nil
	}
	return nil, &client.NetworkError{Endpoint: client.EndpointCurrent, StatusCode: 400, Err: client.ErrLocationNotFound}
}

func (f *fakeClient) Forecast(ctx context.Context, locator string, days int) (*models.ForecastResponse, error) {
	if f.forecastErr != nil {
		return nil, f.forecastErr
	}
	return &models.ForecastResponse{
		Location: &models.Location{Name: locator, TzID: "Asia/Kolkata"},
		Forecast: &models.Forecast{ForecastDay: []models.ForecastDay{
			{Date: "2025-11-25", Day: models.DayCondition{MaxTempC: 30.4, MinTempC: 19.6, AvgTempC: 24.5, Condition: &models.Condition{Text: "Sunny"}}},
		}},
	}, nil
}

func (f *fakeClient) Search(ctx context.Context, query string) ([]models.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	return f.places, f.searchErr
}

func (f *fakeClient) currentCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) searchCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

var fixedNow = time.Date(2025, 11, 25, 9, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T, fc *fakeClient, cfg Config) (*App, *surface.Snapshot, *cache.InMemoryCache) {
	t.Helper()
	c := cache.NewInMemoryCache()
	app, snap := newTestAppWithCache(t, fc, cfg, c)
	return app, snap, c
}

// newTestAppWithCache builds an App on c. opts are applied after the no-op sleep.
func newTestAppWithCache(t *testing.T, fc *fakeClient, cfg Config, c cache.CityCache, opts ...loader.Option) (*App, *surface.Snapshot) {
	t.Helper()
	snap := surface.NewSnapshot()
	if cfg.DefaultCity == "" {
		cfg.DefaultCity = "Kolkata"
	}
	app := New(cfg, Deps{
		Client: fc,
		Cache:  c,
		Sink:   snap,
		Now:    func() time.Time { return fixedNow },
		LoaderOptions: append([]loader.Option{
			loader.WithSleep(func(context.Context, time.Duration) error { return nil }),
		}, opts...),
	})
	t.Cleanup(func() { _ = app.Stop(context.Background()) })
	return app, snap
}

// clearFailingCache is an in-memory cache whose Clear always fails.
type clearFailingCache struct {
	*cache.InMemoryCache
	err error
}

func (c *clearFailingCache) Clear(ctx context.Context) error { return c.err }
