package loader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/city-weather-dashboard/internal/cache"
	"github.com/kjstillabower/city-weather-dashboard/internal/models"
)

type fakeFetcher struct {
	mu     sync.Mutex
	temps  map[string]float64
	errs   map[string]error
	calls  []string
	block  chan struct{}
	called chan string
	// gates holds individual cities until their channel is closed.
	gates map[string]chan struct{}
}

func (f *fakeFetcher) Current(ctx context.Context, locator string) (*models.CurrentResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, locator)
	f.mu.Unlock()
	if f.called != nil {
		f.called <- locator
	}
	if f.block != nil {
		<-f.block
	}
	if g := f.gates[locator]; g != nil {
		<-g
	}
	if err := f.errs[locator]; err != nil {
		return nil, err
	}
	return &models.CurrentResponse{
		Location: &models.Location{Name: locator},
		Current:  &models.Current{TempC: f.temps[locator]},
	}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func temp(t *testing.T, c cache.CityCache, city string) float64 {
	t.Helper()
	rec, ok, err := c.Get(context.Background(), city)
	if err != nil || !ok {
		t.Fatalf("Get(%s) = ok %v err %v", city, ok, err)
	}
	return rec.Payload.Current.TempC
}

// TestLoader_Refresh_LoadsAllBatches verifies every roster city is fetched and cached
// and the render hook runs once per batch.
func TestLoader_Refresh_LoadsAllBatches(t *testing.T) {
	f := &fakeFetcher{temps: map[string]float64{"A": 30, "B": 15, "C": 25, "D": 10, "E": 5}}
	c := cache.NewInMemoryCache()
	renders := 0
	l := New(f, c, []string{"A", "B", "C", "D", "E"}, 2, 0,
		WithSleep(noSleep),
		WithOnBatch(func(ctx context.Context) { renders++ }))

	res, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res != (Result{Batches: 3, Loaded: 5}) {
		t.Errorf("Refresh() = %+v, want 3 batches 5 loaded", res)
	}
	if renders != 3 {
		t.Errorf("OnBatch calls = %d, want 3", renders)
	}
	if n, _ := c.Len(context.Background()); n != 5 {
		t.Errorf("cache Len = %d, want 5", n)
	}
	if l.InFlight() {
		t.Error("InFlight() = true after Refresh returned")
	}
}

// TestLoader_Refresh_FailureKeepsPreviousEntry verifies a failed city keeps its old
// record, siblings in the same batch still load, and the failure is logged not returned.
func TestLoader_Refresh_FailureKeepsPreviousEntry(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := cache.NewInMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "B", &models.CurrentResponse{Location: &models.Location{Name: "B"}, Current: &models.Current{TempC: 11}})

	f := &fakeFetcher{
		temps: map[string]float64{"A": 30, "B": 99, "C": 25},
		errs:  map[string]error{"B": errors.New("HTTP 500")},
	}
	l := New(f, c, []string{"A", "B", "C"}, 3, 0, WithSleep(noSleep), WithLogger(zap.New(core)))

	res, err := l.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v, want nil for per-city failure", err)
	}
	if res.Loaded != 2 || res.Failed != 1 {
		t.Errorf("Refresh() = %+v, want 2 loaded 1 failed", res)
	}
	if got := temp(t, c, "B"); got != 11 {
		t.Errorf("B temp = %v, want previous 11", got)
	}
	if got := temp(t, c, "C"); got != 25 {
		t.Errorf("C temp = %v, want 25", got)
	}

	entries := logs.FilterMessage("city fetch failed").All()
	if len(entries) != 1 {
		t.Fatalf("logged failures = %d, want 1", len(entries))
	}
	if city := entries[0].ContextMap()["city"]; city != "B" {
		t.Errorf("logged city = %v, want B", city)
	}
}

// TestLoader_Refresh_InFlightIsNoop verifies a second Refresh or RefreshAll while one is
// running returns ErrInFlight without fetching or clearing anything.
func TestLoader_Refresh_InFlightIsNoop(t *testing.T) {
	f := &fakeFetcher{
		temps:  map[string]float64{"A": 1},
		block:  make(chan struct{}),
		called: make(chan string, 1),
	}
	c := cache.NewInMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "Z", &models.CurrentResponse{Location: &models.Location{Name: "Z"}, Current: &models.Current{}})
	l := New(f, c, []string{"A"}, 5, 0, WithSleep(noSleep))

	done := make(chan error, 1)
	go func() {
		_, err := l.Refresh(ctx)
		done <- err
	}()
	<-f.called

	if !l.InFlight() {
		t.Error("InFlight() = false during refresh")
	}
	if _, err := l.Refresh(ctx); !errors.Is(err, ErrInFlight) {
		t.Errorf("second Refresh() error = %v, want ErrInFlight", err)
	}
	if _, err := l.RefreshAll(ctx); !errors.Is(err, ErrInFlight) {
		t.Errorf("RefreshAll() error = %v, want ErrInFlight", err)
	}
	if _, ok, _ := c.Get(ctx, "Z"); !ok {
		t.Error("RefreshAll while in flight cleared the cache")
	}

	close(f.block)
	if err := <-done; err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	if got := f.callCount(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

// TestLoader_Refresh_DelayOnlyBetweenBatches verifies the delay runs len(groups)-1 times.
func TestLoader_Refresh_DelayOnlyBetweenBatches(t *testing.T) {
	tests := []struct {
		name   string
		roster []string
		size   int
		sleeps int
	}{
		{"single batch", []string{"A", "B"}, 5, 0},
		{"two batches", []string{"A", "B", "C"}, 2, 1},
		{"nine by five", []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"}, 5, 1},
		{"one per batch", []string{"A", "B", "C", "D"}, 1, 3},
		{"empty", nil, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var delays []time.Duration
			l := New(&fakeFetcher{}, cache.NewInMemoryCache(), tt.roster, tt.size, 2*time.Second,
				WithSleep(func(ctx context.Context, d time.Duration) error {
					delays = append(delays, d)
					return nil
				}))
			if _, err := l.Refresh(context.Background()); err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if len(delays) != tt.sleeps {
				t.Errorf("sleeps = %d, want %d", len(delays), tt.sleeps)
			}
			for _, d := range delays {
				if d != 2*time.Second {
					t.Errorf("sleep duration = %v, want 2s", d)
				}
			}
		})
	}
}

// TestLoader_Refresh_PanicClearsFlag verifies a panic is recovered, reported through
// the error hook, and does not leave the in-flight flag set.
func TestLoader_Refresh_PanicClearsFlag(t *testing.T) {
	var reported error
	l := New(&fakeFetcher{}, cache.NewInMemoryCache(), []string{"A"}, 1, 0,
		WithSleep(noSleep),
		WithOnBatch(func(ctx context.Context) { panic("render exploded") }),
		WithOnError(func(err error) { reported = err }))

	_, err := l.Refresh(context.Background())
	if !errors.Is(err, ErrRefreshPanicked) {
		t.Fatalf("Refresh() error = %v, want ErrRefreshPanicked", err)
	}
	if !errors.Is(reported, ErrRefreshPanicked) {
		t.Errorf("OnError got %v, want ErrRefreshPanicked", reported)
	}
	if l.InFlight() {
		t.Error("InFlight() = true after panic")
	}
	if _, err := l.Refresh(context.Background()); !errors.Is(err, ErrRefreshPanicked) {
		t.Errorf("Refresh() after panic error = %v, want another run", err)
	}
}

// TestLoader_RefreshAll_ClearsFirst verifies cities outside the roster are dropped.
func TestLoader_RefreshAll_ClearsFirst(t *testing.T) {
	c := cache.NewInMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "Paris", &models.CurrentResponse{Location: &models.Location{Name: "Paris"}, Current: &models.Current{}})

	l := New(&fakeFetcher{}, c, []string{"A", "B"}, 5, 0, WithSleep(noSleep))
	if _, err := l.RefreshAll(ctx); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "Paris"); ok {
		t.Error("Paris still cached after RefreshAll")
	}
	if n, _ := c.Len(ctx); n != 2 {
		t.Errorf("Len() = %d, want 2", n)
	}
}

// TestLoader_Refresh_CancelStopsBetweenBatches verifies cancellation during the delay
// stops the run without invoking the error hook.
func TestLoader_Refresh_CancelStopsBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errorHook := false
	l := New(&fakeFetcher{}, cache.NewInMemoryCache(), []string{"A", "B"}, 1, time.Hour,
		WithOnBatch(func(context.Context) { cancel() }),
		WithOnError(func(error) { errorHook = true }))

	res, err := l.Refresh(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Refresh() error = %v, want context.Canceled", err)
	}
	if res.Batches != 1 {
		t.Errorf("Batches = %d, want 1", res.Batches)
	}
	if errorHook {
		t.Error("OnError called for cancellation")
	}
}

func receiveCall(t *testing.T, called <-chan string) string {
	t.Helper()
	select {
	case city := <-called:
		return city
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a fetch to start")
		return ""
	}
}

func assertNoCall(t *testing.T, called <-chan string, when string) {
	t.Helper()
	select {
	case city := <-called:
		t.Fatalf("fetch for %s started %s", city, when)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestLoader_Refresh_BatchConcurrency verifies every fetch in a batch starts before any
// of them settles, and the next batch starts only after the last fetch of the previous
// batch has settled.
func TestLoader_Refresh_BatchConcurrency(t *testing.T) {
	gates := map[string]chan struct{}{}
	for _, city := range []string{"A", "B", "C"} {
		gates[city] = make(chan struct{})
	}
	f := &fakeFetcher{called: make(chan string, 6), gates: gates}
	l := New(f, cache.NewInMemoryCache(), []string{"A", "B", "C", "D", "E", "F"}, 3, 0, WithSleep(noSleep))

	done := make(chan Result, 1)
	go func() {
		res, _ := l.Refresh(context.Background())
		done <- res
	}()

	first := map[string]bool{}
	for range 3 {
		first[receiveCall(t, f.called)] = true
	}
	if !first["A"] || !first["B"] || !first["C"] {
		t.Fatalf("first batch calls = %v, want A, B and C", first)
	}
	assertNoCall(t, f.called, "while the whole first batch was blocked")

	close(gates["A"])
	close(gates["B"])
	assertNoCall(t, f.called, "before C settled")

	close(gates["C"])
	second := map[string]bool{}
	for range 3 {
		second[receiveCall(t, f.called)] = true
	}
	if !second["D"] || !second["E"] || !second["F"] {
		t.Errorf("second batch calls = %v, want D, E and F", second)
	}
	if res := <-done; res != (Result{Batches: 2, Loaded: 6}) {
		t.Errorf("Refresh() = %+v, want 2 batches 6 loaded", res)
	}
}

// TestLoader_StartRefreshAll verifies the flag is claimed before it returns, a second
// start reports ErrInFlight, and the outcome arrives after the flag is released.
func TestLoader_StartRefreshAll(t *testing.T) {
	f := &fakeFetcher{block: make(chan struct{}), temps: map[string]float64{"A": 20}}
	c := cache.NewInMemoryCache()
	l := New(f, c, []string{"A"}, 1, 0, WithSleep(noSleep))

	done, err := l.StartRefreshAll(context.Background())
	if err != nil {
		t.Fatalf("StartRefreshAll() error = %v", err)
	}
	if !l.InFlight() {
		t.Error("InFlight() = false right after StartRefreshAll")
	}
	if _, err := l.StartRefreshAll(context.Background()); !errors.Is(err, ErrInFlight) {
		t.Errorf("second StartRefreshAll() error = %v, want ErrInFlight", err)
	}

	close(f.block)
	if err := <-done; err != nil {
		t.Fatalf("refresh outcome = %v", err)
	}
	if l.InFlight() {
		t.Error("InFlight() = true after outcome delivered")
	}
	if got := temp(t, c, "A"); got != 20 {
		t.Errorf("A temp = %v, want 20", got)
	}
}
