// Package dashboard is the application context: it owns the UI state, turns
// user intents into WeatherAPI calls and renders the results into a surface.Sink.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-dashboard/internal/cache"
	"github.com/kjstillabower/city-weather-dashboard/internal/client"
	"github.com/kjstillabower/city-weather-dashboard/internal/debounce"
	"github.com/kjstillabower/city-weather-dashboard/internal/loader"
	"github.com/kjstillabower/city-weather-dashboard/internal/models"
	"github.com/kjstillabower/city-weather-dashboard/internal/observability"
	"github.com/kjstillabower/city-weather-dashboard/internal/surface"
	"github.com/kjstillabower/city-weather-dashboard/internal/table"
)

// Config holds the dashboard's behavioural settings.
type Config struct {
	DefaultCity      string
	Roster           []string
	BatchSize        int
	BatchDelay       time.Duration
	ForecastDays     int
	SuggestionLimit  int
	SuggestDebounce  time.Duration
	AutoRefresh      time.Duration
	RosterSchedule   string
	MaxLocatorLength int
}

// Deps are the collaborators an App is built from.
type Deps struct {
	Client client.WeatherClient
	Cache  cache.CityCache
	Sink   surface.Sink
	Logger *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// LoaderOptions are appended after the App's own render hooks.
	LoaderOptions []loader.Option
}

// suggestion is a search match plus the current conditions fetched for it, if any.
type suggestion struct {
	place   models.Place
	payload *models.CurrentResponse
}

type suggestRequest struct {
	text string
	gen  uint64
}

// App is the dashboard's single application context. All mutable UI state lives here.
type App struct {
	cfg    Config
	client client.WeatherClient
	cache  cache.CityCache
	sink   surface.Sink
	loader *loader.Loader
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	currentCity string
	receivedAt  time.Time
	panel       surface.Panel
	filter      string
	sort        table.SortSpec
	suggestions []suggestion
	suggestGen  uint64

	debouncer *debounce.Debouncer[suggestRequest]
	cron      *cron.Cron

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds an App. Start must be called before scheduled work runs.
func New(cfg Config, deps Deps) *App {
	if cfg.DefaultCity == "" {
		cfg.DefaultCity = "Kolkata"
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 7
	}
	if cfg.SuggestionLimit <= 0 {
		cfg.SuggestionLimit = 7
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:         cfg,
		client:      deps.Client,
		cache:       deps.Cache,
		sink:        deps.Sink,
		logger:      logger,
		now:         now,
		currentCity: cfg.DefaultCity,
		panel:       surface.Panel{Temperature: loadingText},
		baseCtx:     baseCtx,
		cancel:      cancel,
	}

	opts := []loader.Option{
		loader.WithLogger(logger.With(zap.String("component", "loader"))),
		loader.WithOnBatch(a.renderTable),
		loader.WithOnError(func(error) { a.sink.TableError(tableErrorText) }),
	}
	a.loader = loader.New(deps.Client, deps.Cache, cfg.Roster, cfg.BatchSize, cfg.BatchDelay, append(opts, deps.LoaderOptions...)...)
	a.debouncer = debounce.New(cfg.SuggestDebounce, func(req suggestRequest) {
		a.runSuggest(a.baseCtx, req)
	})
	return a
}

// Loader exposes the roster loader for health reporting.
func (a *App) Loader() *loader.Loader {
	return a.loader
}

// Start schedules the current-city auto refresh and, if configured, the roster
// refresh. ctx bounds all background work started by the App.
func (a *App) Start(ctx context.Context) error {
	a.cancel()
	a.baseCtx, a.cancel = context.WithCancel(ctx)
	a.cron = cron.New(cron.WithLocation(IST))

	if a.cfg.AutoRefresh > 0 {
		spec := "@every " + a.cfg.AutoRefresh.String()
		if _, err := a.cron.AddFunc(spec, func() { a.autoRefresh(a.baseCtx) }); err != nil {
			return err
		}
	}
	if a.cfg.RosterSchedule != "" {
		if _, err := a.cron.AddFunc(a.cfg.RosterSchedule, func() { a.scheduledRosterRefresh(a.baseCtx) }); err != nil {
			return err
		}
	}
	a.cron.Start()
	a.logger.Info("dashboard scheduler started",
		zap.Duration("auto_refresh", a.cfg.AutoRefresh),
		zap.String("roster_schedule", a.cfg.RosterSchedule))
	return nil
}

// Stop cancels background work and waits for it to finish or ctx to expire.
func (a *App) Stop(ctx context.Context) error {
	a.debouncer.Stop()
	a.cancel()
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Init loads the default city and then the whole roster. A default-city failure is
// only logged and leaves the panel in its loading state.
func (a *App) Init(ctx context.Context) error {
	if err := a.loadCity(ctx, a.cfg.DefaultCity, false); err != nil {
		a.logger.Warn("initial city load failed", zap.String("city", a.cfg.DefaultCity), zap.Error(err))
	}
	if err := a.refreshAll(ctx); err != nil && !errors.Is(err, loader.ErrInFlight) {
		a.logger.Warn("initial roster load failed", zap.Error(err))
	}
	a.logger.Info("dashboard initialized")
	return nil
}

// Status is the dashboard state that is not held by the sink.
type Status struct {
	CurrentCity    string         `json:"currentCity"`
	Filter         string         `json:"filter"`
	Sort           table.SortSpec `json:"sort"`
	Timestamp      string         `json:"timestamp"`
	LastUpdated    string         `json:"lastUpdated"`
	RosterInFlight bool           `json:"rosterInFlight"`
}

// Status reports the current city, table controls and freshness banner.
func (a *App) Status() Status {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		CurrentCity:    a.currentCity,
		Filter:         a.filter,
		Sort:           a.sort,
		Timestamp:      TimestampIST(now),
		LastUpdated:    TimeSince(a.receivedAt, now),
		RosterInFlight: a.loader.InFlight(),
	}
}

// RefreshAllAsync clears the table and reloads the roster in the background. The
// in-flight check and claim happen before it returns, so a running refresh always
// yields loader.ErrInFlight and never a silently skipped run.
func (a *App) RefreshAllAsync() error {
	intent := RefreshAll{}
	observability.IntentsTotal.WithLabelValues(intent.intentName()).Inc()
	done, err := a.loader.StartRefreshAll(a.baseCtx)
	if err != nil {
		return err
	}
	a.sink.Loading(true)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.finishRefresh(a.baseCtx, <-done)
	}()
	return nil
}

func (a *App) autoRefresh(ctx context.Context) {
	a.wg.Add(1)
	defer a.wg.Done()
	a.mu.Lock()
	city := a.currentCity
	a.mu.Unlock()
	a.logger.Debug("auto-refreshing current city", zap.String("city", city))
	if err := a.Dispatch(ctx, RefreshCurrent{}); err != nil {
		a.logger.Warn("auto refresh failed", zap.String("city", city), zap.Error(err))
	}
}

func (a *App) scheduledRosterRefresh(ctx context.Context) {
	a.wg.Add(1)
	defer a.wg.Done()
	// Scheduled runs refresh in place; they do not clear cities first.
	a.sink.Loading(true)
	_, err := a.loader.Refresh(ctx)
	if errors.Is(err, loader.ErrInFlight) {
		return
	}
	_ = a.finishRefresh(ctx, err)
}
