package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/city-weather-dashboard/internal/cache"
	"github.com/kjstillabower/city-weather-dashboard/internal/client"
	"github.com/kjstillabower/city-weather-dashboard/internal/config"
	"github.com/kjstillabower/city-weather-dashboard/internal/dashboard"
	httphandler "github.com/kjstillabower/city-weather-dashboard/internal/http"
	"github.com/kjstillabower/city-weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/city-weather-dashboard/internal/observability"
	"github.com/kjstillabower/city-weather-dashboard/internal/surface"
	"github.com/kjstillabower/city-weather-dashboard/internal/traffic"
)

type pinger interface {
	Ping() error
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = observability.FlushLogs(logger) }()

	tracker := traffic.NewTracker()
	apiClient, err := client.NewWeatherAPIClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout, tracker)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	weatherClient := client.NewCoalescing(apiClient, cfg.RequestTimeout, client.WithOnShared(func(endpoint string) {
		observability.CoalescedRequestsTotal.WithLabelValues(endpoint).Inc()
	}))

	backend, closer, err := newCache(cfg, logger)
	if err != nil {
		logger.Fatal("cache backend", zap.String("backend", cfg.CacheBackend), zap.Error(err))
	}
	cityCache := cache.NewMetricsDecorator(backend, cfg.CacheBackend)

	snapshot := surface.NewSnapshot()
	app := dashboard.New(dashboard.Config{
		DefaultCity:      cfg.DefaultCity,
		Roster:           cfg.Roster,
		BatchSize:        cfg.BatchSize,
		BatchDelay:       cfg.BatchDelay,
		ForecastDays:     cfg.ForecastDays,
		SuggestionLimit:  cfg.SuggestionLimit,
		SuggestDebounce:  cfg.SuggestDebounce,
		AutoRefresh:      cfg.AutoRefresh,
		RosterSchedule:   cfg.RosterSchedule,
		MaxLocatorLength: cfg.MaxLocatorLength,
	}, dashboard.Deps{
		Client: weatherClient,
		Cache:  cityCache,
		Sink:   snapshot,
		Logger: logger.With(zap.String("component", "dashboard")),
	})

	observability.SetRoster(cfg.Roster)
	observability.RegisterGauges(tracker, cfg.OverloadWindow, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := cityCache.Len(ctx)
		if err != nil {
			return 0
		}
		return float64(n)
	})

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
	}
	if closer != nil {
		healthConfig.CachePing = closer.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	lc := &lifecycle.State{}
	inFlight := &httphandler.InFlightTracker{}
	handler := httphandler.NewHandler(app, snapshot, cityCache, tracker, lc, healthConfig, logger)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		Tracker:        tracker,
		InFlight:       inFlight,
		Metrics:        observability.MetricsHandler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		logger.Fatal("dashboard scheduler", zap.Error(err))
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("cache_backend", cfg.CacheBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	// The initial roster load runs in the background so /health answers while it proceeds.
	go func() {
		if err := app.Init(ctx); err != nil {
			logger.Error("dashboard init", zap.Error(err))
		}
	}()
	lc.MarkReady()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lc.SetShuttingDown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	if err := inFlight.WaitForZero(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if err := app.Stop(shutdownCtx); err != nil {
		logger.Warn("dashboard stop", zap.Error(err))
	}

	if closer != nil {
		if err := closer.Close(); err != nil {
			logger.Error("cache close", zap.String("backend", cfg.CacheBackend), zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// newCache builds the configured CityCache. The returned pinger is nil for in_memory.
func newCache(cfg *config.Config, logger *zap.Logger) (cache.CityCache, pinger, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc, nil
	case "redis":
		rc := cache.NewRedisCache(cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout))
		if err := rc.Ping(); err != nil {
			_ = rc.Close()
			return nil, nil, err
		}
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
		return rc, rc, nil
	default:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryCache(), nil, nil
	}
}
