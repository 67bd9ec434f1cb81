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

	"github.com/kjstillabower/pandora-weather-scanner/internal/cache"
	"github.com/kjstillabower/pandora-weather-scanner/internal/client"
	"github.com/kjstillabower/pandora-weather-scanner/internal/config"
	httphandler "github.com/kjstillabower/pandora-weather-scanner/internal/http"
	"github.com/kjstillabower/pandora-weather-scanner/internal/observability"
	"github.com/kjstillabower/pandora-weather-scanner/internal/registry"
	"github.com/kjstillabower/pandora-weather-scanner/internal/service"
)

// app is the wired lookup core shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *cache.Store
	service *service.WeatherService
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	reg, err := registry.New(cfg.Locations)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	opts := []client.Option{client.WithLogger(logger)}
	if cfg.CircuitBreakerEnabled {
		opts = append(opts, client.WithCircuitBreaker(client.BreakerConfig{
			MaxRequests:      cfg.CircuitBreakerMaxRequests,
			Interval:         cfg.CircuitBreakerInterval,
			Timeout:          cfg.CircuitBreakerTimeout,
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		}))
		logger.Info("circuit breaker enabled",
			zap.Uint32("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	weatherClient, err := client.NewOpenMeteoClient(cfg.WeatherAPIURL, cfg.WeatherAPITimeout, opts...)
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}

	store := cache.NewStore(cfg.CacheTTL, cache.WithLogger(logger))
	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		service: service.NewWeatherService(reg, weatherClient, store, logger),
	}, nil
}

// newServer builds the HTTP server plus the pieces shutdown needs to drive.
func (a *app) newServer() (*http.Server, *httphandler.Handler, *httphandler.InFlightTracker) {
	handler := httphandler.NewHandler(a.service, &httphandler.HealthConfig{
		StartTime:    time.Now(),
		CacheEntries: a.store.Len,
	}, a.logger)

	var limiter *rate.Limiter
	if a.cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(a.cfg.RateLimitRPS), a.cfg.RateLimitBurst)
	}
	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, a.logger, httphandler.RouterConfig{
		Limiter:   limiter,
		InFlight:  inFlight,
		StaticDir: a.cfg.StaticDir,
	})

	srv := &http.Server{
		Addr:         ":" + a.cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: a.cfg.WeatherAPITimeout + 5*time.Second,
	}
	return srv, handler, inFlight
}

// serve runs the HTTP server until SIGINT/SIGTERM or ctx is cancelled, then drains.
func (a *app) serve(ctx context.Context) error {
	srv, handler, inFlight := a.newServer()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Duration("cache_ttl", a.store.Window()),
			zap.Strings("locations", a.service.Registry().Keys()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	a.logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown", zap.Error(err))
	}

	a.logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, a.cfg.ShutdownInFlightCheckInterval); err != nil {
		a.logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if err := observability.FlushTelemetry(a.logger); err != nil {
		// stderr sync errors are routine on some platforms
		a.logger.Debug("telemetry flush", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}
