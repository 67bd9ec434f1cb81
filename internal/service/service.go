package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/pandora-weather-scanner/internal/cache"
	"github.com/kjstillabower/pandora-weather-scanner/internal/client"
	"github.com/kjstillabower/pandora-weather-scanner/internal/models"
	"github.com/kjstillabower/pandora-weather-scanner/internal/observability"
	"github.com/kjstillabower/pandora-weather-scanner/internal/registry"
)

// ErrLocationNotFound is returned for keys absent from the registry. No fetch is attempted.
var ErrLocationNotFound = errors.New("location not found")

// ErrUpstreamUnavailable is returned when the forecast fetch failed for any reason.
var ErrUpstreamUnavailable = client.ErrUpstreamUnavailable

// Lookup outcome labels.
const (
	outcomeServedCache         = "served_cache"
	outcomeServedUpstream      = "served_upstream"
	outcomeNotFound            = "not_found"
	outcomeUpstreamUnavailable = "upstream_unavailable"
)

// WeatherService resolves location keys to weather records using cache-aside
// over the forecast client. It does not retry and does not de-duplicate
// concurrent fetches for the same key.
type WeatherService struct {
	registry *registry.Registry
	client   client.ForecastClient
	cache    cache.Cache
	logger   *zap.Logger
}

// NewWeatherService creates a WeatherService. logger may be nil.
func NewWeatherService(reg *registry.Registry, fc client.ForecastClient, c cache.Cache, logger *zap.Logger) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		registry: reg,
		client:   fc,
		cache:    c,
		logger:   logger,
	}
}

// Registry returns the location registry the service validates keys against.
func (s *WeatherService) Registry() *registry.Registry {
	return s.registry
}

// Lookup returns the weather record for key.
// Unknown keys yield ErrLocationNotFound. A fresh cache entry is returned without
// contacting upstream. Otherwise one fetch is made; on success the merged record
// is cached and returned, on failure an error matching ErrUpstreamUnavailable is
// returned and the cache is left untouched.
func (s *WeatherService) Lookup(ctx context.Context, key string) (models.WeatherRecord, error) {
	logger := observability.LoggerFrom(ctx, s.logger)
	start := time.Now()

	loc, ok := s.registry.Lookup(key)
	if !ok {
		logger.Warn("invalid location key requested", zap.String("location", key))
		observability.RecordLookup("unknown", outcomeNotFound)
		return models.WeatherRecord{}, fmt.Errorf("%w: %q", ErrLocationNotFound, key)
	}
	logger.Debug("processing weather request", zap.String("location", loc.Name))

	if cached, ok := s.cache.Get(key); ok {
		logger.Info("returning cached weather data", zap.String("location", key))
		observability.RecordLookup(key, outcomeServedCache)
		return cached, nil
	}

	// The fetch ends only at completion or the client's own timeout, never on caller cancellation.
	conditions, err := s.client.FetchConditions(context.WithoutCancel(ctx), loc.Coordinates())
	if err != nil {
		logger.Error("weather fetch failed",
			zap.String("location", key),
			zap.Float64("lat", loc.Latitude),
			zap.Float64("lon", loc.Longitude),
			zap.String("kind", client.KindOf(err).String()),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		observability.RecordLookup(key, outcomeUpstreamUnavailable)
		if !errors.Is(err, ErrUpstreamUnavailable) {
			err = &client.FetchError{Kind: client.KindTransport, Err: err}
		}
		return models.WeatherRecord{}, fmt.Errorf("fetch weather for %s: %w", key, err)
	}

	record := merge(loc, conditions)
	s.cache.Put(key, record)
	logger.Info("cached weather data",
		zap.String("location", key),
		zap.Duration("duration", time.Since(start)))
	observability.RecordLookup(key, outcomeServedUpstream)
	return record, nil
}

// merge combines upstream conditions with the registry's presentation fields.
func merge(loc registry.Location, c models.Conditions) models.WeatherRecord {
	return models.WeatherRecord{
		Location:      loc.Name,
		Temperature:   c.Temperature,
		WindSpeed:     c.WindSpeed,
		WindDirection: c.WindDirection,
		WeatherCode:   c.WeatherCode,
		Humidity:      c.Humidity,
		Pressure:      c.Pressure,
		Image:         loc.Image,
		Status:        loc.Status,
		StatusColor:   loc.StatusColor,
	}
}
