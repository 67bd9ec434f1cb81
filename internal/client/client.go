package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/pandora-weather-scanner/internal/models"
	"github.com/kjstillabower/pandora-weather-scanner/internal/observability"
)

// DefaultURL is the Open-Meteo forecast endpoint.
const DefaultURL = "https://api.open-meteo.com/v1/forecast"

// hourlyFields are the only hourly series requested; the lead value of each is used.
const hourlyFields = "relativehumidity_2m,pressure_msl"

// ForecastClient fetches current conditions for a coordinate pair.
// Every error it returns is a *FetchError.
type ForecastClient interface {
	FetchConditions(ctx context.Context, coords models.Coordinates) (models.Conditions, error)
}

// OpenMeteoClient issues exactly one request per call with a fixed timeout.
// It never retries.
type OpenMeteoClient struct {
	apiURL  string
	timeout time.Duration
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// BreakerConfig configures the optional upstream circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32        // probes allowed while half-open
	Interval         time.Duration // closed-state counter reset period; 0 never resets
	Timeout          time.Duration // open duration before probing
	FailureThreshold uint32        // consecutive failures that open the breaker
}

// Option configures an OpenMeteoClient.
type Option func(*OpenMeteoClient)

// WithLogger routes resty's internal logging and breaker transitions to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *OpenMeteoClient) {
		c.logger = logger
	}
}

// WithCircuitBreaker enables a breaker in front of the upstream call.
// A rejected call surfaces as KindTransport.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(c *OpenMeteoClient) {
		threshold := cfg.FailureThreshold
		if threshold == 0 {
			threshold = 5
		}
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "open_meteo",
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				observability.CircuitBreakerState.Set(float64(to))
				if c.logger != nil {
					c.logger.Warn("circuit breaker state change",
						zap.String("breaker", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()))
				}
			},
		})
	}
}

// NewOpenMeteoClient creates a client for apiURL with the given per-request timeout.
func NewOpenMeteoClient(apiURL string, timeout time.Duration, opts ...Option) (*OpenMeteoClient, error) {
	if apiURL == "" {
		apiURL = DefaultURL
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL %q: scheme must be http or https", apiURL)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", timeout)
	}

	c := &OpenMeteoClient{
		apiURL:  apiURL,
		timeout: timeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http = resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetLogger(c.logger.Sugar())
	if c.breaker != nil {
		observability.CircuitBreakerState.Set(float64(gobreaker.StateClosed))
	}
	return c, nil
}

type forecastResponse struct {
	CurrentWeather *struct {
		Temperature   *float64 `json:"temperature"`
		WindSpeed     *float64 `json:"windspeed"`
		WindDirection *float64 `json:"winddirection"`
		WeatherCode   *float64 `json:"weathercode"`
	} `json:"current_weather"`
	Hourly struct {
		RelativeHumidity []*float64 `json:"relativehumidity_2m"`
		PressureMSL      []*float64 `json:"pressure_msl"`
	} `json:"hourly"`
}

// FetchConditions requests current weather plus the humidity/pressure hourly series
// and flattens them. Failures are classified as timeout, transport or malformed.
func (c *OpenMeteoClient) FetchConditions(ctx context.Context, coords models.Coordinates) (models.Conditions, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.execute(reqCtx, coords)
	duration := time.Since(start).Seconds()
	if err != nil {
		kind := KindOf(err)
		observability.WeatherAPICallsTotal.WithLabelValues(kind.String()).Inc()
		observability.WeatherAPIDuration.WithLabelValues(kind.String()).Observe(duration)
		observability.WeatherAPIErrorsTotal.WithLabelValues(kind.String()).Inc()
		return models.Conditions{}, err
	}

	conditions, err := parseForecast(body)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(KindMalformed.String()).Inc()
		observability.WeatherAPIDuration.WithLabelValues(KindMalformed.String()).Observe(duration)
		observability.WeatherAPIErrorsTotal.WithLabelValues(KindMalformed.String()).Inc()
		return models.Conditions{}, err
	}

	observability.WeatherAPICallsTotal.WithLabelValues("success").Inc()
	observability.WeatherAPIDuration.WithLabelValues("success").Observe(duration)
	return conditions, nil
}

// execute performs the HTTP exchange, through the breaker when one is configured.
// Only timeout and transport failures count against the breaker.
func (c *OpenMeteoClient) execute(ctx context.Context, coords models.Coordinates) ([]byte, error) {
	if c.breaker == nil {
		return c.doRequest(ctx, coords)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, coords)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &FetchError{Kind: KindTransport, Err: err}
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (c *OpenMeteoClient) doRequest(ctx context.Context, coords models.Coordinates) ([]byte, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":        formatCoord(coords.Latitude),
			"longitude":       formatCoord(coords.Longitude),
			"current_weather": "true",
			"hourly":          hourlyFields,
		})
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.SetHeader("X-Correlation-ID", corrID)
	}

	resp, err := req.Get(c.apiURL)
	if err != nil {
		if isTimeout(err) {
			return nil, &FetchError{Kind: KindTimeout, Err: err}
		}
		return nil, &FetchError{Kind: KindTransport, Err: err}
	}
	if !resp.IsSuccess() {
		return nil, newFetchError(KindTransport, "HTTP %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// parseForecast decodes the document and takes the lead value of each hourly series.
func parseForecast(body []byte) (models.Conditions, error) {
	var apiResp forecastResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.Conditions{}, &FetchError{Kind: KindMalformed, Err: fmt.Errorf("parse response: %w", err)}
	}
	if apiResp.CurrentWeather == nil {
		return models.Conditions{}, newFetchError(KindMalformed, "response has no current_weather section")
	}

	cw := apiResp.CurrentWeather
	// A missing or null current reading is not zero degrees.
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"temperature", cw.Temperature},
		{"windspeed", cw.WindSpeed},
		{"winddirection", cw.WindDirection},
		{"weathercode", cw.WeatherCode},
	} {
		if f.v == nil {
			return models.Conditions{}, newFetchError(KindMalformed, "current_weather has no %s", f.name)
		}
	}
	conditions := models.Conditions{
		Temperature:   *cw.Temperature,
		WindSpeed:     *cw.WindSpeed,
		WindDirection: *cw.WindDirection,
		WeatherCode:   int(*cw.WeatherCode),
		Humidity:      leadValue(apiResp.Hourly.RelativeHumidity),
	}
	if p := leadValue(apiResp.Hourly.PressureMSL); p != nil {
		conditions.Pressure = models.Float(models.RoundTo(*p, 2))
	}
	return conditions, nil
}

// leadValue returns the first element of an hourly series, or nil when the series
// is missing, empty, or starts with null.
func leadValue(series []*float64) *float64 {
	if len(series) == 0 || series[0] == nil {
		return nil
	}
	v := *series[0]
	return &v
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
