package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/pandora-weather-scanner/internal/models"
	"github.com/kjstillabower/pandora-weather-scanner/internal/observability"
)

const fullForecastBody = `{
	"latitude": 3.2,
	"longitude": 73.22,
	"current_weather": {
		"temperature": 21.5,
		"windspeed": 5,
		"winddirection": 180,
		"weathercode": 2,
		"time": "2024-01-15T10:00"
	},
	"hourly": {
		"time": ["2024-01-15T00:00", "2024-01-15T01:00"],
		"relativehumidity_2m": [55, 60],
		"pressure_msl": [1013.256, 1012.9]
	}
}`

func newTestServer(t *testing.T, hits *int32, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func newTestClient(t *testing.T, url string, timeout time.Duration, opts ...Option) *OpenMeteoClient {
	t.Helper()
	c, err := NewOpenMeteoClient(url, timeout, opts...)
	if err != nil {
		t.Fatalf("NewOpenMeteoClient() error = %v", err)
	}
	return c
}

func TestNewOpenMeteoClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		timeout time.Duration
		wantErr bool
	}{
		{"default url", "", 5 * time.Second, false},
		{"explicit url", "https://api.open-meteo.com/v1/forecast", 5 * time.Second, false},
		{"bad scheme", "ftp://example.com", 5 * time.Second, true},
		{"unparseable url", "http://[::1", 5 * time.Second, true},
		{"zero timeout", DefaultURL, 0, true},
		{"negative timeout", DefaultURL, -time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewOpenMeteoClient(tt.url, tt.timeout)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewOpenMeteoClient() expected error, got nil")
				}
				if c != nil {
					t.Error("NewOpenMeteoClient() expected nil client on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpenMeteoClient() unexpected error: %v", err)
			}
		})
	}
}

func TestOpenMeteoClient_FetchConditions_Success(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		q := r.URL.Query()
		gotQuery = map[string]string{
			"latitude":        q.Get("latitude"),
			"longitude":       q.Get("longitude"),
			"current_weather": q.Get("current_weather"),
			"hourly":          q.Get("hourly"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fullForecastBody))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2*time.Second)
	got, err := c.FetchConditions(context.Background(), models.Coordinates{Latitude: 3.2, Longitude: 73.22})
	if err != nil {
		t.Fatalf("FetchConditions() error = %v", err)
	}

	wantQuery := map[string]string{
		"latitude":        "3.2",
		"longitude":       "73.22",
		"current_weather": "true",
		"hourly":          "relativehumidity_2m,pressure_msl",
	}
	for k, want := range wantQuery {
		if gotQuery[k] != want {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], want)
		}
	}

	if got.Temperature != 21.5 {
		t.Errorf("Temperature = %v, want 21.5", got.Temperature)
	}
	if got.WindSpeed != 5 {
		t.Errorf("WindSpeed = %v, want 5", got.WindSpeed)
	}
	if got.WindDirection != 180 {
		t.Errorf("WindDirection = %v, want 180", got.WindDirection)
	}
	if got.WeatherCode != 2 {
		t.Errorf("WeatherCode = %d, want 2", got.WeatherCode)
	}
	if got.Humidity == nil || *got.Humidity != 55 {
		t.Errorf("Humidity = %v, want 55", got.Humidity)
	}
	if got.Pressure == nil || *got.Pressure != 1013.26 {
		t.Errorf("Pressure = %v, want 1013.26", got.Pressure)
	}
}

// TestOpenMeteoClient_FetchConditions_OptionalFields checks that missing, empty
// or null-led hourly series yield nil rather than zero.
func TestOpenMeteoClient_FetchConditions_OptionalFields(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantHumidity *float64
		wantPressure *float64
	}{
		{
			name:         "no hourly section",
			body:         `{"current_weather":{"temperature":1,"windspeed":2,"winddirection":3,"weathercode":0}}`,
			wantHumidity: nil,
			wantPressure: nil,
		},
		{
			name:         "humidity omitted",
			body:         `{"current_weather":{"temperature":1,"windspeed":2,"winddirection":3,"weathercode":0},"hourly":{"pressure_msl":[1000.004]}}`,
			wantHumidity: nil,
			wantPressure: models.Float(1000),
		},
		{
			name:         "empty arrays",
			body:         `{"current_weather":{"temperature":1,"windspeed":2,"winddirection":3,"weathercode":0},"hourly":{"relativehumidity_2m":[],"pressure_msl":[]}}`,
			wantHumidity: nil,
			wantPressure: nil,
		},
		{
			name:         "null lead value",
			body:         `{"current_weather":{"temperature":1,"windspeed":2,"winddirection":3,"weathercode":0},"hourly":{"relativehumidity_2m":[null,40],"pressure_msl":[null]}}`,
			wantHumidity: nil,
			wantPressure: nil,
		},
		{
			name:         "zero values kept",
			body:         `{"current_weather":{"temperature":0,"windspeed":2,"winddirection":3,"weathercode":0},"hourly":{"relativehumidity_2m":[0],"pressure_msl":[0]}}`,
			wantHumidity: models.Float(0),
			wantPressure: models.Float(0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, nil, http.StatusOK, tt.body)
			defer server.Close()

			c := newTestClient(t, server.URL, 2*time.Second)
			got, err := c.FetchConditions(context.Background(), models.Coordinates{})
			if err != nil {
				t.Fatalf("FetchConditions() error = %v", err)
			}
			assertOptional(t, "Humidity", got.Humidity, tt.wantHumidity)
			assertOptional(t, "Pressure", got.Pressure, tt.wantPressure)
		})
	}
}

func assertOptional(t *testing.T, field string, got, want *float64) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("%s = %v, want absent", field, *got)
	case want != nil && got == nil:
		t.Errorf("%s absent, want %v", field, *want)
	case want != nil && *got != *want:
		t.Errorf("%s = %v, want %v", field, *got, *want)
	}
}

// TestOpenMeteoClient_FetchConditions_Failures verifies each failure is a single
// attempt classified into the expected kind.
func TestOpenMeteoClient_FetchConditions_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
	}{
		{"500 server error", http.StatusInternalServerError, `{"error":true}`, KindTransport},
		{"503 unavailable", http.StatusServiceUnavailable, ``, KindTransport},
		{"400 bad request", http.StatusBadRequest, `{"error":true,"reason":"Latitude must be in range"}`, KindTransport},
		{"not json", http.StatusOK, `<html>oops</html>`, KindMalformed},
		{"truncated json", http.StatusOK, `{"current_weather":{"temperature":`, KindMalformed},
		{"wrong shape", http.StatusOK, `{"current_weather":"sunny"}`, KindMalformed},
		{"missing current_weather", http.StatusOK, `{"hourly":{}}`, KindMalformed},
		{"empty current_weather", http.StatusOK, `{"current_weather":{}}`, KindMalformed},
		{"null temperature", http.StatusOK, `{"current_weather":{"temperature":null,"windspeed":2,"winddirection":3,"weathercode":0}}`, KindMalformed},
		{"missing weathercode", http.StatusOK, `{"current_weather":{"temperature":1,"windspeed":2,"winddirection":3}}`, KindMalformed},
		{"empty body", http.StatusOK, ``, KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			server := newTestServer(t, &hits, tt.status, tt.body)
			defer server.Close()

			c := newTestClient(t, server.URL, 2*time.Second)
			_, err := c.FetchConditions(context.Background(), models.Coordinates{Latitude: 1, Longitude: 2})
			if err == nil {
				t.Fatal("FetchConditions() expected error, got nil")
			}
			if !errors.Is(err, ErrUpstreamUnavailable) {
				t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v", got, tt.wantKind)
			}
			if n := atomic.LoadInt32(&hits); n != 1 {
				t.Errorf("upstream hits = %d, want exactly 1 (no retry)", n)
			}
		})
	}
}

func TestOpenMeteoClient_FetchConditions_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient(t, server.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := c.FetchConditions(context.Background(), models.Coordinates{})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("FetchConditions() expected timeout error, got nil")
	}
	if got := KindOf(err); got != KindTimeout {
		t.Errorf("KindOf() = %v, want timeout (err = %v)", got, err)
	}
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
	if elapsed > time.Second {
		t.Errorf("FetchConditions() took %v, want bounded by the 50ms timeout", elapsed)
	}
}

func TestOpenMeteoClient_FetchConditions_ConnectionRefused(t *testing.T) {
	server := newTestServer(t, nil, http.StatusOK, fullForecastBody)
	url := server.URL
	server.Close()

	c := newTestClient(t, url, time.Second)
	_, err := c.FetchConditions(context.Background(), models.Coordinates{})
	if err == nil {
		t.Fatal("FetchConditions() expected error, got nil")
	}
	if got := KindOf(err); got != KindTransport {
		t.Errorf("KindOf() = %v, want transport (err = %v)", got, err)
	}
}

func TestOpenMeteoClient_FetchConditions_CorrelationID(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(fullForecastBody))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, time.Second)
	ctx := observability.WithCorrelationID(context.Background(), "corr-42")
	if _, err := c.FetchConditions(ctx, models.Coordinates{}); err != nil {
		t.Fatalf("FetchConditions() error = %v", err)
	}
	if captured != "corr-42" {
		t.Errorf("X-Correlation-ID = %q, want corr-42", captured)
	}
}

// TestOpenMeteoClient_CircuitBreaker verifies the breaker opens after consecutive
// transport failures and rejects calls without contacting upstream.
func TestOpenMeteoClient_CircuitBreaker(t *testing.T) {
	var hits int32
	server := newTestServer(t, &hits, http.StatusBadGateway, ``)
	defer server.Close()

	c := newTestClient(t, server.URL, time.Second, WithCircuitBreaker(BreakerConfig{
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}))

	for i := 0; i < 2; i++ {
		if _, err := c.FetchConditions(context.Background(), models.Coordinates{}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	_, err := c.FetchConditions(context.Background(), models.Coordinates{})
	if err == nil {
		t.Fatal("expected breaker rejection, got nil")
	}
	if got := KindOf(err); got != KindTransport {
		t.Errorf("KindOf() = %v, want transport", got)
	}
	if got := CategorizeError(err); got != ErrorCategoryCircuitOpen {
		t.Errorf("CategorizeError() = %v, want circuit_open", got)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("upstream hits = %d, want 2 (third call rejected by breaker)", n)
	}
}

// TestOpenMeteoClient_CircuitBreaker_IgnoresMalformed verifies malformed bodies do not trip the breaker.
func TestOpenMeteoClient_CircuitBreaker_IgnoresMalformed(t *testing.T) {
	var hits int32
	server := newTestServer(t, &hits, http.StatusOK, `not json`)
	defer server.Close()

	c := newTestClient(t, server.URL, time.Second, WithCircuitBreaker(BreakerConfig{
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 1,
	}))

	for i := 0; i < 3; i++ {
		_, err := c.FetchConditions(context.Background(), models.Coordinates{})
		if got := KindOf(err); got != KindMalformed {
			t.Fatalf("call %d: KindOf() = %v, want malformed", i, got)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("upstream hits = %d, want 3", n)
	}
}
