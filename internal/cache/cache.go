package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/pandora-weather-scanner/internal/models"
	"github.com/kjstillabower/pandora-weather-scanner/internal/observability"
)

// Cache is the lookup-facing view of the weather cache.
// Get reports a hit only for fresh entries; Put always overwrites.
type Cache interface {
	Get(key string) (models.WeatherRecord, bool)
	Put(key string, record models.WeatherRecord)
}

// Store is an in-memory TTL cache keyed by location key. Safe for concurrent use.
// Expiration is lazy: stale entries are removed by the Get that finds them.
// There is no capacity bound and no background sweep.
type Store struct {
	mu     sync.Mutex
	data   map[string]entry
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// entry is never mutated after insertion; Put replaces it wholesale.
// The record is a private copy: Put and Get clone at the boundary.
type entry struct {
	record   models.WeatherRecord
	storedAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source. Tests use it to step past the window.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger logs expirations and writes at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store whose entries are fresh for window after insertion.
func NewStore(window time.Duration, opts ...Option) *Store {
	s := &Store{
		data:   make(map[string]entry),
		window: window,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the freshness window the store was built with.
func (s *Store) Window() time.Duration {
	return s.window
}

// Get returns the record for key when its age is below the window.
// A stale entry is deleted under the same lock and reported as a miss,
// so Get is not read-only.
func (s *Store) Get(key string) (models.WeatherRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return models.WeatherRecord{}, false
	}
	if age := s.now().Sub(e.storedAt); age >= s.window {
		delete(s.data, key)
		s.logger.Debug("cache expired", zap.String("location", key), zap.Duration("age", age))
		observability.CacheLookupsTotal.WithLabelValues("expired").Inc()
		observability.CacheEntries.Set(float64(len(s.data)))
		return models.WeatherRecord{}, false
	}
	observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return e.record.Clone(), true
}

// Put stores record for key stamped with the current time, replacing any existing entry.
func (s *Store) Put(key string, record models.WeatherRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{record: record.Clone(), storedAt: s.now()}
	observability.CacheEntries.Set(float64(len(s.data)))
}

// Len returns the number of entries held, fresh or not yet observed stale.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
