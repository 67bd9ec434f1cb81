package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/pandora-weather-scanner/internal/models"
)

// Location is one fixed, preconfigured place the scanner can report on.
// Image, Status and StatusColor are presentation fields; they never come from upstream.
type Location struct {
	Key         string  `yaml:"key" json:"key" validate:"required,max=64"`
	Name        string  `yaml:"name" json:"name" validate:"required"`
	Latitude    float64 `yaml:"lat" json:"lat" validate:"latitude"`
	Longitude   float64 `yaml:"lon" json:"lon" validate:"longitude"`
	Image       string  `yaml:"image" json:"image"`
	Status      string  `yaml:"status" json:"status"`
	StatusColor string  `yaml:"status_color" json:"status_color"`
}

// Coordinates returns the location's position for the forecast client.
func (l Location) Coordinates() models.Coordinates {
	return models.Coordinates{Latitude: l.Latitude, Longitude: l.Longitude}
}

// Registry maps location keys to locations. Read-only after New.
type Registry struct {
	byKey map[string]Location
	keys  []string
}

// Defaults returns the built-in locations used when configuration lists none.
func Defaults() []Location {
	return []Location{
		{
			Key:         "hallelujah_mountains",
			Name:        "Hallelujah Mountains",
			Latitude:    29.13,
			Longitude:   110.48,
			Image:       "https://miro.medium.com/v2/resize:fit:1400/format:webp/1*PPxE0RqyWyLXb8wAliU15g.jpeg",
			Status:      "Stable",
			StatusColor: "green",
		},
		{
			Key:         "eastern_sea",
			Name:        "Eastern Sea",
			Latitude:    3.20,
			Longitude:   73.22,
			Image:       "static/eastern_sea.png",
			Status:      "RDA Activity Detected",
			StatusColor: "red",
		},
	}
}

// New validates locations and builds a Registry. Keys are trimmed; duplicates are rejected.
func New(locations []Location) (*Registry, error) {
	validate := validator.New()
	r := &Registry{byKey: make(map[string]Location, len(locations))}
	for i, loc := range locations {
		loc.Key = strings.TrimSpace(loc.Key)
		if err := validate.Struct(loc); err != nil {
			return nil, fmt.Errorf("location %d (%q): %w", i, loc.Key, err)
		}
		if _, dup := r.byKey[loc.Key]; dup {
			return nil, fmt.Errorf("location %q: duplicate key", loc.Key)
		}
		r.byKey[loc.Key] = loc
		r.keys = append(r.keys, loc.Key)
	}
	sort.Strings(r.keys)
	return r, nil
}

// Lookup returns the location for key. Keys are matched exactly.
func (r *Registry) Lookup(key string) (Location, bool) {
	loc, ok := r.byKey[key]
	return loc, ok
}

// Keys returns all keys in sorted order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// All returns every location ordered by key.
func (r *Registry) All() []Location {
	out := make([]Location, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.byKey[k])
	}
	return out
}

// Len returns the number of registered locations.
func (r *Registry) Len() int {
	return len(r.keys)
}
