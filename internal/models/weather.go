package models

import "math"

// Coordinates locates a registry entry for the upstream forecast request.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Conditions is the normalized upstream payload before registry fields are merged in.
// Humidity and Pressure are nil when the upstream omitted them.
type Conditions struct {
	Temperature   float64
	WindSpeed     float64
	WindDirection float64
	WeatherCode   int
	Humidity      *float64
	Pressure      *float64
}

// WeatherRecord is what a lookup returns and what the cache stores.
type WeatherRecord struct {
	Location      string   `json:"location"`
	Temperature   float64  `json:"temp"`
	WindSpeed     float64  `json:"wind"`
	WindDirection float64  `json:"wind_direction"`
	WeatherCode   int      `json:"weather_code"`
	Humidity      *float64 `json:"humidity"`
	Pressure      *float64 `json:"pressure"`
	Image         string   `json:"image"`
	Status        string   `json:"status"`
	StatusColor   string   `json:"status_color"`
}

// Clone returns a copy that shares no memory with r. The optional fields are
// pointers, so a plain struct copy would still alias them.
func (r WeatherRecord) Clone() WeatherRecord {
	out := r
	out.Humidity = clonePtr(r.Humidity)
	out.Pressure = clonePtr(r.Pressure)
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// RoundTo rounds v half away from zero to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Float returns a pointer to v. Used to populate optional fields.
func Float(v float64) *float64 {
	return &v
}
