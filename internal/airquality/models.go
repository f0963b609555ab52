package airquality

import (
	"strings"
	"time"
)

// Location represents a monitored place. City/Country identify it; the pair is unique.
type Location struct {
	City        string  `json:"city" yaml:"city" validate:"required"`
	Country     string  `json:"country" yaml:"country" validate:"required"`
	Lat         float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon         float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
	Active      bool    `json:"active" yaml:"active"`
	DisplayName string  `json:"display_name" yaml:"display_name"`
}

// Key returns a canonical string key for indexing this location in stores and caches.
func (l Location) Key() string {
	return LocationKey(l.City, l.Country)
}

// LocationKey builds the key used by Location.Key without needing a Location value.
func LocationKey(city, country string) string {
	return strings.ToLower(strings.TrimSpace(city)) + ":" + strings.ToLower(strings.TrimSpace(country))
}

// Name returns the display name, falling back to "City, Country".
func (l Location) Name() string {
	if l.DisplayName != "" {
		return l.DisplayName
	}
	return l.City + ", " + l.Country
}

// Pollutants holds concentrations in canonical units:
// PM2.5/PM10 in µg/m³, O3/NO2/SO2 in ppb, CO in ppm.
type Pollutants struct {
	PM25 *float64 `json:"pm25"`
	PM10 *float64 `json:"pm10"`
	O3   *float64 `json:"o3"`
	NO2  *float64 `json:"no2"`
	SO2  *float64 `json:"so2"`
	CO   *float64 `json:"co"`
}

// Weather holds weather attributes: °C, %, m/s, hPa.
type Weather struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	WindSpeed   *float64 `json:"wind_speed"`
	Pressure    *float64 `json:"pressure"`
}

// Reading is one normalized, hour-aligned time-series record. Immutable once stored.
type Reading struct {
	LocationKey string     `json:"location_key"`
	City        string     `json:"city"`
	Country     string     `json:"country"`
	Timestamp   time.Time  `json:"timestamp"` // UTC, truncated to the hour
	AQI         *float64   `json:"aqi"`
	Category    string     `json:"category"`
	Pollutants  Pollutants `json:"pollutants"`
	Weather     Weather    `json:"weather"`
	Sources     []string   `json:"sources,omitempty"`
	CollectedAt time.Time  `json:"collected_at"`
}

// HasAQI reports whether the reading carries an AQI value.
func (r Reading) HasAQI() bool {
	return r.AQI != nil
}

// HourBucket truncates t to the start of its UTC hour.
func HourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// Float returns a pointer to v. Handy for building readings in code and tests.
func Float(v float64) *float64 {
	return &v
}
