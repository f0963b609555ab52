package airquality

import (
	"context"
	"time"
)

// ResultStatus tags the outcome of a single provider call.
type ResultStatus int

const (
	// ResultOK means the sample fields are populated.
	ResultOK ResultStatus = iota
	// ResultNotFound means the provider rejected the location (4xx).
	ResultNotFound
	// ResultTransient means the call failed after retries (network, 429, 5xx, timeout).
	ResultTransient
)

func (s ResultStatus) String() string {
	switch s {
	case ResultOK:
		return "ok"
	case ResultNotFound:
		return "not_found"
	case ResultTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// PollutantSample is a pollutant provider's reading, already in canonical units.
type PollutantSample struct {
	Provider   string
	Timestamp  time.Time
	AQI        *float64
	Pollutants Pollutants
}

// WeatherSample is a weather provider's reading for one point in time.
type WeatherSample struct {
	Provider  string
	Timestamp time.Time
	Weather   Weather
}

// PollutantResult is the tagged result of a pollutant fetch. Sample is only
// meaningful when Status is ResultOK; Err carries detail otherwise.
type PollutantResult struct {
	Status ResultStatus
	Sample PollutantSample
	Err    error
}

// WeatherResult is the tagged result of a weather fetch.
type WeatherResult struct {
	Status ResultStatus
	Sample WeatherSample
	Err    error
}

// PollutantProvider abstracts an air-quality source (e.g. WAQI, Open-Meteo).
type PollutantProvider interface {
	Name() string
	FetchPollutants(ctx context.Context, loc Location) PollutantResult
}

// WeatherProvider abstracts a weather source (e.g. OpenWeatherMap, WeatherAPI).
type WeatherProvider interface {
	Name() string
	FetchWeather(ctx context.Context, loc Location) WeatherResult
}

// WeatherForecaster is implemented by weather providers that can project
// weather forward. Samples are ordered by timestamp.
type WeatherForecaster interface {
	Forecast(ctx context.Context, loc Location, hours int) ([]WeatherSample, error)
}

// RawReading is the gateway's merged output before normalization. A nil side
// means that provider failed for this fetch.
type RawReading struct {
	Location   Location
	FetchedAt  time.Time
	AQI        *float64
	Pollutants *Pollutants
	Weather    *Weather
	Sources    []string
}

// Store is the contract shared by the in-memory and Postgres time-series stores.
type Store interface {
	// InsertIfAbsent stores r unless a reading already exists for its
	// (location, hour). It returns the stored reading and whether r was inserted.
	InsertIfAbsent(ctx context.Context, r Reading) (Reading, bool, error)
	// Get returns the reading for a location's hour bucket or ErrNotFound.
	Get(ctx context.Context, key string, hour time.Time) (Reading, error)
	// Latest returns the most recent reading for a location or ErrNotFound.
	Latest(ctx context.Context, key string) (Reading, error)
	// LatestWithAQI returns the most recent reading carrying an AQI or ErrNotFound.
	LatestWithAQI(ctx context.Context, key string) (Reading, error)
	// Range returns readings with from <= Timestamp <= to, oldest first.
	Range(ctx context.Context, key string, from, to time.Time) ([]Reading, error)
}
