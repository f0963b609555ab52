package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

// OpenWeatherProvider implements airquality.WeatherProvider and
// airquality.WeatherForecaster for OpenWeatherMap.
type OpenWeatherProvider struct {
	name        string
	apiKey      string
	baseURL     string
	forecastURL string
	httpCfg     HTTPClientConfig
	circuit     *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, opts Options) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:        "openweathermap",
		apiKey:      apiKey,
		baseURL:     "https://api.openweathermap.org/data/2.5/weather",
		forecastURL: "https://api.openweathermap.org/data/2.5/forecast",
		httpCfg:     opts.httpConfig(client),
		circuit:     newCircuitBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type owmMain struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
	Pressure *float64 `json:"pressure"`
}

type owmWind struct {
	Speed *float64 `json:"speed"`
}

type owmObservation struct {
	Dt   int64   `json:"dt"`
	Main owmMain `json:"main"`
	Wind owmWind `json:"wind"`
}

func (o owmObservation) sample(provider string) airquality.WeatherSample {
	ts := time.Now().UTC()
	if o.Dt > 0 {
		ts = time.Unix(o.Dt, 0).UTC()
	}
	return airquality.WeatherSample{
		Provider:  provider,
		Timestamp: ts,
		Weather: airquality.Weather{
			Temperature: o.Main.Temp,
			Humidity:    o.Main.Humidity,
			WindSpeed:   o.Wind.Speed,
			Pressure:    o.Main.Pressure,
		},
	}
}

func (p *OpenWeatherProvider) query(loc airquality.Location) url.Values {
	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")

	if hasCoordinates(loc) {
		values.Set("lat", fmt.Sprintf("%f", loc.Lat))
		values.Set("lon", fmt.Sprintf("%f", loc.Lon))
	} else {
		q := loc.City
		if loc.Country != "" {
			q = fmt.Sprintf("%s,%s", loc.City, loc.Country)
		}
		values.Set("q", q)
	}
	return values
}

func (p *OpenWeatherProvider) FetchWeather(ctx context.Context, loc airquality.Location) airquality.WeatherResult {
	if p.apiKey == "" {
		return weatherFailure(p.name, errMissingAPIKey)
	}

	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s?%s", p.baseURL, p.query(loc).Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	body, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weatherFailure(p.name, err)
	}

	var payload owmObservation
	if err := json.Unmarshal(body, &payload); err != nil {
		return weatherFailure(p.name, err)
	}

	return airquality.WeatherResult{
		Status: airquality.ResultOK,
		Sample: payload.sample(p.name),
	}
}

// Forecast returns the 3-hourly forecast covering the next hours.
func (p *OpenWeatherProvider) Forecast(ctx context.Context, loc airquality.Location, hours int) ([]airquality.WeatherSample, error) {
	if p.apiKey == "" {
		return nil, errMissingAPIKey
	}
	if hours <= 0 {
		return nil, fmt.Errorf("%w: forecast hours must be positive", airquality.ErrValidation)
	}

	// The API returns 3-hour steps, capped at 40 entries (5 days).
	cnt := hours/3 + 1
	if cnt > 40 {
		cnt = 40
	}

	buildRequest := func() (*http.Request, error) {
		values := p.query(loc)
		values.Set("cnt", fmt.Sprintf("%d", cnt))
		u := fmt.Sprintf("%s?%s", p.forecastURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	body, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%s forecast: %w", p.name, err)
	}

	var payload struct {
		List []owmObservation `json:"list"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%s forecast: %w", p.name, err)
	}

	out := make([]airquality.WeatherSample, 0, len(payload.List))
	for _, item := range payload.List {
		out = append(out, item.sample(p.name))
	}
	return out, nil
}
