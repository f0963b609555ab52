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

// WeatherAPIProvider implements airquality.WeatherProvider for WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, opts Options) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/current.json",
		httpCfg: opts.httpConfig(client),
		circuit: newCircuitBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) FetchWeather(ctx context.Context, loc airquality.Location) airquality.WeatherResult {
	if p.apiKey == "" {
		return weatherFailure(p.name, errMissingAPIKey)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI uses "q" for location; it accepts "city,country" or "lat,lon".
		if hasCoordinates(loc) {
			values.Set("q", fmt.Sprintf("%f,%f", loc.Lat, loc.Lon))
		} else {
			q := loc.City
			if loc.Country != "" {
				q = fmt.Sprintf("%s,%s", loc.City, loc.Country)
			}
			values.Set("q", q)
		}

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	// Unknown locations come back as 400 with error code 1006.
	body, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weatherFailure(p.name, err)
	}

	var payload struct {
		Current struct {
			LastUpdatedEpoch int64    `json:"last_updated_epoch"`
			TempC            *float64 `json:"temp_c"`
			Humidity         *float64 `json:"humidity"`
			WindKph          *float64 `json:"wind_kph"`
			PressureMb       *float64 `json:"pressure_mb"`
		} `json:"current"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return weatherFailure(p.name, err)
	}

	ts := time.Now().UTC()
	if payload.Current.LastUpdatedEpoch > 0 {
		ts = time.Unix(payload.Current.LastUpdatedEpoch, 0).UTC()
	}

	var windMS *float64
	if payload.Current.WindKph != nil {
		v := *payload.Current.WindKph / 3.6
		windMS = &v
	}

	return airquality.WeatherResult{
		Status: airquality.ResultOK,
		Sample: airquality.WeatherSample{
			Provider:  p.name,
			Timestamp: ts,
			Weather: airquality.Weather{
				Temperature: payload.Current.TempC,
				Humidity:    payload.Current.Humidity,
				WindSpeed:   windMS,
				Pressure:    payload.Current.PressureMb,
			},
		},
	}
}
