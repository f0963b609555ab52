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

// OpenMeteoProvider implements airquality.PollutantProvider for the Open-Meteo
// air-quality API. It needs no API key but requires coordinates.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, opts Options) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://air-quality-api.open-meteo.com/v1/air-quality",
		httpCfg: opts.httpConfig(client),
		circuit: newCircuitBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

const openMeteoCurrent = "us_aqi,pm2_5,pm10,ozone,nitrogen_dioxide,sulphur_dioxide,carbon_monoxide"

func (p *OpenMeteoProvider) FetchPollutants(ctx context.Context, loc airquality.Location) airquality.PollutantResult {
	if !hasCoordinates(loc) {
		return pollutantFailure(p.name, fmt.Errorf("%w: openmeteo requires latitude and longitude", airquality.ErrUpstreamRejected))
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Lat))
		values.Set("longitude", fmt.Sprintf("%f", loc.Lon))
		values.Set("current", openMeteoCurrent)
		values.Set("timezone", "GMT")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	body, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return pollutantFailure(p.name, err)
	}

	var payload struct {
		Current struct {
			Time            string   `json:"time"`
			USAQI           *float64 `json:"us_aqi"`
			PM25            *float64 `json:"pm2_5"`
			PM10            *float64 `json:"pm10"`
			Ozone           *float64 `json:"ozone"`
			NitrogenDioxide *float64 `json:"nitrogen_dioxide"`
			SulphurDioxide  *float64 `json:"sulphur_dioxide"`
			CarbonMonoxide  *float64 `json:"carbon_monoxide"`
		} `json:"current"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return pollutantFailure(p.name, err)
	}

	cur := payload.Current
	ts, err := time.Parse("2006-01-02T15:04", cur.Time)
	if err != nil {
		ts = time.Now().UTC()
	}

	// Gases arrive in µg/m³.
	pollutants := airquality.Pollutants{
		PM25: cur.PM25,
		PM10: cur.PM10,
		O3:   cur.Ozone,
		NO2:  cur.NitrogenDioxide,
		SO2:  cur.SulphurDioxide,
		CO:   cur.CarbonMonoxide,
	}
	pollutants.GasToCanonical()

	return airquality.PollutantResult{
		Status: airquality.ResultOK,
		Sample: airquality.PollutantSample{
			Provider:   p.name,
			Timestamp:  ts.UTC(),
			AQI:        cur.USAQI,
			Pollutants: pollutants,
		},
	}
}
