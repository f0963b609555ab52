package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
	"github.com/i474232898/air-quality-forecast/internal/common"
)

// WAQIProvider implements airquality.PollutantProvider for the World Air Quality Index feed.
type WAQIProvider struct {
	name    string
	token   string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWAQIProvider(client *http.Client, token string, opts Options) *WAQIProvider {
	return &WAQIProvider{
		name:    "waqi",
		token:   token,
		baseURL: "https://api.waqi.info/feed",
		httpCfg: opts.httpConfig(client),
		circuit: newCircuitBreaker("waqi"),
	}
}

func (p *WAQIProvider) Name() string {
	return p.name
}

type waqiFeed struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type waqiData struct {
	AQI  json.RawMessage `json:"aqi"`
	IAQI map[string]struct {
		V float64 `json:"v"`
	} `json:"iaqi"`
	Time struct {
		ISO string `json:"iso"`
		V   int64  `json:"v"`
	} `json:"time"`
}

func (p *WAQIProvider) FetchPollutants(ctx context.Context, loc airquality.Location) airquality.PollutantResult {
	if p.token == "" {
		return pollutantFailure(p.name, errMissingAPIKey)
	}

	buildRequest := func() (*http.Request, error) {
		target := "/" + url.PathEscape(loc.City) + "/"
		if hasCoordinates(loc) {
			target = fmt.Sprintf("/geo:%f;%f/", loc.Lat, loc.Lon)
		}
		values := url.Values{}
		values.Set("token", p.token)
		return http.NewRequest(http.MethodGet, p.baseURL+target+"?"+values.Encode(), nil)
	}

	body, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return pollutantFailure(p.name, err)
	}

	var feed waqiFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return pollutantFailure(p.name, err)
	}

	// WAQI answers 200 with status "error" and a message string in data.
	if feed.Status != "ok" {
		var msg string
		_ = json.Unmarshal(feed.Data, &msg)
		if common.HasAny(strings.ToLower(msg), "unknown station", "unknown city", "no station") {
			return pollutantFailure(p.name, fmt.Errorf("%w: %s", airquality.ErrUpstreamRejected, msg))
		}
		return pollutantFailure(p.name, fmt.Errorf("feed status %q: %s", feed.Status, msg))
	}

	var data waqiData
	if err := json.Unmarshal(feed.Data, &data); err != nil {
		return pollutantFailure(p.name, err)
	}

	sample := airquality.PollutantSample{
		Provider:  p.name,
		Timestamp: parseWAQITime(data.Time.ISO, data.Time.V),
		AQI:       parseWAQIIndex(data.AQI),
	}

	// iaqi values are per-pollutant sub-indices; store concentrations instead.
	concentration := func(name string) *float64 {
		entry, ok := data.IAQI[name]
		if !ok {
			return nil
		}
		c, ok := airquality.ConcentrationForIndex(name, entry.V)
		if !ok {
			return nil
		}
		return &c
	}
	sample.Pollutants = airquality.Pollutants{
		PM25: concentration("pm25"),
		PM10: concentration("pm10"),
		O3:   concentration("o3"),
		NO2:  concentration("no2"),
		SO2:  concentration("so2"),
		CO:   concentration("co"),
	}

	return airquality.PollutantResult{Status: airquality.ResultOK, Sample: sample}
}

// parseWAQIIndex accepts a number or a quoted number; "-" means no data.
func parseWAQIIndex(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &n
}

func parseWAQITime(iso string, unix int64) time.Time {
	if ts, err := time.Parse(time.RFC3339, iso); err == nil {
		return ts.UTC()
	}
	if unix > 0 {
		return time.Unix(unix, 0).UTC()
	}
	return time.Now().UTC()
}
