package predictor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
	"github.com/i474232898/air-quality-forecast/internal/features"
	"github.com/i474232898/air-quality-forecast/internal/model"
)

// forecastTolerance is how far a projected weather sample may sit from the target hour.
const forecastTolerance = 3 * time.Hour

// ReadingSource is the read-only store slice the predictor needs.
type ReadingSource interface {
	features.RangeReader
	LatestWithAQI(ctx context.Context, key string) (airquality.Reading, error)
}

// ArtifactSource resolves the served model for a horizon.
type ArtifactSource interface {
	Get(h int) (*model.Artifact, error)
}

// Prediction is the forecast for one horizon.
type Prediction struct {
	Hours          int       `json:"hours"`
	Timestamp      time.Time `json:"timestamp"`
	PredictedAQI   float64   `json:"predicted_aqi"`
	Category       string    `json:"category"`
	Temperature    *float64  `json:"temperature"`
	Humidity       *float64  `json:"humidity"`
	ModelBacked    bool      `json:"model_backed"`
	ModelVersion   string    `json:"model_version,omitempty"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
}

// Result is the full prediction payload for one location.
type Result struct {
	City        string       `json:"city"`
	Country     string       `json:"country"`
	CurrentAQI  float64      `json:"current_aqi"`
	Category    string       `json:"aqi_category"`
	Predictions []Prediction `json:"predictions"`
	HealthTips  []string     `json:"health_tips"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Predictor combines stored history, served artifacts and projected weather.
type Predictor struct {
	store      ReadingSource
	builder    *features.Builder
	models     ArtifactSource
	forecaster airquality.WeatherForecaster
	now        func() time.Time
}

// New creates a Predictor. forecaster may be nil.
func New(store ReadingSource, models ArtifactSource, forecaster airquality.WeatherForecaster) *Predictor {
	return &Predictor{
		store:      store,
		builder:    features.NewBuilder(store),
		models:     models,
		forecaster: forecaster,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeHorizons validates, de-duplicates and sorts the requested horizons.
func NormalizeHorizons(hours []int) ([]int, error) {
	if len(hours) == 0 {
		return nil, fmt.Errorf("%w: at least one horizon is required", airquality.ErrValidation)
	}
	seen := make(map[int]bool, len(hours))
	out := make([]int, 0, len(hours))
	for _, h := range hours {
		if !model.ValidHorizon(h) {
			return nil, fmt.Errorf("%w: horizon must be one of %v, got %d", airquality.ErrValidation, model.Horizons, h)
		}
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Ints(out)
	return out, nil
}

// Predict forecasts AQI for loc at each horizon. Horizons without a usable
// model fall back to persistence of the current AQI.
func (p *Predictor) Predict(ctx context.Context, loc airquality.Location, horizons []int) (Result, error) {
	hs, err := NormalizeHorizons(horizons)
	if err != nil {
		return Result{}, err
	}

	latest, err := p.store.LatestWithAQI(ctx, loc.Key())
	if errors.Is(err, airquality.ErrNotFound) {
		return Result{}, fmt.Errorf("%w: no AQI recorded for %s", airquality.ErrInsufficientHistory, loc.Key())
	}
	if err != nil {
		return Result{}, fmt.Errorf("load current AQI for %s: %w", loc.Key(), err)
	}
	current := *latest.AQI

	now := p.now()
	ref := airquality.HourBucket(now)

	vec, vecErr := p.builder.Build(ctx, loc, ref)
	if vecErr != nil && !errors.Is(vecErr, airquality.ErrInsufficientHistory) {
		return Result{}, vecErr
	}
	var x []float64
	if vecErr == nil {
		x = vec.Values()
	}

	projected := p.projectedWeather(ctx, loc, hs[len(hs)-1])

	res := Result{
		City:        loc.City,
		Country:     loc.Country,
		CurrentAQI:  current,
		Category:    airquality.CategoryName(current),
		Predictions: make([]Prediction, 0, len(hs)),
		GeneratedAt: now,
	}

	worst := airquality.Categories[0]
	for _, h := range hs {
		target := ref.Add(time.Duration(h) * time.Hour)
		pred := Prediction{Hours: h, Timestamp: target}

		value, version, reason := p.predictOne(h, x, vecErr, current)
		if reason == "" {
			pred.ModelBacked = true
			pred.ModelVersion = version
		} else {
			pred.FallbackReason = reason
			log.Printf("predictor: %s %dh naive fallback: %s", loc.Key(), h, reason)
		}

		pred.PredictedAQI = clampRound(value)
		pred.Category = airquality.CategoryName(pred.PredictedAQI)
		if ws, ok := nearest(projected, target); ok {
			pred.Temperature = ws.Weather.Temperature
			pred.Humidity = ws.Weather.Humidity
		}

		if c := airquality.CategoryFor(pred.PredictedAQI); c.Level > worst.Level {
			worst = c
		}
		res.Predictions = append(res.Predictions, pred)
	}
	res.HealthTips = airquality.HealthTips(worst.Min)

	return res, nil
}

// predictOne returns the model output or the naive value with the reason it was used.
func (p *Predictor) predictOne(h int, x []float64, vecErr error, current float64) (float64, string, string) {
	if vecErr != nil {
		return current, "", vecErr.Error()
	}
	a, err := p.models.Get(h)
	if err != nil {
		return current, "", err.Error()
	}
	if a.SchemaTag != features.SchemaTag || a.Model == nil || len(a.FeatureNames) != len(x) {
		return current, "", fmt.Sprintf("%v: artifact %s has schema %q, want %q",
			airquality.ErrModelUnavailable, a.Version, a.SchemaTag, features.SchemaTag)
	}
	return a.Predict(x), a.Version, ""
}

func (p *Predictor) projectedWeather(ctx context.Context, loc airquality.Location, hours int) []airquality.WeatherSample {
	if p.forecaster == nil {
		return nil
	}
	samples, err := p.forecaster.Forecast(ctx, loc, hours)
	if err != nil {
		log.Printf("predictor: weather forecast for %s unavailable: %v", loc.Key(), err)
		return nil
	}
	return samples
}

func nearest(samples []airquality.WeatherSample, target time.Time) (airquality.WeatherSample, bool) {
	var (
		best  airquality.WeatherSample
		bestD time.Duration = -1
	)
	for _, s := range samples {
		d := s.Timestamp.Sub(target)
		if d < 0 {
			d = -d
		}
		if d <= forecastTolerance && (bestD < 0 || d < bestD) {
			best, bestD = s, d
		}
	}
	return best, bestD >= 0
}

func clampRound(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(0, math.Min(500, v))
	return math.Round(v*10) / 10
}
