package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
	"github.com/i474232898/air-quality-forecast/internal/features"
	"github.com/i474232898/air-quality-forecast/internal/model"
)

// LocationLister lists every registered location, active or not.
type LocationLister interface {
	All() []airquality.Location
}

// Publisher makes a trained artifact authoritative.
type Publisher interface {
	Swap(ctx context.Context, a *model.Artifact) error
}

// Config controls dataset sufficiency and fitting.
type Config struct {
	MinHistoryDays int
	// MinExamples is a floor; the effective minimum is never below
	// MinHistoryDays*24*MinCoverage hourly examples.
	MinExamples int
	// MinCoverage is the share of hours in MinHistoryDays that must yield an example.
	MinCoverage float64
	// TrainFraction is the chronological share used for fitting; the rest validates.
	TrainFraction float64
	Params        model.Params
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinHistoryDays: 90,
		MinExamples:    100,
		MinCoverage:    0.75,
		TrainFraction:  0.8,
		Params:         model.DefaultParams(),
	}
}

// Trainer builds datasets from stored history and fits one model per horizon.
type Trainer struct {
	store     features.RangeReader
	locations LocationLister
	publisher Publisher
	cfg       Config
	now       func() time.Time
}

func New(store features.RangeReader, locations LocationLister, publisher Publisher, cfg Config) *Trainer {
	if cfg.TrainFraction <= 0 || cfg.TrainFraction >= 1 {
		cfg.TrainFraction = 0.8
	}
	if cfg.MinCoverage <= 0 || cfg.MinCoverage > 1 {
		cfg.MinCoverage = 0.75
	}
	return &Trainer{
		store:     store,
		locations: locations,
		publisher: publisher,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type example struct {
	at       time.Time
	location string
	x        []float64
	y        float64
}

// Train fits and publishes the model for one horizon. On any error the
// previously published artifact stays authoritative.
func (t *Trainer) Train(ctx context.Context, horizon int) (*model.Artifact, error) {
	if !model.ValidHorizon(horizon) {
		return nil, fmt.Errorf("%w: horizon must be one of %v, got %d", airquality.ErrValidation, model.Horizons, horizon)
	}
	started := t.now()

	examples, from, to, continuous, err := t.dataset(ctx, horizon)
	if err != nil {
		return nil, err
	}

	minSpan := time.Duration(t.cfg.MinHistoryDays) * 24 * time.Hour
	if continuous < minSpan {
		return nil, fmt.Errorf("%w: longest continuous history is %s, need %d days",
			airquality.ErrInsufficientData, continuous.Round(time.Hour), t.cfg.MinHistoryDays)
	}
	if need := t.minExamples(); len(examples) < need {
		return nil, fmt.Errorf("%w: %d examples for %dh, need %d",
			airquality.ErrInsufficientData, len(examples), horizon, need)
	}

	sort.SliceStable(examples, func(i, j int) bool {
		if examples[i].at.Equal(examples[j].at) {
			return examples[i].location < examples[j].location
		}
		return examples[i].at.Before(examples[j].at)
	})

	split := int(math.Floor(t.cfg.TrainFraction * float64(len(examples))))
	if split < 1 || split >= len(examples) {
		return nil, fmt.Errorf("%w: cannot split %d examples", airquality.ErrInsufficientData, len(examples))
	}
	train, valid := examples[:split], examples[split:]

	X := make([][]float64, len(train))
	y := make([]float64, len(train))
	for i, ex := range train {
		X[i], y[i] = ex.x, ex.y
	}

	gbrt, err := model.Fit(X, y, t.cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("fit %dh model: %w", horizon, err)
	}

	var absSum, sqSum float64
	for _, ex := range valid {
		d := gbrt.Predict(ex.x) - ex.y
		absSum += math.Abs(d)
		sqSum += d * d
	}
	n := float64(len(valid))

	artifact := &model.Artifact{
		Horizon:            horizon,
		Version:            uuid.NewString(),
		SchemaTag:          features.SchemaTag,
		FeatureNames:       features.FeatureNames(),
		Params:             t.cfg.Params,
		Model:              gbrt,
		TrainedAt:          t.now(),
		DataFrom:           from,
		DataTo:             to,
		TrainExamples:      len(train),
		ValidationExamples: len(valid),
		ValidationMAE:      absSum / n,
		ValidationRMSE:     math.Sqrt(sqSum / n),
	}

	if err := t.publisher.Swap(ctx, artifact); err != nil {
		return nil, err
	}

	log.Printf("trainer: %dh trained on %d examples in %s (val MAE %.2f, RMSE %.2f)",
		horizon, len(train), t.now().Sub(started).Round(time.Millisecond), artifact.ValidationMAE, artifact.ValidationRMSE)
	return artifact, nil
}

func (t *Trainer) minExamples() int {
	need := int(math.Ceil(float64(t.cfg.MinHistoryDays*24) * t.cfg.MinCoverage))
	if t.cfg.MinExamples > need {
		return t.cfg.MinExamples
	}
	return need
}

// longestRun returns the longest stretch of the series in which no two
// consecutive AQI values are more than MaxGapHours missing hours apart.
func longestRun(series []airquality.Reading) time.Duration {
	maxStep := time.Duration(features.MaxGapHours+1) * time.Hour
	var (
		best        time.Duration
		start, prev time.Time
	)
	for _, r := range series {
		if r.AQI == nil {
			continue
		}
		if prev.IsZero() || r.Timestamp.Sub(prev) > maxStep {
			start = r.Timestamp
		}
		prev = r.Timestamp
		if d := prev.Sub(start); d > best {
			best = d
		}
	}
	return best
}

// dataset builds (features, label) pairs across all registered locations. It
// reports the overall span of stored history and the longest continuous run
// found at any single location.
func (t *Trainer) dataset(ctx context.Context, horizon int) ([]example, time.Time, time.Time, time.Duration, error) {
	var (
		out        []example
		from, to   time.Time
		continuous time.Duration
	)
	h := time.Duration(horizon) * time.Hour

	for _, loc := range t.locations.All() {
		if err := ctx.Err(); err != nil {
			return nil, time.Time{}, time.Time{}, 0, err
		}

		series, err := t.store.Range(ctx, loc.Key(), time.Time{}, t.now())
		if err != nil {
			return nil, time.Time{}, time.Time{}, 0, fmt.Errorf("load series for %s: %w", loc.Key(), err)
		}
		if len(series) == 0 {
			continue
		}

		first, last := series[0].Timestamp, series[len(series)-1].Timestamp
		if from.IsZero() || first.Before(from) {
			from = first
		}
		if last.After(to) {
			to = last
		}
		if run := longestRun(series); run > continuous {
			continuous = run
		}

		labels := make(map[int64]float64, len(series))
		for _, r := range series {
			if r.AQI != nil {
				labels[r.Timestamp.Unix()] = *r.AQI
			}
		}

		for _, r := range series {
			label, ok := labels[r.Timestamp.Add(h).Unix()]
			if !ok {
				continue
			}
			vec, err := features.BuildFromSeries(series, r.Timestamp)
			if errors.Is(err, airquality.ErrInsufficientHistory) {
				continue
			}
			if err != nil {
				return nil, time.Time{}, time.Time{}, 0, err
			}
			out = append(out, example{at: r.Timestamp, location: loc.Key(), x: vec.Values(), y: label})
		}
	}

	return out, from, to, continuous, nil
}

// TrainAll trains every horizon and joins the failures.
func (t *Trainer) TrainAll(ctx context.Context) error {
	var errs []error
	for _, h := range model.Horizons {
		if _, err := t.Train(ctx, h); err != nil {
			log.Printf("trainer: %dh failed: %v", h, err)
			errs = append(errs, fmt.Errorf("%dh: %w", h, err))
		}
	}
	return errors.Join(errs...)
}
