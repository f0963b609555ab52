package trainer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
	"github.com/i474232898/air-quality-forecast/internal/features"
	"github.com/i474232898/air-quality-forecast/internal/model"
	"github.com/i474232898/air-quality-forecast/internal/store"
)

var delhi = airquality.Location{City: "Delhi", Country: "India", Active: true}

type staticLocations []airquality.Location

func (s staticLocations) All() []airquality.Location { return s }

var end = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// seed stores `days` of hourly readings ending at end with a daily AQI cycle.
func seed(t *testing.T, days int) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore(0, 0)
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	for ts := start; !ts.After(end); ts = ts.Add(time.Hour) {
		aqi := 100 + 40*math.Sin(2*math.Pi*float64(ts.Hour())/24)
		r := airquality.Reading{
			LocationKey: delhi.Key(),
			Timestamp:   ts,
			AQI:         airquality.Float(aqi),
			Pollutants:  airquality.Pollutants{PM25: airquality.Float(aqi / 2)},
		}
		if _, _, err := s.InsertIfAbsent(context.Background(), r); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.Trees = 60
	return cfg
}

func newTrainer(s *store.MemoryStore, reg *model.Registry, cfg Config) *Trainer {
	tr := New(s, staticLocations{delhi}, reg, cfg)
	tr.now = func() time.Time { return end.Add(time.Hour) }
	return tr
}

func TestTrainRejectsUnknownHorizon(t *testing.T) {
	tr := newTrainer(seed(t, 1), model.NewRegistry(nil), fastConfig())
	if _, err := tr.Train(context.Background(), 12); !errors.Is(err, airquality.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTrainWithShortHistoryKeepsPreviousArtifact(t *testing.T) {
	reg := model.NewRegistry(nil)
	prior := &model.Artifact{Horizon: 24, Version: "prior", SchemaTag: features.SchemaTag, Model: &model.GBRT{Base: 80}}
	if err := reg.Swap(context.Background(), prior); err != nil {
		t.Fatal(err)
	}

	tr := newTrainer(seed(t, 10), reg, fastConfig())
	if _, err := tr.Train(context.Background(), 24); !errors.Is(err, airquality.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}

	got, err := reg.Get(24)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "prior" {
		t.Fatalf("previous artifact replaced by failed run: %s", got.Version)
	}
}

func TestTrainIgnoresStrayOldReading(t *testing.T) {
	reg := model.NewRegistry(nil)
	prior := &model.Artifact{Horizon: 24, Version: "prior", SchemaTag: features.SchemaTag, Model: &model.GBRT{Base: 80}}
	if err := reg.Swap(context.Background(), prior); err != nil {
		t.Fatal(err)
	}

	s := seed(t, 10)
	stray := airquality.Reading{LocationKey: delhi.Key(), Timestamp: end.Add(-91 * 24 * time.Hour), AQI: airquality.Float(90)}
	if _, _, err := s.InsertIfAbsent(context.Background(), stray); err != nil {
		t.Fatal(err)
	}

	tr := newTrainer(s, reg, fastConfig())
	if _, err := tr.Train(context.Background(), 24); !errors.Is(err, airquality.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if got, _ := reg.Get(24); got.Version != "prior" {
		t.Fatalf("previous artifact replaced: %s", got.Version)
	}
}

func TestLongestRun(t *testing.T) {
	at := func(h int) airquality.Reading {
		return airquality.Reading{Timestamp: end.Add(time.Duration(h) * time.Hour), AQI: airquality.Float(50)}
	}
	gap := airquality.Reading{Timestamp: end.Add(5 * time.Hour)}

	tests := []struct {
		name   string
		series []airquality.Reading
		want   time.Duration
	}{
		{"empty", nil, 0},
		{"single", []airquality.Reading{at(0)}, 0},
		{"bridged gap", []airquality.Reading{at(0), at(1), at(1 + features.MaxGapHours + 1)}, time.Duration(features.MaxGapHours+2) * time.Hour},
		{"broken run", []airquality.Reading{at(-300), at(0), at(1), at(2)}, 2 * time.Hour},
		{"nil aqi is a gap", []airquality.Reading{at(0), gap, at(20), at(23)}, 3 * time.Hour},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := longestRun(tc.series); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestMinExamplesDerivedFromHistoryDays(t *testing.T) {
	cfg := fastConfig()
	cfg.MinHistoryDays = 5
	cfg.MinExamples = 1

	tr := newTrainer(seed(t, 6), model.NewRegistry(nil), cfg)
	if got := tr.minExamples(); got != 90 {
		t.Fatalf("expected 5 days at 75%% coverage to need 90 examples, got %d", got)
	}
	// 6 continuous days pass the span check, but a 72h label leaves fewer than 90 examples.
	if _, err := tr.Train(context.Background(), 72); !errors.Is(err, airquality.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestTrainTooFewExamples(t *testing.T) {
	cfg := fastConfig()
	cfg.MinHistoryDays = 1
	cfg.MinExamples = 10000

	tr := newTrainer(seed(t, 5), model.NewRegistry(nil), cfg)
	if _, err := tr.Train(context.Background(), 24); !errors.Is(err, airquality.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestTrainPublishesArtifact(t *testing.T) {
	reg := model.NewRegistry(nil)
	tr := newTrainer(seed(t, 95), reg, fastConfig())

	a, err := tr.Train(context.Background(), 48)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	served, err := reg.Get(48)
	if err != nil {
		t.Fatal(err)
	}
	if served.Version != a.Version || a.Version == "" {
		t.Fatalf("trained artifact not served: %q vs %q", served.Version, a.Version)
	}
	if a.SchemaTag != features.SchemaTag || len(a.FeatureNames) != len(features.FeatureNames()) {
		t.Fatal("artifact must carry the feature schema")
	}
	if a.TrainExamples == 0 || a.ValidationExamples == 0 {
		t.Fatalf("expected non-empty split, got %d/%d", a.TrainExamples, a.ValidationExamples)
	}
	ratio := float64(a.TrainExamples) / float64(a.TrainExamples+a.ValidationExamples)
	if ratio < 0.79 || ratio > 0.81 {
		t.Fatalf("expected an 80/20 split, got %.3f", ratio)
	}
	if !a.DataTo.After(a.DataFrom) || a.DataTo.After(end) {
		t.Fatalf("bad data span %s..%s", a.DataFrom, a.DataTo)
	}
	if math.IsNaN(a.ValidationMAE) || a.ValidationRMSE < a.ValidationMAE {
		t.Fatalf("implausible metrics: MAE %v RMSE %v", a.ValidationMAE, a.ValidationRMSE)
	}
	// The cycle repeats every 24h, so a 48h model should do far better than the 40 point amplitude.
	if a.ValidationMAE > 15 {
		t.Fatalf("validation MAE too high: %.2f", a.ValidationMAE)
	}

	if _, err := reg.Get(24); !errors.Is(err, airquality.ErrModelUnavailable) {
		t.Fatalf("other horizons must stay untouched, got %v", err)
	}
}

func TestTrainAllJoinsFailures(t *testing.T) {
	tr := newTrainer(seed(t, 3), model.NewRegistry(nil), fastConfig())
	err := tr.TrainAll(context.Background())
	if !errors.Is(err, airquality.ErrInsufficientData) {
		t.Fatalf("expected joined ErrInsufficientData, got %v", err)
	}
}
