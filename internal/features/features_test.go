package features

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
	"github.com/i474232898/air-quality-forecast/internal/store"
)

var ref = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) // Wednesday

// hourlySeries returns readings for hours T-n..T-1 with AQI = 100 + offset,
// so the reading at T-k has AQI 100+k.
func hourlySeries(n int, skip map[int]bool) []airquality.Reading {
	var out []airquality.Reading
	for k := n; k >= 1; k-- {
		if skip[k] {
			continue
		}
		out = append(out, airquality.Reading{
			LocationKey: "delhi:india",
			Timestamp:   ref.Add(-time.Duration(k) * time.Hour),
			AQI:         airquality.Float(float64(100 + k)),
		})
	}
	return out
}

func TestLagOrderMostRecentFirst(t *testing.T) {
	v, err := BuildFromSeries(hourlySeries(30, nil), ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < LagHours; i++ {
		if want := float64(100 + i + 1); v.Lags[i] != want {
			t.Fatalf("lag %d = %v, want %v", i+1, v.Lags[i], want)
		}
	}
}

func TestGapsAreForwardFilled(t *testing.T) {
	// T-3..T-5 missing: each takes the nearest earlier value (T-6 => 106).
	v, err := BuildFromSeries(hourlySeries(30, map[int]bool{3: true, 4: true, 5: true}), ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, k := range []int{3, 4, 5} {
		if v.Lags[k-1] != 106 {
			t.Fatalf("lag %d = %v, want 106", k, v.Lags[k-1])
		}
	}
	if v.Lags[1] != 102 {
		t.Fatalf("lag 2 = %v, want 102", v.Lags[1])
	}
}

func TestGapLimits(t *testing.T) {
	six := map[int]bool{}
	for k := 5; k <= 10; k++ {
		six[k] = true
	}
	if _, err := BuildFromSeries(hourlySeries(30, six), ref); err != nil {
		t.Fatalf("six missing hours must be bridged: %v", err)
	}

	seven := map[int]bool{}
	for k := 5; k <= 11; k++ {
		seven[k] = true
	}
	if _, err := BuildFromSeries(hourlySeries(30, seven), ref); !errors.Is(err, airquality.ErrInsufficientHistory) {
		t.Fatalf("seven missing hours: expected ErrInsufficientHistory, got %v", err)
	}

	trailing := map[int]bool{}
	for k := 1; k <= 7; k++ {
		trailing[k] = true
	}
	if _, err := BuildFromSeries(hourlySeries(30, trailing), ref); !errors.Is(err, airquality.ErrInsufficientHistory) {
		t.Fatalf("trailing gap: expected ErrInsufficientHistory, got %v", err)
	}
}

func TestRequiresValueAtOrBeforeOldestLag(t *testing.T) {
	if _, err := BuildFromSeries(hourlySeries(23, nil), ref); !errors.Is(err, airquality.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
	if _, err := BuildFromSeries(hourlySeries(24, nil), ref); err != nil {
		t.Fatalf("24 hours of history must be enough: %v", err)
	}
	if _, err := BuildFromSeries(nil, ref); !errors.Is(err, airquality.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory for empty series, got %v", err)
	}
}

func TestNilAQIIsAGap(t *testing.T) {
	series := hourlySeries(30, nil)
	for i := range series {
		k := int(ref.Sub(series[i].Timestamp) / time.Hour)
		if k >= 2 && k <= 9 {
			series[i].AQI = nil
		}
	}
	if _, err := BuildFromSeries(series, ref); !errors.Is(err, airquality.ErrInsufficientHistory) {
		t.Fatalf("expected readings without AQI to count as gaps, got %v", err)
	}
}

func TestCyclicalFeatures(t *testing.T) {
	v, err := BuildFromSeries(hourlySeries(30, nil), ref.Add(17*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !v.ReferenceTime.Equal(ref) {
		t.Fatalf("reference time not truncated: %v", v.ReferenceTime)
	}
	// 12:00 => angle pi.
	if math.Abs(v.HourSin) > 1e-9 || math.Abs(v.HourCos+1) > 1e-9 {
		t.Fatalf("hour features = (%v, %v)", v.HourSin, v.HourCos)
	}
	// Wednesday => 3/7 of a turn.
	if math.Abs(v.DowSin-math.Sin(2*math.Pi*3/7)) > 1e-9 {
		t.Fatalf("dow sin = %v", v.DowSin)
	}
	// March => index 2.
	if math.Abs(v.MonthCos-math.Cos(2*math.Pi*2/12)) > 1e-9 {
		t.Fatalf("month cos = %v", v.MonthCos)
	}
}

func TestSnapshotUsesLatestNonNil(t *testing.T) {
	series := hourlySeries(30, nil)
	series[len(series)-3].Pollutants.PM25 = airquality.Float(55)
	series[len(series)-2].Pollutants.PM25 = airquality.Float(60)
	series[len(series)-2].Weather.Temperature = airquality.Float(21)
	series = append(series, airquality.Reading{
		LocationKey: "delhi:india",
		Timestamp:   ref,
		AQI:         airquality.Float(99),
		Weather:     airquality.Weather{Humidity: airquality.Float(45)},
	})
	// after T: must be ignored
	series = append(series, airquality.Reading{
		Timestamp: ref.Add(time.Hour),
		AQI:       airquality.Float(1),
		Weather:   airquality.Weather{Humidity: airquality.Float(99)},
	})

	v, err := BuildFromSeries(series, ref)
	if err != nil {
		t.Fatal(err)
	}
	s := v.Snapshot
	if s.PM25 != 60 || s.Temperature != 21 || s.Humidity != 45 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if s.NO2 != 0 {
		t.Fatalf("absent field must be 0, got %v", s.NO2)
	}
}

func TestValuesMatchNames(t *testing.T) {
	v, err := BuildFromSeries(hourlySeries(30, nil), ref)
	if err != nil {
		t.Fatal(err)
	}
	names := FeatureNames()
	if len(names) != 40 || len(v.Values()) != len(names) {
		t.Fatalf("expected 40 features, got %d names and %d values", len(names), len(v.Values()))
	}
	if names[0] != "aqi_lag_1h" || v.Values()[0] != v.Lags[0] {
		t.Fatal("first feature must be the 1h lag")
	}
}

func TestBuildReadsStoreWindow(t *testing.T) {
	s := store.NewMemoryStore(0, 0)
	ctx := context.Background()
	for _, r := range hourlySeries(48, nil) {
		if _, _, err := s.InsertIfAbsent(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	b := NewBuilder(s)
	loc := airquality.Location{City: "Delhi", Country: "India"}
	fromStore, err := b.Build(ctx, loc, ref)
	if err != nil {
		t.Fatal(err)
	}
	direct, err := BuildFromSeries(hourlySeries(48, nil), ref)
	if err != nil {
		t.Fatal(err)
	}
	if fromStore.Lags != direct.Lags {
		t.Fatal("store-backed and series-backed builds must agree")
	}
}
