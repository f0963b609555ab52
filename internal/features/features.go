package features

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

const (
	// SchemaTag identifies the feature layout. Artifacts trained on another
	// layout are never used for inference.
	SchemaTag = "aqi-lag24-cyc-v1"

	// LagHours is the number of hourly AQI lags.
	LagHours = 24
	// MaxGapHours is the longest run of missing hours that forward-fill may bridge.
	MaxGapHours = 6
	// Lookback is how far back Build reads history.
	Lookback = 30 * time.Hour
)

// Snapshot holds the latest known pollutant and weather values at reference time.
type Snapshot struct {
	PM25        float64 `json:"pm25"`
	PM10        float64 `json:"pm10"`
	O3          float64 `json:"o3"`
	NO2         float64 `json:"no2"`
	SO2         float64 `json:"so2"`
	CO          float64 `json:"co"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Pressure    float64 `json:"pressure"`
}

// Vector is the model input for one location at one reference hour.
type Vector struct {
	ReferenceTime time.Time         `json:"reference_time"`
	Lags          [LagHours]float64 `json:"lags"` // Lags[0] is T-1h
	HourSin       float64           `json:"hour_sin"`
	HourCos       float64           `json:"hour_cos"`
	DowSin        float64           `json:"dow_sin"`
	DowCos        float64           `json:"dow_cos"`
	MonthSin      float64           `json:"month_sin"`
	MonthCos      float64           `json:"month_cos"`
	Snapshot      Snapshot          `json:"snapshot"`
}

// Values flattens the vector in FeatureNames order.
func (v Vector) Values() []float64 {
	out := make([]float64, 0, LagHours+16)
	out = append(out, v.Lags[:]...)
	out = append(out, v.HourSin, v.HourCos, v.DowSin, v.DowCos, v.MonthSin, v.MonthCos)
	s := v.Snapshot
	out = append(out, s.PM25, s.PM10, s.O3, s.NO2, s.SO2, s.CO)
	out = append(out, s.Temperature, s.Humidity, s.WindSpeed, s.Pressure)
	return out
}

// FeatureNames returns the ordered names matching Values.
func FeatureNames() []string {
	names := make([]string, 0, LagHours+16)
	for i := 1; i <= LagHours; i++ {
		names = append(names, fmt.Sprintf("aqi_lag_%dh", i))
	}
	names = append(names,
		"hour_sin", "hour_cos", "dow_sin", "dow_cos", "month_sin", "month_cos",
		"pm25", "pm10", "o3", "no2", "so2", "co",
		"temperature", "humidity", "wind_speed", "pressure",
	)
	return names
}

// RangeReader is the store slice the builder needs.
type RangeReader interface {
	Range(ctx context.Context, key string, from, to time.Time) ([]airquality.Reading, error)
}

// Builder assembles feature vectors from stored history.
type Builder struct {
	store RangeReader
}

func NewBuilder(store RangeReader) *Builder {
	return &Builder{store: store}
}

// Build loads [T-30h, T] for loc and builds the vector at hour T.
func (b *Builder) Build(ctx context.Context, loc airquality.Location, t time.Time) (Vector, error) {
	t = airquality.HourBucket(t)
	series, err := b.store.Range(ctx, loc.Key(), t.Add(-Lookback), t)
	if err != nil {
		return Vector{}, fmt.Errorf("load history for %s: %w", loc.Key(), err)
	}
	return BuildFromSeries(series, t)
}

// BuildFromSeries builds the vector at hour T from an oldest-first series.
// Only readings inside [T-30h, T] are used, so a location's full history can
// be passed directly.
func BuildFromSeries(series []airquality.Reading, t time.Time) (Vector, error) {
	t = airquality.HourBucket(t)
	from := t.Add(-Lookback)

	lo := sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(from) })
	hi := sort.Search(len(series), func(i int) bool { return series[i].Timestamp.After(t) })
	window := series[lo:hi]

	aqiAt := make(map[int64]float64, len(window))
	for _, r := range window {
		if r.AQI != nil {
			aqiAt[r.Timestamp.Unix()] = *r.AQI
		}
	}

	// Forward-fill hourly AQI over [from, T-1h].
	hours := int(Lookback/time.Hour) // number of hours in [from, T)
	filled := make([]float64, hours)
	var (
		seen      bool
		firstSeen int
		last      float64
		gap       int
	)
	for h := 0; h < hours; h++ {
		ts := from.Add(time.Duration(h) * time.Hour)
		if v, ok := aqiAt[ts.Unix()]; ok {
			if !seen {
				firstSeen = h
			}
			seen = true
			last = v
			gap = 0
		} else if seen {
			gap++
			if gap > MaxGapHours {
				return Vector{}, fmt.Errorf("%w: %d consecutive hours missing before %s",
					airquality.ErrInsufficientHistory, gap, ts.Format(time.RFC3339))
			}
		}
		filled[h] = last
	}

	// The oldest lag (T-24h) sits at index hours-LagHours.
	if !seen || firstSeen > hours-LagHours {
		return Vector{}, fmt.Errorf("%w: no AQI at or before %s",
			airquality.ErrInsufficientHistory, t.Add(-LagHours*time.Hour).Format(time.RFC3339))
	}

	v := Vector{ReferenceTime: t}
	for i := 1; i <= LagHours; i++ {
		v.Lags[i-1] = filled[hours-i]
	}

	v.HourSin, v.HourCos = cyclical(float64(t.Hour()), 24)
	v.DowSin, v.DowCos = cyclical(float64(t.Weekday()), 7)
	v.MonthSin, v.MonthCos = cyclical(float64(t.Month()-1), 12)
	v.Snapshot = snapshot(window)

	return v, nil
}

func cyclical(x, period float64) (float64, float64) {
	angle := 2 * math.Pi * x / period
	return math.Sin(angle), math.Cos(angle)
}

// snapshot takes the most recent non-nil value per field; absent fields are 0.
func snapshot(window []airquality.Reading) Snapshot {
	var s Snapshot
	pick := func(dst *float64, v *float64, set *bool) {
		if v != nil && !*set {
			*dst = *v
			*set = true
		}
	}
	var set [10]bool
	for i := len(window) - 1; i >= 0; i-- {
		r := window[i]
		pick(&s.PM25, r.Pollutants.PM25, &set[0])
		pick(&s.PM10, r.Pollutants.PM10, &set[1])
		pick(&s.O3, r.Pollutants.O3, &set[2])
		pick(&s.NO2, r.Pollutants.NO2, &set[3])
		pick(&s.SO2, r.Pollutants.SO2, &set[4])
		pick(&s.CO, r.Pollutants.CO, &set[5])
		pick(&s.Temperature, r.Weather.Temperature, &set[6])
		pick(&s.Humidity, r.Weather.Humidity, &set[7])
		pick(&s.WindSpeed, r.Weather.WindSpeed, &set[8])
		pick(&s.Pressure, r.Weather.Pressure, &set[9])
	}
	return s
}
