package airquality

import (
	"math"
	"time"
)

// MergeSamples combines the two provider sides of one fetch into a RawReading.
// Either sample may be nil. When both an upstream AQI and a locally computed
// AQI exist, the worse (higher) one wins.
func MergeSamples(loc Location, fetchedAt time.Time, w *WeatherSample, p *PollutantSample) RawReading {
	raw := RawReading{
		Location:  loc,
		FetchedAt: fetchedAt.UTC(),
	}

	if w != nil {
		weather := w.Weather
		raw.Weather = &weather
		raw.Sources = append(raw.Sources, w.Provider)
	}

	if p != nil {
		pollutants := p.Pollutants
		raw.Pollutants = &pollutants
		raw.AQI = WorseAQI(p.AQI, ComputeAQI(pollutants))
		raw.Sources = append(raw.Sources, p.Provider)
	}

	return raw
}

// Normalize turns a RawReading into a storable Reading: non-physical values are
// dropped, humidity is clamped to [0,100] and the timestamp is the UTC hour bucket.
func Normalize(raw RawReading) Reading {
	fetched := raw.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now().UTC()
	}

	r := Reading{
		LocationKey: raw.Location.Key(),
		City:        raw.Location.City,
		Country:     raw.Location.Country,
		Timestamp:   HourBucket(fetched),
		AQI:         nonNegative(raw.AQI),
		Sources:     append([]string(nil), raw.Sources...),
		CollectedAt: fetched.UTC(),
	}

	if raw.Pollutants != nil {
		p := raw.Pollutants
		r.Pollutants = Pollutants{
			PM25: nonNegative(p.PM25),
			PM10: nonNegative(p.PM10),
			O3:   nonNegative(p.O3),
			NO2:  nonNegative(p.NO2),
			SO2:  nonNegative(p.SO2),
			CO:   nonNegative(p.CO),
		}
	}

	if raw.Weather != nil {
		w := raw.Weather
		r.Weather = Weather{
			Temperature: finite(w.Temperature),
			Humidity:    clamp(finite(w.Humidity), 0, 100),
			WindSpeed:   nonNegative(w.WindSpeed),
			Pressure:    nonNegative(w.Pressure),
		}
	}

	r.Category = CategoryOf(r.AQI)
	return r
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}

func nonNegative(v *float64) *float64 {
	v = finite(v)
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

func clamp(v *float64, lo, hi float64) *float64 {
	if v == nil {
		return nil
	}
	out := math.Min(math.Max(*v, lo), hi)
	return &out
}
