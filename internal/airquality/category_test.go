package airquality

import (
	"math"
	"testing"
	"time"
)

func TestCategoryFor(t *testing.T) {
	cases := []struct {
		aqi  float64
		want string
	}{
		{0, "Good"},
		{50, "Good"},
		{50.5, "Moderate"},
		{51, "Moderate"},
		{100, "Moderate"},
		{101, "Unhealthy for Sensitive Groups"},
		{156, "Unhealthy"},
		{200, "Unhealthy"},
		{287, "Very Unhealthy"},
		{301, "Hazardous"},
		{500, "Hazardous"},
		{742, "Hazardous"},
	}

	for _, tc := range cases {
		if got := CategoryName(tc.aqi); got != tc.want {
			t.Errorf("CategoryName(%v) = %q, want %q", tc.aqi, got, tc.want)
		}
	}
}

func TestCategoryOfNil(t *testing.T) {
	if got := CategoryOf(nil); got != CategoryUnknown {
		t.Fatalf("expected %q, got %q", CategoryUnknown, got)
	}
}

func TestHealthTipsReturnsCopy(t *testing.T) {
	tips := HealthTips(287)
	if len(tips) != 5 {
		t.Fatalf("expected 5 tips for Very Unhealthy, got %d", len(tips))
	}
	tips[0] = "changed"
	if HealthTips(287)[0] == "changed" {
		t.Fatal("HealthTips must not expose the shared table")
	}
}

func TestComputeAQI(t *testing.T) {
	cases := []struct {
		name string
		p    Pollutants
		want float64
	}{
		{"pm25 good edge", Pollutants{PM25: Float(12)}, 50},
		{"pm25 unhealthy", Pollutants{PM25: Float(89)}, 168},
		{"max sub-index wins", Pollutants{PM25: Float(10), PM10: Float(200)}, 123},
		{"beyond table", Pollutants{PM25: Float(900)}, 500},
		{"co ppm", Pollutants{CO: Float(4.4)}, 50},
	}

	for _, tc := range cases {
		got := ComputeAQI(tc.p)
		if got == nil {
			t.Fatalf("%s: expected AQI, got nil", tc.name)
		}
		if *got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, *got, tc.want)
		}
	}

	if ComputeAQI(Pollutants{}) != nil {
		t.Fatal("expected nil AQI when no pollutants are present")
	}
}

func TestConcentrationForIndexInvertsSubIndex(t *testing.T) {
	for _, name := range []string{"pm25", "pm10", "o3", "no2", "so2", "co"} {
		for _, idx := range []float64{10, 50, 75, 140, 180, 250, 350, 450} {
			c, ok := ConcentrationForIndex(name, idx)
			if !ok {
				t.Fatalf("%s: expected known pollutant", name)
			}
			back := subIndex(c, breakpointTables[name])
			if math.Abs(back-idx) > 0.5 {
				t.Errorf("%s idx %v: round trip gave %v", name, idx, back)
			}
		}
	}

	if _, ok := ConcentrationForIndex("dew", 10); ok {
		t.Fatal("expected unknown pollutant to report false")
	}
}

func TestWorseAQI(t *testing.T) {
	if WorseAQI(nil, nil) != nil {
		t.Fatal("expected nil")
	}
	if got := WorseAQI(Float(80), nil); *got != 80 {
		t.Fatalf("got %v", *got)
	}
	if got := WorseAQI(Float(80), Float(120)); *got != 120 {
		t.Fatalf("got %v", *got)
	}
}

func TestGasToCanonical(t *testing.T) {
	p := Pollutants{O3: Float(100), CO: Float(1145.6)}
	p.GasToCanonical()

	if math.Abs(*p.O3-50.94) > 0.01 {
		t.Errorf("o3 ppb = %v", *p.O3)
	}
	if math.Abs(*p.CO-1.0) > 0.01 {
		t.Errorf("co ppm = %v", *p.CO)
	}
	if p.NO2 != nil {
		t.Error("absent gases must stay nil")
	}
}

func TestMergeSamplesTakesWorseAQI(t *testing.T) {
	loc := Location{City: "Mumbai", Country: "IN"}
	now := time.Date(2024, 5, 1, 10, 17, 0, 0, time.UTC)

	raw := MergeSamples(loc, now,
		&WeatherSample{Provider: "openweathermap", Weather: Weather{Temperature: Float(31)}},
		&PollutantSample{Provider: "waqi", AQI: Float(120), Pollutants: Pollutants{PM25: Float(89)}},
	)

	if raw.AQI == nil || *raw.AQI != 168 {
		t.Fatalf("expected locally computed 168 to win, got %v", raw.AQI)
	}
	if len(raw.Sources) != 2 {
		t.Fatalf("expected both sources, got %v", raw.Sources)
	}

	weatherOnly := MergeSamples(loc, now, &WeatherSample{Provider: "openweathermap"}, nil)
	if weatherOnly.AQI != nil || weatherOnly.Pollutants != nil {
		t.Fatal("pollutant side must stay nil when its provider failed")
	}
}

func TestNormalize(t *testing.T) {
	loc := Location{City: "Delhi", Country: "IN"}
	fetched := time.Date(2024, 5, 1, 10, 59, 59, 0, time.FixedZone("IST", 19800))

	r := Normalize(RawReading{
		Location:  loc,
		FetchedAt: fetched,
		AQI:       Float(156),
		Pollutants: &Pollutants{
			PM25: Float(-3),
			PM10: Float(math.NaN()),
			O3:   Float(40),
		},
		Weather: &Weather{
			Temperature: Float(-4),
			Humidity:    Float(130),
			WindSpeed:   Float(-1),
		},
	})

	if !r.Timestamp.Equal(time.Date(2024, 5, 1, 5, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp not bucketed to UTC hour: %v", r.Timestamp)
	}
	if r.Timestamp.Location() != time.UTC {
		t.Fatal("timestamp must be UTC")
	}
	if r.Pollutants.PM25 != nil || r.Pollutants.PM10 != nil {
		t.Fatal("negative and NaN pollutants must be dropped")
	}
	if r.Pollutants.O3 == nil || *r.Pollutants.O3 != 40 {
		t.Fatal("valid pollutant lost")
	}
	if r.Weather.Temperature == nil || *r.Weather.Temperature != -4 {
		t.Fatal("negative temperatures are valid")
	}
	if *r.Weather.Humidity != 100 {
		t.Fatalf("humidity not clamped: %v", *r.Weather.Humidity)
	}
	if r.Weather.WindSpeed != nil {
		t.Fatal("negative wind speed must be dropped")
	}
	if r.Category != "Unhealthy" {
		t.Fatalf("category = %q", r.Category)
	}
	if r.LocationKey != "delhi:in" {
		t.Fatalf("key = %q", r.LocationKey)
	}
}
