package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOCATIONS_FILE", "")
	t.Setenv("DATA_REFRESH_INTERVAL", "")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("WEATHER_PROVIDER", "")
	t.Setenv("POLLUTANT_PROVIDER", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RefreshInterval != time.Hour {
		t.Fatalf("expected hourly refresh, got %s", cfg.RefreshInterval)
	}
	if cfg.CacheTTL != time.Hour || cfg.CacheCapacity != 256 {
		t.Fatalf("unexpected cache defaults %s/%d", cfg.CacheTTL, cfg.CacheCapacity)
	}
	if cfg.WeatherProvider != "openweather" || cfg.PollutantProvider != "waqi" {
		t.Fatalf("unexpected providers %s/%s", cfg.WeatherProvider, cfg.PollutantProvider)
	}
	if cfg.MinHistoryDays != 90 || cfg.MinHistoryCoverage != 0.75 {
		t.Fatalf("unexpected training defaults %d/%v", cfg.MinHistoryDays, cfg.MinHistoryCoverage)
	}
	if len(cfg.Locations) != 8 {
		t.Fatalf("expected the built-in seed list, got %d locations", len(cfg.Locations))
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DATA_REFRESH_INTERVAL", "hourly"},
		{"PROVIDER_TIMEOUT", "10"},
		{"PROVIDER_RPS", "fast"},
		{"CACHE_CAPACITY", "lots"},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error naming %s, got %v", tc.key, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	bad := *cfg
	bad.PollutantProvider = "airnow"
	if err := bad.Validate(); err == nil || !strings.Contains(err.Error(), "PollutantProvider") {
		t.Fatalf("expected provider error, got %v", err)
	}

	bad = *cfg
	bad.CacheCapacity = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected capacity error")
	}

	bad = *cfg
	bad.MinHistoryCoverage = 1.5
	if err := bad.Validate(); err == nil || !strings.Contains(err.Error(), "MinHistoryCoverage") {
		t.Fatalf("expected coverage error, got %v", err)
	}

	bad = *cfg
	bad.Locations = append(bad.Locations, bad.Locations[0])
	bad.Locations[len(bad.Locations)-1].Lat = 123
	if err := bad.Validate(); err == nil {
		t.Fatal("expected latitude error")
	}
}

func TestRequireProviderKeys(t *testing.T) {
	cfg := &AppConfig{WeatherProvider: "openweather", PollutantProvider: "waqi"}
	err := cfg.RequireProviderKeys()
	if err == nil || !strings.Contains(err.Error(), "OPENWEATHER_API_KEY") || !strings.Contains(err.Error(), "WAQI_API_KEY") {
		t.Fatalf("expected both keys reported, got %v", err)
	}

	cfg = &AppConfig{WeatherProvider: "weatherapi", WeatherAPIKey: "k", PollutantProvider: "openmeteo"}
	if err := cfg.RequireProviderKeys(); err != nil {
		t.Fatalf("open-meteo needs no key: %v", err)
	}
}

func TestLoadLocations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locations.yaml")
	data := `locations:
  - city: Lagos
    country: Nigeria
    lat: 6.5244
    lon: 3.3792
  - city: " Cairo "
    country: Egypt
    lat: 30.0444
    lon: 31.2357
    active: false
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	locs, err := LoadLocations(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locs) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(locs))
	}
	if !locs[0].Active || locs[1].Active {
		t.Fatal("active must default to true and honour an explicit false")
	}
	if locs[1].City != "Cairo" {
		t.Fatalf("city not trimmed: %q", locs[1].City)
	}

	t.Setenv("LOCATIONS_FILE", path)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Locations) != 2 {
		t.Fatalf("expected seed file to replace defaults, got %d", len(cfg.Locations))
	}
}

func TestLoadLocationsErrors(t *testing.T) {
	if _, err := LoadLocations(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(empty, []byte("locations: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLocations(empty); err == nil {
		t.Fatal("expected error for empty seed file")
	}
}
