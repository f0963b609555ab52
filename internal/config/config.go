package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
	"github.com/i474232898/air-quality-forecast/internal/registry"
)

type AppConfig struct {
	OpenWeatherAPIKey    string
	WAQIAPIKey           string
	WeatherAPIKey        string
	GoogleGeocoderAPIKey string

	WeatherProvider   string `validate:"oneof=openweather weatherapi"`
	PollutantProvider string `validate:"oneof=waqi openmeteo"`

	// Upstream call policy, per provider.
	ProviderTimeout    time.Duration `validate:"gt=0"`
	ProviderMaxRetries int           `validate:"gte=0,lte=10"`
	ProviderRPS        float64       `validate:"gt=0"`

	// RefreshInterval controls how often every active location is collected.
	RefreshInterval    time.Duration `validate:"gte=1s"`
	CollectMaxInFlight int           `validate:"gte=1,lte=64"`
	CollectTimeout     time.Duration `validate:"gt=0"`

	TrainSchedule       string  `validate:"required"`
	MinHistoryDays      int     `validate:"gte=1"`
	MinTrainingExamples int     `validate:"gte=1"`
	MinHistoryCoverage  float64 `validate:"gt=0,lte=1"`

	CacheTTL      time.Duration `validate:"gt=0"`
	CacheCapacity int           `validate:"gte=1"`

	// Optional backends. Empty means in-process only.
	DatabaseURL   string
	MigrationsDir string
	RedisAddr     string
	KafkaBrokers  []string
	KafkaTopic    string `validate:"required_with=KafkaBrokers"`

	// Locations seeded into an empty registry.
	LocationsFile string
	Locations     []airquality.Location `validate:"dive"`

	// In-memory store retention.
	StoreMaxHistory int           // max number of readings per location (0 = unlimited)
	StoreMaxAge     time.Duration // max age of readings (0 = unlimited)

	Port string `validate:"required,numeric"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WAQIAPIKey = os.Getenv("WAQI_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.GoogleGeocoderAPIKey = os.Getenv("GOOGLE_GEOCODER_API_KEY")
	cfg.WeatherProvider = strings.ToLower(getenvDefault("WEATHER_PROVIDER", "openweather"))
	cfg.PollutantProvider = strings.ToLower(getenvDefault("POLLUTANT_PROVIDER", "waqi"))

	var err error
	if cfg.ProviderTimeout, err = getenvDuration("PROVIDER_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.ProviderMaxRetries, err = getenvInt("PROVIDER_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.ProviderRPS, err = getenvFloat("PROVIDER_RPS", 5); err != nil {
		return nil, err
	}

	// Collection interval in seconds: default hourly.
	refresh, err := getenvInt("DATA_REFRESH_INTERVAL", 3600)
	if err != nil {
		return nil, err
	}
	cfg.RefreshInterval = time.Duration(refresh) * time.Second
	if cfg.CollectMaxInFlight, err = getenvInt("COLLECT_MAX_IN_FLIGHT", 4); err != nil {
		return nil, err
	}
	if cfg.CollectTimeout, err = getenvDuration("COLLECT_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	cfg.TrainSchedule = getenvDefault("TRAIN_SCHEDULE", "0 0 3 * * 1")
	if cfg.MinHistoryDays, err = getenvInt("MIN_HISTORY_DAYS", 90); err != nil {
		return nil, err
	}
	if cfg.MinTrainingExamples, err = getenvInt("MIN_TRAINING_EXAMPLES", 100); err != nil {
		return nil, err
	}
	if cfg.MinHistoryCoverage, err = getenvFloat("MIN_HISTORY_COVERAGE", 0.75); err != nil {
		return nil, err
	}

	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", "1h"); err != nil {
		return nil, err
	}
	if cfg.CacheCapacity, err = getenvInt("CACHE_CAPACITY", 256); err != nil {
		return nil, err
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.MigrationsDir = getenvDefault("MIGRATIONS_DIR", "migrations")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaTopic = getenvDefault("KAFKA_TOPIC", "aqi-readings")

	// Store retention: roughly half a year of hourly readings.
	if cfg.StoreMaxHistory, err = getenvInt("STORE_MAX_HISTORY", 24*183); err != nil {
		return nil, err
	}
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "4392h"); err != nil {
		return nil, err
	}
	cfg.Port = getenvDefault("PORT", "8080")

	cfg.LocationsFile = os.Getenv("LOCATIONS_FILE")
	if cfg.LocationsFile != "" {
		locs, err := LoadLocations(cfg.LocationsFile)
		if err != nil {
			return nil, err
		}
		cfg.Locations = locs
	} else {
		cfg.Locations = append([]airquality.Location(nil), registry.DefaultLocations...)
	}

	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireProviderKeys reports missing API keys for the selected providers.
// Only modes that call upstream need them.
func (c *AppConfig) RequireProviderKeys() error {
	var missing []string
	switch c.WeatherProvider {
	case "openweather":
		if c.OpenWeatherAPIKey == "" {
			missing = append(missing, "OPENWEATHER_API_KEY")
		}
	case "weatherapi":
		if c.WeatherAPIKey == "" {
			missing = append(missing, "WEATHERAPI_API_KEY")
		}
	}
	if c.PollutantProvider == "waqi" && c.WAQIAPIKey == "" {
		missing = append(missing, "WAQI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing provider credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

type seedFile struct {
	Locations []seedLocation `yaml:"locations"`
}

type seedLocation struct {
	City        string  `yaml:"city"`
	Country     string  `yaml:"country"`
	Lat         float64 `yaml:"lat"`
	Lon         float64 `yaml:"lon"`
	DisplayName string  `yaml:"display_name"`
	Active      *bool   `yaml:"active"`
}

// LoadLocations reads a YAML seed file. Entries are active unless they say otherwise.
func LoadLocations(path string) ([]airquality.Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locations file %s: %w", path, err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse locations file %s: %w", path, err)
	}
	if len(f.Locations) == 0 {
		return nil, fmt.Errorf("locations file %s has no locations", path)
	}

	locs := make([]airquality.Location, 0, len(f.Locations))
	for _, s := range f.Locations {
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		locs = append(locs, airquality.Location{
			City:        strings.TrimSpace(s.City),
			Country:     strings.TrimSpace(s.Country),
			Lat:         s.Lat,
			Lon:         s.Lon,
			DisplayName: s.DisplayName,
			Active:      active,
		})
	}
	return locs, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
