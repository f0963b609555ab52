package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
	"github.com/i474232898/air-quality-forecast/internal/model"
)

// PostgresStore persists readings, locations and model artifacts in Postgres.
// It implements airquality.Store, registry.LocationWriter and model.ArtifactStore.
type PostgresStore struct {
	db *sql.DB
}

// Connect establishes a connection to the database.
func Connect(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RunMigrations executes all SQL migration files in order.
func (s *PostgresStore) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		log.Printf("store: running migration %s", filename)

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	return nil
}

const readingColumns = `location_key, city, country, hour_ts, aqi, category,
	pm25, pm10, o3, no2, so2, co,
	temperature, humidity, wind_speed, pressure, sources, collected_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (airquality.Reading, error) {
	var r airquality.Reading
	var sources []string
	err := row.Scan(
		&r.LocationKey,
		&r.City,
		&r.Country,
		&r.Timestamp,
		&r.AQI,
		&r.Category,
		&r.Pollutants.PM25,
		&r.Pollutants.PM10,
		&r.Pollutants.O3,
		&r.Pollutants.NO2,
		&r.Pollutants.SO2,
		&r.Pollutants.CO,
		&r.Weather.Temperature,
		&r.Weather.Humidity,
		&r.Weather.WindSpeed,
		&r.Weather.Pressure,
		pq.Array(&sources),
		&r.CollectedAt,
	)
	if err != nil {
		return airquality.Reading{}, err
	}
	r.Timestamp = r.Timestamp.UTC()
	r.CollectedAt = r.CollectedAt.UTC()
	r.Sources = sources
	return r, nil
}

// InsertIfAbsent relies on UNIQUE(location_key, hour_ts): a conflicting insert
// returns no row and the existing reading is read back.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, r airquality.Reading) (airquality.Reading, bool, error) {
	if r.LocationKey == "" {
		return airquality.Reading{}, false, fmt.Errorf("%w: reading without location key", airquality.ErrValidation)
	}
	r.Timestamp = airquality.HourBucket(r.Timestamp)
	sources := r.Sources
	if sources == nil {
		sources = []string{}
	}

	query := `
		INSERT INTO readings (` + readingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (location_key, hour_ts) DO NOTHING
		RETURNING ` + readingColumns

	stored, err := scanReading(s.db.QueryRowContext(ctx, query,
		r.LocationKey,
		r.City,
		r.Country,
		r.Timestamp,
		r.AQI,
		r.Category,
		r.Pollutants.PM25,
		r.Pollutants.PM10,
		r.Pollutants.O3,
		r.Pollutants.NO2,
		r.Pollutants.SO2,
		r.Pollutants.CO,
		r.Weather.Temperature,
		r.Weather.Humidity,
		r.Weather.WindSpeed,
		r.Weather.Pressure,
		pq.Array(sources),
		r.CollectedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return airquality.Reading{}, false, fmt.Errorf("insert reading: %w", err)
	}

	existing, err := s.Get(ctx, r.LocationKey, r.Timestamp)
	if err != nil {
		return airquality.Reading{}, false, fmt.Errorf("read back existing reading: %w", err)
	}
	return existing, false, nil
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...any) (airquality.Reading, error) {
	r, err := scanReading(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return airquality.Reading{}, airquality.ErrNotFound
	}
	if err != nil {
		return airquality.Reading{}, err
	}
	return r, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string, hour time.Time) (airquality.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE location_key = $1 AND hour_ts = $2`
	return s.queryOne(ctx, query, key, airquality.HourBucket(hour))
}

func (s *PostgresStore) Latest(ctx context.Context, key string) (airquality.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE location_key = $1 ORDER BY hour_ts DESC LIMIT 1`
	return s.queryOne(ctx, query, key)
}

func (s *PostgresStore) LatestWithAQI(ctx context.Context, key string) (airquality.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings
		WHERE location_key = $1 AND aqi IS NOT NULL ORDER BY hour_ts DESC LIMIT 1`
	return s.queryOne(ctx, query, key)
}

func (s *PostgresStore) Range(ctx context.Context, key string, from, to time.Time) ([]airquality.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings
		WHERE location_key = $1 AND hour_ts >= $2 AND hour_ts <= $3
		ORDER BY hour_ts`

	rows, err := s.db.QueryContext(ctx, query, key, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []airquality.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveLocation upserts a registry entry.
func (s *PostgresStore) SaveLocation(ctx context.Context, loc airquality.Location) error {
	query := `
		INSERT INTO locations (location_key, city, country, lat, lon, active, display_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (location_key) DO UPDATE
		SET lat = EXCLUDED.lat,
		    lon = EXCLUDED.lon,
		    active = EXCLUDED.active,
		    display_name = EXCLUDED.display_name,
		    updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.ExecContext(ctx, query, loc.Key(), loc.City, loc.Country, loc.Lat, loc.Lon, loc.Active, loc.DisplayName)
	return err
}

// LoadLocations returns every persisted location in registration order.
func (s *PostgresStore) LoadLocations(ctx context.Context) ([]airquality.Location, error) {
	query := `
		SELECT city, country, lat, lon, active, display_name
		FROM locations
		ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locs []airquality.Location
	for rows.Next() {
		var loc airquality.Location
		if err := rows.Scan(&loc.City, &loc.Country, &loc.Lat, &loc.Lon, &loc.Active, &loc.DisplayName); err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

// Replace upserts the artifact for its horizon inside a transaction.
func (s *PostgresStore) Replace(ctx context.Context, a *model.Artifact) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO model_artifacts (horizon, version, schema_tag, trained_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (horizon) DO UPDATE
		SET version = EXCLUDED.version,
		    schema_tag = EXCLUDED.schema_tag,
		    trained_at = EXCLUDED.trained_at,
		    payload = EXCLUDED.payload,
		    updated_at = CURRENT_TIMESTAMP
	`
	if _, err := tx.ExecContext(ctx, query, a.Horizon, a.Version, a.SchemaTag, a.TrainedAt, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadAll returns the stored artifacts ordered by horizon.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]*model.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM model_artifacts ORDER BY horizon`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Artifact
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a model.Artifact
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
