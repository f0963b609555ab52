package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

// LocationWriter persists registry changes. Implemented by the Postgres store.
type LocationWriter interface {
	SaveLocation(ctx context.Context, loc airquality.Location) error
	LoadLocations(ctx context.Context) ([]airquality.Location, error)
}

// Geocoder resolves a city to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, city, country string) (lat, lon float64, err error)
}

const earthRadiusKm = 6371.0

// NearbyLocation is a Nearby result with its great-circle distance.
type NearbyLocation struct {
	airquality.Location
	DistanceKm float64 `json:"distance_km"`
}

// Registry is the authoritative set of monitored locations, kept in
// registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byKey map[string]airquality.Location

	writer   LocationWriter
	geocoder Geocoder
	validate *validator.Validate
}

// New creates an empty Registry. writer and geocoder are optional.
func New(writer LocationWriter, geocoder Geocoder) *Registry {
	return &Registry{
		byKey:    make(map[string]airquality.Location),
		writer:   writer,
		geocoder: geocoder,
		validate: validator.New(),
	}
}

// Load restores persisted locations. Keys already present are kept.
func (r *Registry) Load(ctx context.Context) error {
	if r.writer == nil {
		return nil
	}
	locs, err := r.writer.LoadLocations(ctx)
	if err != nil {
		return fmt.Errorf("load locations: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, loc := range locs {
		if _, ok := r.byKey[loc.Key()]; ok {
			continue
		}
		r.order = append(r.order, loc.Key())
		r.byKey[loc.Key()] = loc
	}
	return nil
}

// Seed registers each location that is not registered yet.
func (r *Registry) Seed(ctx context.Context, locs []airquality.Location) error {
	for _, loc := range locs {
		err := r.Register(ctx, loc)
		if err != nil && !errors.Is(err, airquality.ErrDuplicateLocation) {
			return err
		}
	}
	return nil
}

// Register adds a new location. The (city, country) pair must be unique.
func (r *Registry) Register(ctx context.Context, loc airquality.Location) error {
	loc.City = strings.TrimSpace(loc.City)
	loc.Country = strings.TrimSpace(loc.Country)
	if err := r.validate.Struct(loc); err != nil {
		return fmt.Errorf("%w: %v", airquality.ErrValidation, err)
	}
	if strings.TrimSpace(loc.DisplayName) == "" {
		loc.DisplayName = loc.City + ", " + loc.Country
	}

	key := loc.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[key]; ok {
		return fmt.Errorf("%w: %s", airquality.ErrDuplicateLocation, loc.Name())
	}
	if r.writer != nil {
		if err := r.writer.SaveLocation(ctx, loc); err != nil {
			return fmt.Errorf("save location %s: %w", key, err)
		}
	}
	r.order = append(r.order, key)
	r.byKey[key] = loc
	log.Printf("registry: registered %s", loc.Name())
	return nil
}

// Activate marks a location as collected.
func (r *Registry) Activate(ctx context.Context, key string) error {
	return r.setActive(ctx, key, true)
}

// Deactivate stops collection for a location without removing it.
func (r *Registry) Deactivate(ctx context.Context, key string) error {
	return r.setActive(ctx, key, false)
}

func (r *Registry) setActive(ctx context.Context, key string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	loc, ok := r.byKey[key]
	if !ok {
		return fmt.Errorf("%w: location %s", airquality.ErrNotFound, key)
	}
	if loc.Active == active {
		return nil
	}
	loc.Active = active
	if r.writer != nil {
		if err := r.writer.SaveLocation(ctx, loc); err != nil {
			return fmt.Errorf("save location %s: %w", key, err)
		}
	}
	r.byKey[key] = loc
	return nil
}

// Get returns the location registered for (city, country).
func (r *Registry) Get(city, country string) (airquality.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc, ok := r.byKey[airquality.LocationKey(city, country)]
	if !ok {
		return airquality.Location{}, fmt.Errorf("%w: location %s, %s", airquality.ErrNotFound, city, country)
	}
	return loc, nil
}

// Lookup returns the first registered location whose city matches name,
// ignoring case.
func (r *Registry) Lookup(name string) (airquality.Location, error) {
	name = strings.TrimSpace(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, key := range r.order {
		loc := r.byKey[key]
		if strings.EqualFold(loc.City, name) {
			return loc, nil
		}
	}
	return airquality.Location{}, fmt.Errorf("%w: city %q", airquality.ErrNotFound, name)
}

// Find returns locations whose display name contains query, case-insensitively.
func (r *Registry) Find(query string, limit int) ([]airquality.Location, error) {
	query = strings.TrimSpace(query)
	if err := r.validate.Var(query, "min=2"); err != nil {
		return nil, fmt.Errorf("%w: query must be at least 2 characters", airquality.ErrValidation)
	}
	if err := r.validate.Var(limit, "min=1,max=50"); err != nil {
		return nil, fmt.Errorf("%w: limit must be between 1 and 50", airquality.ErrValidation)
	}

	needle := strings.ToLower(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]airquality.Location, 0, limit)
	for _, key := range r.order {
		loc := r.byKey[key]
		if strings.Contains(strings.ToLower(loc.Name()), needle) {
			out = append(out, loc)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type nearbyQuery struct {
	Lat      float64 `validate:"gte=-90,lte=90"`
	Lon      float64 `validate:"gte=-180,lte=180"`
	RadiusKm float64 `validate:"gte=1,lte=500"`
}

// Nearby returns active locations within radiusKm, closest first.
func (r *Registry) Nearby(lat, lon, radiusKm float64) ([]NearbyLocation, error) {
	if err := r.validate.Struct(nearbyQuery{Lat: lat, Lon: lon, RadiusKm: radiusKm}); err != nil {
		return nil, fmt.Errorf("%w: %v", airquality.ErrValidation, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []NearbyLocation
	for _, key := range r.order {
		loc := r.byKey[key]
		if !loc.Active {
			continue
		}
		d := Haversine(lat, lon, loc.Lat, loc.Lon)
		if d <= radiusKm {
			out = append(out, NearbyLocation{Location: loc, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}

// Popular returns the curated locations that are registered and active.
func (r *Registry) Popular() []airquality.Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []airquality.Location
	for _, key := range popularKeys {
		if loc, ok := r.byKey[key]; ok && loc.Active {
			out = append(out, loc)
		}
	}
	return out
}

// Active returns active locations in registration order.
func (r *Registry) Active() []airquality.Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []airquality.Location
	for _, key := range r.order {
		if loc := r.byKey[key]; loc.Active {
			out = append(out, loc)
		}
	}
	return out
}

// All returns every registered location in registration order.
func (r *Registry) All() []airquality.Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]airquality.Location, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// AddByName geocodes a city and registers it as active.
func (r *Registry) AddByName(ctx context.Context, city, country string) (airquality.Location, error) {
	if strings.TrimSpace(city) == "" {
		return airquality.Location{}, fmt.Errorf("%w: city is required", airquality.ErrValidation)
	}
	if existing, err := r.Get(city, country); err == nil {
		return existing, fmt.Errorf("%w: %s", airquality.ErrDuplicateLocation, existing.Name())
	}
	if r.geocoder == nil {
		return airquality.Location{}, errors.New("no geocoder configured")
	}

	lat, lon, err := r.geocoder.Geocode(ctx, city, country)
	if err != nil {
		return airquality.Location{}, err
	}

	loc := airquality.Location{City: city, Country: country, Lat: lat, Lon: lon, Active: true}
	if err := r.Register(ctx, loc); err != nil {
		return airquality.Location{}, err
	}
	return r.Get(city, country)
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
