package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

// GoogleGeocoder resolves cities through the Google Geocoding API.
type GoogleGeocoder struct {
	// the library keeps its key in a package variable
	mu sync.Mutex
}

// NewGoogleGeocoder sets the API key used by the geocoder package.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{}
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, city, country string) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	loc, err := geocoder.Geocoding(geocoder.Address{City: city, Country: country})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: geocoding %s, %s: %v", airquality.ErrNotFound, city, country, err)
	}
	return loc.Latitude, loc.Longitude, nil
}
