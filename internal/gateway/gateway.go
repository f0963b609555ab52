package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

// Gateway fetches weather and pollutant data for a location from two providers
// concurrently and merges them into a single raw reading.
type Gateway struct {
	weather    airquality.WeatherProvider
	pollutants airquality.PollutantProvider
	now        func() time.Time
}

// New creates a Gateway over one weather and one pollutant provider.
func New(weather airquality.WeatherProvider, pollutants airquality.PollutantProvider) *Gateway {
	return &Gateway{
		weather:    weather,
		pollutants: pollutants,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Fetch returns the merged reading. One side failing leaves it nil. When both
// fail, a rejection on either side yields ErrUpstreamRejected, otherwise
// ErrCollectionFailed.
func (g *Gateway) Fetch(ctx context.Context, loc airquality.Location) (airquality.RawReading, error) {
	var (
		wg sync.WaitGroup
		wr airquality.WeatherResult
		pr airquality.PollutantResult
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		wr = g.weather.FetchWeather(ctx, loc)
	}()
	go func() {
		defer wg.Done()
		pr = g.pollutants.FetchPollutants(ctx, loc)
	}()
	wg.Wait()

	var (
		ws *airquality.WeatherSample
		ps *airquality.PollutantSample
	)
	if wr.Status == airquality.ResultOK {
		ws = &wr.Sample
	} else {
		log.Printf("gateway: provider %s failed for %s (%s): %v", g.weather.Name(), loc.Key(), wr.Status, wr.Err)
	}
	if pr.Status == airquality.ResultOK {
		ps = &pr.Sample
	} else {
		log.Printf("gateway: provider %s failed for %s (%s): %v", g.pollutants.Name(), loc.Key(), pr.Status, pr.Err)
	}

	if ws == nil && ps == nil {
		if wr.Status == airquality.ResultNotFound || pr.Status == airquality.ResultNotFound {
			return airquality.RawReading{}, fmt.Errorf("%w: %s", airquality.ErrUpstreamRejected, loc.Name())
		}
		return airquality.RawReading{}, fmt.Errorf("%w: %s: %v", airquality.ErrCollectionFailed, loc.Name(), errors.Join(wr.Err, pr.Err))
	}

	return airquality.MergeSamples(loc, g.now(), ws, ps), nil
}

// Forecast delegates to the weather provider when it can forecast.
func (g *Gateway) Forecast(ctx context.Context, loc airquality.Location, hours int) ([]airquality.WeatherSample, error) {
	fc, ok := g.weather.(airquality.WeatherForecaster)
	if !ok {
		return nil, fmt.Errorf("weather provider %s does not support forecasts", g.weather.Name())
	}
	return fc.Forecast(ctx, loc, hours)
}
