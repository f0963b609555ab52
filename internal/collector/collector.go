package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

// Fetcher is the gateway contract the collector depends on.
type Fetcher interface {
	Fetch(ctx context.Context, loc airquality.Location) (airquality.RawReading, error)
}

// LocationSource lists the locations to collect for.
type LocationSource interface {
	Active() []airquality.Location
}

// Sink receives every newly stored reading. Errors are logged, never returned
// to the collect caller.
type Sink interface {
	Accept(ctx context.Context, r airquality.Reading) error
}

// Options tunes batch collection.
type Options struct {
	MaxInFlight int
	Timeout     time.Duration
}

// Result is the outcome of collecting one location in a batch.
type Result struct {
	Location airquality.Location
	Reading  airquality.Reading
	Err      error
}

// Collector turns gateway fetches into stored, hour-aligned readings.
type Collector struct {
	fetcher   Fetcher
	store     airquality.Store
	locations LocationSource
	sinks     []Sink
	opts      Options
	now       func() time.Time

	// one in-flight collect per location
	locks sync.Map
}

// New creates a Collector.
func New(fetcher Fetcher, store airquality.Store, locations LocationSource, opts Options, sinks ...Sink) *Collector {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Collector{
		fetcher:   fetcher,
		store:     store,
		locations: locations,
		sinks:     sinks,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AddSink registers another sink. Call before collection starts.
func (c *Collector) AddSink(s Sink) {
	c.sinks = append(c.sinks, s)
}

func (c *Collector) lockFor(key string) *sync.Mutex {
	m, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Collect returns the reading for loc's current hour, fetching it upstream
// only when the hour bucket is still empty.
func (c *Collector) Collect(ctx context.Context, loc airquality.Location) (airquality.Reading, error) {
	key := loc.Key()
	mu := c.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	hour := airquality.HourBucket(c.now())
	existing, err := c.store.Get(ctx, key, hour)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, airquality.ErrNotFound) {
		return airquality.Reading{}, fmt.Errorf("load reading for %s: %w", key, err)
	}

	raw, err := c.fetcher.Fetch(ctx, loc)
	if err != nil {
		return airquality.Reading{}, err
	}

	stored, inserted, err := c.store.InsertIfAbsent(ctx, airquality.Normalize(raw))
	if err != nil {
		return airquality.Reading{}, fmt.Errorf("store reading for %s: %w", key, err)
	}

	if inserted {
		for _, s := range c.sinks {
			if err := s.Accept(ctx, stored); err != nil {
				log.Printf("collector: sink failed for %s: %v", key, err)
			}
		}
	}

	return stored, nil
}

// CollectAllActive collects every active location with bounded concurrency.
// Results are in registry order; failures are isolated per location.
func (c *Collector) CollectAllActive(ctx context.Context) (int, []Result) {
	locs := c.locations.Active()
	runID := uuid.NewString()
	log.Printf("collector: run %s started for %d locations", runID, len(locs))

	results := make([]Result, len(locs))
	sem := make(chan struct{}, c.opts.MaxInFlight)

	var wg sync.WaitGroup
	for i, loc := range locs {
		results[i].Location = loc

		wg.Add(1)
		go func(i int, loc airquality.Location) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return
			}
			defer func() { <-sem }()

			locCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
			defer cancel()

			r, err := c.Collect(locCtx, loc)
			results[i].Reading = r
			results[i].Err = err
		}(i, loc)
	}
	wg.Wait()

	succeeded := 0
	for _, res := range results {
		if res.Err != nil {
			log.Printf("collector: run %s: %s failed: %v", runID, res.Location.Key(), res.Err)
			continue
		}
		succeeded++
	}
	log.Printf("collector: run %s completed: %d/%d succeeded", runID, succeeded, len(locs))
	return succeeded, results
}
