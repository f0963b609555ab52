package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
	"github.com/i474232898/air-quality-forecast/internal/store"
)

type fakeFetcher struct {
	calls    int32
	inFlight int32
	peak     int32
	delay    time.Duration
	fail     map[string]error
	aqi      float64
}

func (f *fakeFetcher) Fetch(ctx context.Context, loc airquality.Location) (airquality.RawReading, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err, ok := f.fail[loc.Key()]; ok {
		return airquality.RawReading{}, err
	}
	return airquality.RawReading{
		Location:  loc,
		FetchedAt: time.Now().UTC(),
		AQI:       airquality.Float(f.aqi),
		Weather:   &airquality.Weather{Humidity: airquality.Float(140)},
		Sources:   []string{"fake"},
	}, nil
}

type staticLocations []airquality.Location

func (s staticLocations) Active() []airquality.Location { return s }

type recordingSink struct {
	mu       sync.Mutex
	readings []airquality.Reading
	err      error
}

func (s *recordingSink) Accept(ctx context.Context, r airquality.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
	return s.err
}

var mumbai = airquality.Location{City: "Mumbai", Country: "India", Lat: 19.07, Lon: 72.87, Active: true}

func TestCollectIsIdempotentWithinHour(t *testing.T) {
	f := &fakeFetcher{aqi: 156}
	s := store.NewMemoryStore(0, 0)
	sink := &recordingSink{}
	c := New(f, s, staticLocations{mumbai}, Options{}, sink)

	first, err := c.Collect(context.Background(), mumbai)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.Collect(context.Background(), mumbai)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", f.calls)
	}
	if !first.Timestamp.Equal(second.Timestamp) || *first.AQI != *second.AQI {
		t.Fatal("both calls must return the same stored reading")
	}
	if len(sink.readings) != 1 {
		t.Fatalf("sinks must see only the new insert, got %d", len(sink.readings))
	}

	all, _ := s.Range(context.Background(), mumbai.Key(), time.Time{}, time.Now().Add(time.Hour))
	if len(all) != 1 {
		t.Fatalf("expected exactly one stored reading, got %d", len(all))
	}
}

func TestCollectNormalizes(t *testing.T) {
	f := &fakeFetcher{aqi: 156}
	c := New(f, store.NewMemoryStore(0, 0), staticLocations{mumbai}, Options{})

	r, err := c.Collect(context.Background(), mumbai)
	if err != nil {
		t.Fatal(err)
	}
	if r.Category != "Unhealthy" {
		t.Fatalf("expected category Unhealthy, got %q", r.Category)
	}
	if *r.Weather.Humidity != 100 {
		t.Fatalf("expected clamped humidity, got %v", *r.Weather.Humidity)
	}
	if r.Timestamp.Minute() != 0 || r.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp not hour-aligned UTC: %v", r.Timestamp)
	}
}

func TestCollectConcurrentCallsFetchOnce(t *testing.T) {
	f := &fakeFetcher{aqi: 80, delay: 20 * time.Millisecond}
	c := New(f, store.NewMemoryStore(0, 0), staticLocations{mumbai}, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Collect(context.Background(), mumbai); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if f.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", f.calls)
	}
}

func TestCollectPropagatesGatewayError(t *testing.T) {
	f := &fakeFetcher{fail: map[string]error{mumbai.Key(): airquality.ErrUpstreamRejected}}
	c := New(f, store.NewMemoryStore(0, 0), staticLocations{mumbai}, Options{})

	if _, err := c.Collect(context.Background(), mumbai); !errors.Is(err, airquality.ErrUpstreamRejected) {
		t.Fatalf("expected ErrUpstreamRejected, got %v", err)
	}
}

func TestSinkFailureDoesNotFailCollect(t *testing.T) {
	f := &fakeFetcher{aqi: 40}
	sink := &recordingSink{err: errors.New("broker down")}
	c := New(f, store.NewMemoryStore(0, 0), staticLocations{mumbai}, Options{}, sink)

	if _, err := c.Collect(context.Background(), mumbai); err != nil {
		t.Fatalf("sink errors must not surface: %v", err)
	}
}

type failingStore struct {
	*store.MemoryStore
}

var errDiskFull = errors.New("disk full")

func (f failingStore) InsertIfAbsent(ctx context.Context, r airquality.Reading) (airquality.Reading, bool, error) {
	return airquality.Reading{}, false, errDiskFull
}

type unreadableStore struct {
	*store.MemoryStore
}

func (u unreadableStore) Get(ctx context.Context, key string, hour time.Time) (airquality.Reading, error) {
	return airquality.Reading{}, errDiskFull
}

func TestCollectSurfacesStoreReadError(t *testing.T) {
	f := &fakeFetcher{aqi: 70}
	c := New(f, unreadableStore{store.NewMemoryStore(0, 0)}, staticLocations{mumbai}, Options{})

	if _, err := c.Collect(context.Background(), mumbai); !errors.Is(err, errDiskFull) {
		t.Fatalf("expected store error, got %v", err)
	}
	if f.calls != 0 {
		t.Fatalf("upstream must not be called after a store failure, got %d calls", f.calls)
	}
}

func TestCollectAllActive(t *testing.T) {
	locs := staticLocations{
		mumbai,
		{City: "Delhi", Country: "India", Active: true},
		{City: "Atlantis", Country: "XX", Active: true},
		{City: "Paris", Country: "France", Active: true},
		{City: "Tokyo", Country: "Japan", Active: true},
		{City: "London", Country: "UK", Active: true},
	}
	f := &fakeFetcher{
		aqi:   60,
		delay: 10 * time.Millisecond,
		fail:  map[string]error{"atlantis:xx": airquality.ErrUpstreamRejected},
	}
	c := New(f, store.NewMemoryStore(0, 0), locs, Options{MaxInFlight: 2, Timeout: time.Second})

	ok, results := c.CollectAllActive(context.Background())
	if ok != 5 {
		t.Fatalf("expected 5 successes, got %d", ok)
	}
	if len(results) != len(locs) {
		t.Fatalf("expected one result per location, got %d", len(results))
	}
	for i, res := range results {
		if res.Location.Key() != locs[i].Key() {
			t.Fatalf("result %d out of registry order: %s", i, res.Location.Key())
		}
	}
	if !errors.Is(results[2].Err, airquality.ErrUpstreamRejected) {
		t.Fatalf("expected Atlantis to fail with rejection, got %v", results[2].Err)
	}
	if f.peak > 2 {
		t.Fatalf("concurrency bound exceeded: peak %d", f.peak)
	}
}

func TestCollectAllActiveSurfacesStoreErrors(t *testing.T) {
	f := &fakeFetcher{aqi: 60}
	s := failingStore{store.NewMemoryStore(0, 0)}
	c := New(f, s, staticLocations{mumbai}, Options{})

	ok, results := c.CollectAllActive(context.Background())
	if ok != 0 || !errors.Is(results[0].Err, errDiskFull) {
		t.Fatalf("expected store error surfaced, got ok=%d err=%v", ok, results[0].Err)
	}
}
