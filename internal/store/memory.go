package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

// ReadingHistory holds a time-ordered series of readings for a location.
type ReadingHistory struct {
	Readings []airquality.Reading
}

// MemoryStore is a concurrency-safe in-memory implementation of airquality.Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location key, value: history
	data map[string]*ReadingHistory

	// retention configuration
	maxHistory int           // max number of readings per location
	maxAge     time.Duration // optional max age for readings
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory or maxAge is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*ReadingHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// InsertIfAbsent stores r in its hour bucket unless one is already taken.
func (s *MemoryStore) InsertIfAbsent(ctx context.Context, r airquality.Reading) (airquality.Reading, bool, error) {
	if r.LocationKey == "" {
		return airquality.Reading{}, false, fmt.Errorf("%w: reading without location key", airquality.ErrValidation)
	}
	r.Timestamp = airquality.HourBucket(r.Timestamp)

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[r.LocationKey]
	if !ok {
		history = &ReadingHistory{}
		s.data[r.LocationKey] = history
	}

	i := history.search(r.Timestamp)
	if i < len(history.Readings) && history.Readings[i].Timestamp.Equal(r.Timestamp) {
		return history.Readings[i], false, nil
	}

	history.Readings = append(history.Readings, airquality.Reading{})
	copy(history.Readings[i+1:], history.Readings[i:])
	history.Readings[i] = r

	s.enforceRetention(history)
	return r, true, nil
}

func (s *MemoryStore) enforceRetention(history *ReadingHistory) {
	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Readings) > s.maxHistory {
		over := len(history.Readings) - s.maxHistory
		history.Readings = history.Readings[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := history.search(cutoff)
		if i > 0 && i < len(history.Readings) {
			history.Readings = history.Readings[i:]
		}
	}
}

// search returns the index of the first reading at or after ts.
func (h *ReadingHistory) search(ts time.Time) int {
	return sort.Search(len(h.Readings), func(i int) bool {
		return !h.Readings[i].Timestamp.Before(ts)
	})
}

// Get returns the reading stored for the hour bucket containing hour.
func (s *MemoryStore) Get(ctx context.Context, key string, hour time.Time) (airquality.Reading, error) {
	hour = airquality.HourBucket(hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok {
		return airquality.Reading{}, airquality.ErrNotFound
	}
	i := history.search(hour)
	if i < len(history.Readings) && history.Readings[i].Timestamp.Equal(hour) {
		return history.Readings[i], nil
	}
	return airquality.Reading{}, airquality.ErrNotFound
}

// Latest returns the most recent reading for a location.
func (s *MemoryStore) Latest(ctx context.Context, key string) (airquality.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok || len(history.Readings) == 0 {
		return airquality.Reading{}, airquality.ErrNotFound
	}
	return history.Readings[len(history.Readings)-1], nil
}

// LatestWithAQI returns the most recent reading that carries an AQI.
func (s *MemoryStore) LatestWithAQI(ctx context.Context, key string) (airquality.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok {
		return airquality.Reading{}, airquality.ErrNotFound
	}
	for i := len(history.Readings) - 1; i >= 0; i-- {
		if history.Readings[i].HasAQI() {
			return history.Readings[i], nil
		}
	}
	return airquality.Reading{}, airquality.ErrNotFound
}

// Range returns all readings for a location between from and to (inclusive).
func (s *MemoryStore) Range(ctx context.Context, key string, from, to time.Time) ([]airquality.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok {
		return nil, nil
	}

	var result []airquality.Reading
	for i := history.search(from); i < len(history.Readings); i++ {
		r := history.Readings[i]
		if r.Timestamp.After(to) {
			break
		}
		result = append(result, r)
	}
	return result, nil
}
