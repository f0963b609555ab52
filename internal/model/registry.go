package model

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

// Horizons are the forecast horizons, in hours, that can hold an artifact.
var Horizons = []int{24, 48, 72}

// ValidHorizon reports whether h is a supported horizon.
func ValidHorizon(h int) bool {
	for _, v := range Horizons {
		if v == h {
			return true
		}
	}
	return false
}

// Registry holds the authoritative artifact per horizon. Readers never lock;
// swaps persist first and then publish the new pointer.
type Registry struct {
	store ArtifactStore

	// serializes Swap so persistence order matches publish order
	mu    sync.Mutex
	slots map[int]*atomic.Pointer[Artifact]
}

// NewRegistry creates a Registry backed by store. A nil store keeps artifacts
// in memory only.
func NewRegistry(store ArtifactStore) *Registry {
	if store == nil {
		store = NewMemoryArtifactStore()
	}
	slots := make(map[int]*atomic.Pointer[Artifact], len(Horizons))
	for _, h := range Horizons {
		slots[h] = &atomic.Pointer[Artifact]{}
	}
	return &Registry{store: store, slots: slots}
}

// Get returns the current artifact for horizon h or ErrModelUnavailable.
func (r *Registry) Get(h int) (*Artifact, error) {
	slot, ok := r.slots[h]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported horizon %dh", airquality.ErrValidation, h)
	}
	a := slot.Load()
	if a == nil {
		return nil, fmt.Errorf("%w: no artifact for %dh", airquality.ErrModelUnavailable, h)
	}
	return a, nil
}

// Swap persists a and then makes it the served artifact for its horizon.
// On error the previous artifact stays in place.
func (r *Registry) Swap(ctx context.Context, a *Artifact) error {
	if a == nil || a.Model == nil {
		return fmt.Errorf("%w: empty artifact", airquality.ErrValidation)
	}
	slot, ok := r.slots[a.Horizon]
	if !ok {
		return fmt.Errorf("%w: unsupported horizon %dh", airquality.ErrValidation, a.Horizon)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Replace(ctx, a); err != nil {
		return fmt.Errorf("persist artifact %s: %w", a.Version, err)
	}
	slot.Store(a)
	log.Printf("model: artifact %s now serving %dh (val MAE %.2f)", a.Version, a.Horizon, a.ValidationMAE)
	return nil
}

// Load restores persisted artifacts into the registry.
func (r *Registry) Load(ctx context.Context) error {
	artifacts, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}
	for _, a := range artifacts {
		slot, ok := r.slots[a.Horizon]
		if !ok || a.Model == nil {
			log.Printf("model: skipping stored artifact %s for horizon %dh", a.Version, a.Horizon)
			continue
		}
		slot.Store(a)
	}
	return nil
}

// Snapshot returns the currently served artifacts ordered by horizon.
func (r *Registry) Snapshot() []*Artifact {
	var out []*Artifact
	for _, slot := range r.slots {
		if a := slot.Load(); a != nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Horizon < out[j].Horizon })
	return out
}
