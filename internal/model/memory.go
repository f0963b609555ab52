package model

import (
	"context"
	"sort"
	"sync"
)

// MemoryArtifactStore keeps artifacts in a map; used when no database is configured.
type MemoryArtifactStore struct {
	mu        sync.RWMutex
	artifacts map[int]*Artifact
}

func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{artifacts: make(map[int]*Artifact)}
}

func (s *MemoryArtifactStore) Replace(ctx context.Context, a *Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.artifacts[a.Horizon] = a
	s.mu.Unlock()
	return nil
}

func (s *MemoryArtifactStore) LoadAll(ctx context.Context) ([]*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Horizon < out[j].Horizon })
	return out, nil
}
