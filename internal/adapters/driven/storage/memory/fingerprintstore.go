// Package memory provides in-memory implementations of the driven storage
// ports, used by tests and by ephemeral runs that do not want durable state.
package memory

import (
	"context"
	"sync"

	"github.com/thingsync/thingsync/internal/core/domain"
	"github.com/thingsync/thingsync/internal/core/ports/driven"
)

// Ensure FingerprintStore implements the interface.
var _ driven.FingerprintStore = (*FingerprintStore)(nil)

// FingerprintStore is an in-memory implementation of driven.FingerprintStore.
type FingerprintStore struct {
	mu  sync.RWMutex
	fps domain.Fingerprints
}

// NewFingerprintStore creates a new in-memory fingerprint store.
func NewFingerprintStore() *FingerprintStore {
	return &FingerprintStore{fps: domain.Fingerprints{}}
}

// Load retrieves the full fingerprint mapping.
func (s *FingerprintStore) Load(_ context.Context) (domain.Fingerprints, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fps.Clone(), nil
}

// Save replaces the stored mapping.
func (s *FingerprintStore) Save(_ context.Context, fps domain.Fingerprints) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps = fps.Clone()
	return nil
}

// Clear removes all records.
func (s *FingerprintStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps = domain.Fingerprints{}
	return nil
}
