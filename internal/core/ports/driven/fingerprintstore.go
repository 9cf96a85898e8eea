package driven

import (
	"context"

	"github.com/thingsync/thingsync/internal/core/domain"
)

// FingerprintStore persists the per-item sync state between passes.
type FingerprintStore interface {
	// Load retrieves the full fingerprint mapping. Returns
	// domain.ErrStoreCorrupt if persisted data cannot be parsed; the
	// caller recovers by treating the mapping as empty.
	Load(ctx context.Context) (domain.Fingerprints, error)

	// Save atomically replaces the persisted mapping. A crash mid-save
	// must never leave a corrupt store behind.
	Save(ctx context.Context, fps domain.Fingerprints) error

	// Clear removes all records (force full resync).
	Clear(ctx context.Context) error
}
