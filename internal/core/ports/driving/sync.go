package driving

import (
	"context"

	"github.com/thingsync/thingsync/internal/core/domain"
)

// SyncRunner executes one reconciliation pass. Stateless between calls: the
// external scheduler owns cadence and simply invokes RunOnce repeatedly.
type SyncRunner interface {
	// RunOnce performs a single pass in the given mode and returns its
	// summary. Per-item apply failures are reported in the summary, not
	// as an error; an error means the pass could not run at all (lock
	// held, adapter unavailable, store unwritable).
	RunOnce(ctx context.Context, mode domain.Mode) (domain.PassSummary, error)
}
