package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfigInvalid indicates the configuration is missing or unusable
	// (absent credentials, unreadable file). The operator must intervene;
	// the CLI exits non-zero.
	ErrConfigInvalid = errors.New("configuration invalid")

	// ErrSyncInProgress indicates a prior pass still holds the lock.
	// The refused pass is not a failure: the scheduler retries on cadence.
	ErrSyncInProgress = errors.New("sync in progress")

	// Adapter errors.

	// ErrAdapterUnavailable indicates a read or write against one of the
	// external systems failed (network, auth, missing database). The pass
	// aborts with fingerprints untouched and retries next invocation.
	ErrAdapterUnavailable = errors.New("adapter unavailable")

	// ErrActionApplyFailed indicates a single action failed to apply.
	// Isolated: the rest of the pass continues, and the item's fingerprint
	// is not advanced so it retries next pass.
	ErrActionApplyFailed = errors.New("action apply failed")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// Store errors.

	// ErrStoreCorrupt indicates persisted fingerprint state could not be
	// parsed. Treated as an empty mapping after a warning, never fatal to
	// a pass; only an unwritable store requires manual intervention.
	ErrStoreCorrupt = errors.New("fingerprint store corrupt")
)
