package driven

// ReleaseFunc releases an acquired pass lock. Safe to call more than once.
type ReleaseFunc func()

// PassLock guards against overlapping invocations from the external
// scheduler. Advisory: the lock records a liveness marker that a later
// invocation may override once it is older than the configured maximum age,
// so an ungraceful termination cannot wedge the sync forever.
type PassLock interface {
	// Acquire takes the lock, returning domain.ErrSyncInProgress when a
	// live prior pass still holds it. The returned release runs on every
	// exit path of the pass.
	Acquire() (ReleaseFunc, error)
}
