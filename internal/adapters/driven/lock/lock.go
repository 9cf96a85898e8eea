// Package lock implements the advisory pass lock that keeps overlapping
// scheduler invocations from running concurrent passes. The lock is a small
// JSON marker file; a stale marker (holder older than the configured maximum
// age) is taken over, so an ungraceful termination cannot wedge the sync.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/thingsync/thingsync/internal/core/domain"
	"github.com/thingsync/thingsync/internal/core/ports/driven"
	"github.com/thingsync/thingsync/internal/logger"
)

// Ensure FileLock implements the interface.
var _ driven.PassLock = (*FileLock)(nil)

// DefaultMaxAge is how old a lock marker may be before it is considered
// abandoned. The worst observed pass is a couple of minutes; ten leaves
// headroom without wedging the schedule for long after a crash.
const DefaultMaxAge = 10 * time.Minute

// marker is the liveness token persisted in the lock file.
type marker struct {
	// Token identifies the acquisition, so a takeover cannot be released
	// by the evicted holder.
	Token string `json:"token"`

	// PID is informational, for operators inspecting a stuck lock.
	PID int `json:"pid"`

	// AcquiredAt drives staleness.
	AcquiredAt time.Time `json:"acquired_at"`
}

// FileLock is a lock-file implementation of driven.PassLock.
type FileLock struct {
	path   string
	maxAge time.Duration
	now    func() time.Time
}

// NewFileLock creates a pass lock at path. If path is empty, defaults to
// ~/.thingsync/data/sync.lock. maxAge <= 0 uses DefaultMaxAge.
func NewFileLock(path string, maxAge time.Duration) (*FileLock, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".thingsync", "data", "sync.lock")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &FileLock{path: path, maxAge: maxAge, now: time.Now}, nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire takes the lock. A live holder yields domain.ErrSyncInProgress; a
// stale holder is evicted first.
func (l *FileLock) Acquire() (driven.ReleaseFunc, error) {
	token, err := l.tryAcquire()
	if err == nil {
		return l.releaseFunc(token), nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}

	holder, readErr := l.readMarker()
	if readErr == nil && l.now().Sub(holder.AcquiredAt) < l.maxAge {
		return nil, fmt.Errorf("%w: lock held by pid %d since %s",
			domain.ErrSyncInProgress, holder.PID, holder.AcquiredAt.Format(time.RFC3339))
	}

	// Stale or unreadable marker: the prior pass died ungracefully.
	// Evict and retry once.
	logger.Warn("evicting stale sync lock at %s", l.path)
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("evicting stale lock: %w", err)
	}
	token, err = l.tryAcquire()
	if err != nil {
		if os.IsExist(err) {
			// Another invocation won the race.
			return nil, fmt.Errorf("%w: lock re-acquired concurrently", domain.ErrSyncInProgress)
		}
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	return l.releaseFunc(token), nil
}

// tryAcquire creates the lock file exclusively and writes the marker.
func (l *FileLock) tryAcquire() (string, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", err
	}

	m := marker{
		Token:      uuid.NewString(),
		PID:        os.Getpid(),
		AcquiredAt: l.now(),
	}
	data, err := json.Marshal(m)
	if err == nil {
		_, err = f.Write(data)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(l.path)
		return "", err
	}
	return m.Token, nil
}

// releaseFunc removes the lock file, but only while our token still owns
// it. Safe to call more than once.
func (l *FileLock) releaseFunc(token string) driven.ReleaseFunc {
	released := false
	return func() {
		if released {
			return
		}
		released = true

		holder, err := l.readMarker()
		if err != nil || holder.Token != token {
			// Evicted by a later invocation; nothing of ours to clean.
			return
		}
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			logger.Warn("releasing sync lock: %v", err)
		}
	}
}

func (l *FileLock) readMarker() (marker, error) {
	var m marker
	data, err := os.ReadFile(l.path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	return m, nil
}
