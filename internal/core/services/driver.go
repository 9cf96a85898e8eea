package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thingsync/thingsync/internal/core/domain"
	"github.com/thingsync/thingsync/internal/core/ports/driven"
	"github.com/thingsync/thingsync/internal/core/ports/driving"
	"github.com/thingsync/thingsync/internal/logger"
)

// Ensure SyncDriver implements the interface.
var _ driving.SyncRunner = (*SyncDriver)(nil)

// Pass phases. A pass moves Loading → Reconciling → Applying → Persisting;
// any abort returns the driver to idle for the next scheduled invocation.
const (
	phaseLoading     = "Loading"
	phaseReconciling = "Reconciling"
	phaseApplying    = "Applying"
	phasePersisting  = "Persisting"
)

// SyncDriver orchestrates one sync pass over the driven ports.
type SyncDriver struct {
	source       driven.SourceAdapter
	legacySource driven.SourceAdapter
	target       driven.TargetAdapter
	store        driven.FingerprintStore
	lock         driven.PassLock

	// callTimeout bounds every individual adapter call. A timed-out call
	// is a failed fetch or a failed action, never a hang.
	callTimeout time.Duration

	// now is the clock, injectable for tests.
	now func() time.Time
}

// NewSyncDriver creates a sync driver. legacySource may be nil when the
// legacy export pipeline is not configured; callTimeout <= 0 disables the
// per-call bound.
func NewSyncDriver(
	source driven.SourceAdapter,
	legacySource driven.SourceAdapter,
	target driven.TargetAdapter,
	store driven.FingerprintStore,
	lock driven.PassLock,
	callTimeout time.Duration,
) *SyncDriver {
	return &SyncDriver{
		source:       source,
		legacySource: legacySource,
		target:       target,
		store:        store,
		lock:         lock,
		callTimeout:  callTimeout,
		now:          time.Now,
	}
}

// RunOnce performs a single reconciliation pass.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (d *SyncDriver) RunOnce(ctx context.Context, mode domain.Mode) (domain.PassSummary, error) {
	var summary domain.PassSummary

	release, err := d.lock.Acquire()
	if err != nil {
		return summary, err
	}
	defer release()

	source := d.source
	if mode == domain.ModeLegacy {
		if d.legacySource == nil {
			return summary, fmt.Errorf("%w: legacy source not configured", domain.ErrConfigInvalid)
		}
		source = d.legacySource
	}

	if mode == domain.ModeClearCache {
		if err := d.store.Clear(ctx); err != nil {
			return summary, fmt.Errorf("clearing fingerprint store: %w", err)
		}
		logger.Info("fingerprint store cleared; rebuilding mapping from live target state")
	}

	logger.Phase(phaseLoading)

	fps, err := d.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrStoreCorrupt) {
			return summary, fmt.Errorf("loading fingerprints: %w", err)
		}
		// Corrupt state is recovered, not fatal: run against an empty
		// mapping and rebuild. Target creates upsert by source id, so
		// this cannot duplicate.
		logger.Warn("fingerprint store unreadable, treating as empty: %v", err)
		fps = domain.Fingerprints{}
		summary.StoreRecovered = true
	}
	if fps == nil {
		fps = domain.Fingerprints{}
	}

	if err := d.callAdapter(ctx, source.Validate); err != nil {
		return summary, fmt.Errorf("%w: validating %s source: %v", domain.ErrAdapterUnavailable, source.Type(), err)
	}
	if err := d.callAdapter(ctx, d.target.Validate); err != nil {
		return summary, fmt.Errorf("%w: validating %s target: %v", domain.ErrAdapterUnavailable, d.target.Type(), err)
	}

	sourceItems, err := d.fetchItems(ctx, source.Items)
	if err != nil {
		return summary, fmt.Errorf("%w: reading %s source: %v", domain.ErrAdapterUnavailable, source.Type(), err)
	}
	targetItems, err := d.fetchItems(ctx, d.target.Items)
	if err != nil {
		return summary, fmt.Errorf("%w: reading %s target: %v", domain.ErrAdapterUnavailable, d.target.Type(), err)
	}
	logger.Info("loaded %d source items, %d target items, %d fingerprints",
		len(sourceItems), len(targetItems), len(fps))

	logger.Phase(phaseReconciling)

	actions := Reconcile(ReconcileInput{
		Source:       sourceItems,
		Target:       targetItems,
		Fingerprints: fps,
		Force:        mode == domain.ModeForce,
	})

	logger.Phase(phaseApplying)

	// Fingerprints advance per action, only on success. A failed action
	// keeps its prior record (or none) and retries next pass.
	next := fps.Clone()
	for _, action := range actions {
		d.applyAction(ctx, action, next, &summary)
	}

	logger.Phase(phasePersisting)

	if err := d.store.Save(ctx, next); err != nil {
		if summary.StoreRecovered {
			// Unreadable and now unwritable: this needs an operator.
			return summary, fmt.Errorf("%w: recovered store could not be rewritten: %v", domain.ErrStoreCorrupt, err)
		}
		return summary, fmt.Errorf("persisting fingerprints: %w", err)
	}

	logger.Info("pass complete: %d created, %d updated, %d deleted, %d skipped, %d failed, %d conflicts",
		summary.Created, summary.Updated, summary.Deleted, summary.Skipped, summary.Failed, summary.Conflicts)
	return summary, nil
}

// applyAction executes one action, advancing the fingerprint mapping and the
// summary. Failures are isolated: they log, count, and leave the mapping as
// it was.
func (d *SyncDriver) applyAction(ctx context.Context, action domain.Action, next domain.Fingerprints, summary *domain.PassSummary) {
	sid := action.Item.SourceID

	switch action.Kind {
	case domain.ActionCreate:
		var targetID string
		err := d.callAdapter(ctx, func(callCtx context.Context) error {
			var createErr error
			targetID, createErr = d.target.Create(callCtx, action.Item)
			return createErr
		})
		if err != nil {
			d.recordFailure(summary, action, err)
			return
		}
		next[sid] = domain.FingerprintRecord{
			ContentHash:  action.Item.ContentHash(),
			TargetID:     targetID,
			LastSyncedAt: d.now(),
		}
		summary.Created++
		logger.Debug("created %q (%s -> %s)", action.Item.Title, sid, targetID)

	case domain.ActionUpdate:
		err := d.callAdapter(ctx, func(callCtx context.Context) error {
			return d.target.Update(callCtx, action.TargetID, action.Item)
		})
		if err != nil {
			d.recordFailure(summary, action, err)
			return
		}
		next[sid] = domain.FingerprintRecord{
			ContentHash:  action.Item.ContentHash(),
			TargetID:     action.TargetID,
			LastSyncedAt: d.now(),
		}
		summary.Updated++
		logger.Debug("updated %q (%s)", action.Item.Title, sid)

	case domain.ActionDelete:
		if action.TargetID != "" {
			err := d.callAdapter(ctx, func(callCtx context.Context) error {
				return d.target.Delete(callCtx, action.TargetID)
			})
			if err != nil {
				d.recordFailure(summary, action, err)
				return
			}
		}
		delete(next, sid)
		summary.Deleted++
		logger.Debug("deleted %s (target %s)", sid, action.TargetID)

	case domain.ActionSkip:
		if !action.Foreign {
			next[sid] = domain.FingerprintRecord{
				ContentHash:  action.Item.ContentHash(),
				TargetID:     action.TargetID,
				LastSyncedAt: d.now(),
			}
		}
		summary.Skipped++
	}

	if action.Discarded != nil {
		// Informational, not an error: source wins, but the overwritten
		// target edit is recorded rather than silently lost.
		summary.Conflicts++
		logger.Warn("conflict discarded for %s: target %q (modified %s) overwritten by source",
			sid, action.Discarded.Title, action.Discarded.LastModified.Format(time.RFC3339))
	}
}

func (d *SyncDriver) recordFailure(summary *domain.PassSummary, action domain.Action, err error) {
	summary.Failed++
	logger.Error("%v: %s %s: %v", domain.ErrActionApplyFailed, action.Kind, action.Item.SourceID, err)
}

// callAdapter runs one adapter call under the per-call timeout.
func (d *SyncDriver) callAdapter(ctx context.Context, call func(context.Context) error) error {
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}
	return call(ctx)
}

func (d *SyncDriver) fetchItems(ctx context.Context, fetch func(context.Context) ([]domain.Item, error)) ([]domain.Item, error) {
	var items []domain.Item
	err := d.callAdapter(ctx, func(callCtx context.Context) error {
		var fetchErr error
		items, fetchErr = fetch(callCtx)
		return fetchErr
	})
	return items, err
}
