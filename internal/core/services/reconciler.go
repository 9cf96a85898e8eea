package services

import (
	"sort"

	"github.com/thingsync/thingsync/internal/core/domain"
)

// ReconcileInput is everything one reconciliation needs. The reconciler is a
// pure function of these three inputs plus the force flag: no adapter calls,
// no clock, no mutation of the fingerprint mapping.
type ReconcileInput struct {
	// Source is the current task-manager state, tombstones included.
	Source []domain.Item

	// Target is the current notes-workspace state. Items without a
	// SourceID are foreign and never written to.
	Target []domain.Item

	// Fingerprints is the mapping persisted by the previous pass.
	Fingerprints domain.Fingerprints

	// Force disables the fingerprint short-circuit: every fingerprinted
	// item is re-evaluated against live target content, repairing drift
	// the normal pass would not look for.
	Force bool
}

// Reconcile computes the actions that converge the target to the
// source-authoritative state. Output ordering is the apply ordering: all
// creates, then updates, then deletes, then skips, each group sorted by
// source id so passes are deterministic.
func Reconcile(in ReconcileInput) []domain.Action {
	targetBySID := make(map[string]domain.Item)
	var foreign []domain.Item
	for _, t := range in.Target {
		if t.SourceID == "" {
			foreign = append(foreign, t)
			continue
		}
		targetBySID[t.SourceID] = t
	}

	live := make(map[string]domain.Item)
	tombstoned := make(map[string]domain.Item)
	for _, s := range in.Source {
		if s.Deleted {
			tombstoned[s.SourceID] = s
			continue
		}
		live[s.SourceID] = s
	}

	var creates, updates, deletes, skips []domain.Action

	// Live source items: create, update or skip.
	for sid, s := range live {
		tgt, hasTgt := targetBySID[sid]
		fp, hasFP := in.Fingerprints[sid]
		srcHash := s.ContentHash()

		switch {
		case !hasFP && !hasTgt:
			creates = append(creates, domain.Action{Kind: domain.ActionCreate, Item: s})

		case !hasFP && hasTgt:
			// Adoption: the target already holds this item but the
			// mapping was lost (first run, cleared cache). Never
			// create a duplicate.
			if tgt.ContentHash() != srcHash {
				updates = append(updates, domain.Action{
					Kind:      domain.ActionUpdate,
					Item:      s,
					TargetID:  tgt.TargetID,
					Discarded: discarded(tgt),
				})
			} else {
				skips = append(skips, domain.Action{Kind: domain.ActionSkip, Item: s, TargetID: tgt.TargetID})
			}

		case hasFP && !hasTgt:
			// Deleted on the target while still live on source:
			// source authority recreates it.
			creates = append(creates, domain.Action{Kind: domain.ActionCreate, Item: s})

		default: // hasFP && hasTgt
			tgtHash := tgt.ContentHash()
			sourceChanged := srcHash != fp.ContentHash
			targetChanged := tgtHash != fp.ContentHash

			targetID := tgt.TargetID
			if targetID == "" {
				targetID = fp.TargetID
			}

			needsWrite := sourceChanged
			if in.Force {
				needsWrite = tgtHash != srcHash
			}

			if !needsWrite {
				skips = append(skips, domain.Action{Kind: domain.ActionSkip, Item: s, TargetID: targetID})
				continue
			}

			action := domain.Action{Kind: domain.ActionUpdate, Item: s, TargetID: targetID}
			if targetChanged {
				// Source wins; the target's divergent edit is
				// discarded, and the driver logs it.
				action.Discarded = discarded(tgt)
			}
			updates = append(updates, action)
		}
	}

	// Fingerprinted items gone from the source: delete or prune.
	for sid, fp := range in.Fingerprints {
		if _, stillLive := live[sid]; stillLive {
			continue
		}
		tgt, hasTgt := targetBySID[sid]
		if !hasTgt {
			// Gone on both sides: prune the record, no adapter call.
			deletes = append(deletes, domain.Action{Kind: domain.ActionDelete, Item: domain.Item{SourceID: sid}})
			continue
		}
		action := domain.Action{
			Kind:     domain.ActionDelete,
			Item:     domain.Item{SourceID: sid},
			TargetID: tgt.TargetID,
		}
		if tgt.ContentHash() != fp.ContentHash {
			action.Discarded = discarded(tgt)
		}
		deletes = append(deletes, action)
	}

	// Tombstoned source items the fingerprints never recorded (cleared
	// cache) still propagate: the target page names their source id.
	for sid := range tombstoned {
		if _, known := in.Fingerprints[sid]; known {
			continue
		}
		if tgt, hasTgt := targetBySID[sid]; hasTgt {
			deletes = append(deletes, domain.Action{
				Kind:     domain.ActionDelete,
				Item:     domain.Item{SourceID: sid},
				TargetID: tgt.TargetID,
			})
		}
	}

	// Target items matching nothing on our side are foreign: never
	// deleted, never overwritten, never fingerprinted.
	for sid, tgt := range targetBySID {
		_, isLive := live[sid]
		_, isTombstoned := tombstoned[sid]
		_, isFingerprinted := in.Fingerprints[sid]
		if !isLive && !isTombstoned && !isFingerprinted {
			foreign = append(foreign, tgt)
		}
	}
	for _, tgt := range foreign {
		skips = append(skips, domain.Action{Kind: domain.ActionSkip, Item: tgt, TargetID: tgt.TargetID, Foreign: true})
	}

	for _, group := range [][]domain.Action{creates, updates, deletes, skips} {
		sortActions(group)
	}

	out := make([]domain.Action, 0, len(creates)+len(updates)+len(deletes)+len(skips))
	out = append(out, creates...)
	out = append(out, updates...)
	out = append(out, deletes...)
	out = append(out, skips...)
	return out
}

func sortActions(actions []domain.Action) {
	sort.Slice(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if a.Item.SourceID != b.Item.SourceID {
			return a.Item.SourceID < b.Item.SourceID
		}
		return a.TargetID < b.TargetID
	})
}

func discarded(tgt domain.Item) *domain.Item {
	copied := tgt
	return &copied
}
