package domain

// ActionKind classifies what the driver must do for one item.
type ActionKind string

const (
	// ActionCreate inserts the item on the target.
	ActionCreate ActionKind = "create"

	// ActionUpdate overwrites the target item's content with the source's.
	ActionUpdate ActionKind = "update"

	// ActionDelete removes (archives) the target item. A Delete with an
	// empty TargetID is a fingerprint prune: the item is gone on both
	// sides and only the record needs removing.
	ActionDelete ActionKind = "delete"

	// ActionSkip means no target change is needed. The fingerprint is
	// still refreshed unless the item is foreign to the sync.
	ActionSkip ActionKind = "skip"
)

// Action is one reconciliation decision, produced by the reconciler and
// applied by the driver.
type Action struct {
	// Kind is what to do.
	Kind ActionKind

	// Item is the source-authoritative state. For Delete it carries only
	// the SourceID; the source no longer has content for it.
	Item Item

	// TargetID is the known target identity for Update and Delete.
	TargetID string

	// Discarded, when non-nil, is a divergent target-side state this
	// action will overwrite or remove. The driver logs it as a discarded
	// conflict rather than losing the edit silently.
	Discarded *Item

	// Foreign marks a Skip for a target-only item the engine must never
	// touch or fingerprint.
	Foreign bool
}

// PassSummary is the structured result of one sync pass.
type PassSummary struct {
	// Created, Updated, Deleted and Skipped count successfully applied
	// actions by kind.
	Created int
	Updated int
	Deleted int
	Skipped int

	// Failed counts actions whose apply failed. Their fingerprints were
	// not advanced; they retry next pass.
	Failed int

	// Conflicts counts discarded target-side edits.
	Conflicts int

	// StoreRecovered reports that the fingerprint store was unreadable and
	// the pass ran against an empty mapping.
	StoreRecovered bool
}

// Total returns the number of actions the pass attempted.
func (s PassSummary) Total() int {
	return s.Created + s.Updated + s.Deleted + s.Skipped + s.Failed
}
