package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Item is the normalised representation of a task on either side of the
// sync. Adapters reconstruct Items on every pass; nothing here is persisted.
type Item struct {
	// SourceID is the stable identifier in the task manager (Things UUID).
	SourceID string

	// TargetID is the stable identifier in the notes workspace (Notion page
	// id). Empty until the item has been created on the target.
	TargetID string

	// Title is the task title.
	Title string

	// Completed reports whether the task is done.
	Completed bool

	// Project is the resolved project title, empty for loose tasks.
	Project string

	// Notes is the free-form note body.
	Notes string

	// Due is the display date in ISO form (start date, falling back to
	// deadline). Empty when the task is undated.
	Due string

	// LastModified is the source-side modification time. Used for logging
	// discarded conflicts, not for hashing.
	LastModified time.Time

	// Deleted marks a tombstone: the task was trashed rather than merely
	// absent from the source.
	Deleted bool
}

// ContentHash fingerprints the syncable content of the item. Two items with
// equal hashes need no update on the target. Identity and bookkeeping fields
// (SourceID, TargetID, LastModified, Deleted) are deliberately excluded.
func (i Item) ContentHash() string {
	h := sha256.New()
	for _, field := range []string{i.Title, boolField(i.Completed), i.Project, i.Notes, i.Due} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
