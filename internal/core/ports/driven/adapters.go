package driven

import (
	"context"

	"github.com/thingsync/thingsync/internal/core/domain"
)

// SourceAdapter reads the current state of the task manager. The source is
// authoritative: the engine converges the target towards what it returns.
type SourceAdapter interface {
	// Type returns the adapter type identifier ("things", "things-export").
	Type() string

	// Validate checks the adapter is properly configured and reachable.
	// For the SQLite adapter this opens the database; for the export
	// adapter it stats the file.
	Validate(ctx context.Context) error

	// Items returns every syncable task, normalised, including tombstones
	// for trashed tasks. Failure means the whole pass aborts, so partial
	// results are never returned.
	Items(ctx context.Context) ([]domain.Item, error)

	// Close releases resources.
	Close() error
}

// TargetAdapter reads and writes the notes workspace. Implementations must
// make Create an idempotent upsert by source id: creating an item whose
// source id already exists on the target updates it instead, so a cleared
// fingerprint cache can never duplicate pages.
type TargetAdapter interface {
	// Type returns the adapter type identifier ("notion").
	Type() string

	// Validate checks credentials and database reachability.
	Validate(ctx context.Context) error

	// Items returns every page the sync knows how to read. Pages carrying
	// a source id have it set; foreign pages have an empty SourceID and
	// must never be written to.
	Items(ctx context.Context) ([]domain.Item, error)

	// Create upserts the item by its source id and returns the target id
	// it lives under.
	Create(ctx context.Context, item domain.Item) (string, error)

	// Update overwrites the page's syncable properties.
	Update(ctx context.Context, targetID string, item domain.Item) error

	// Delete removes the page. Implementations may archive rather than
	// destroy.
	Delete(ctx context.Context, targetID string) error

	// Close releases resources.
	Close() error
}
