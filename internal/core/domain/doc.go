// Package domain defines the core business entities for thingsync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Item: A normalised task as seen on either side of the sync
//   - FingerprintRecord: Durable per-item state from the last pass
//   - Action: One reconciliation decision (create/update/delete/skip)
//   - PassSummary: The structured result of one sync pass
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
