// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - SourceAdapter: Reads tasks from the task manager (Things)
//   - TargetAdapter: Reads and writes pages in the notes workspace (Notion)
//   - FingerprintStore: Durable per-item sync state
//   - PassLock: Advisory single-pass lock
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
