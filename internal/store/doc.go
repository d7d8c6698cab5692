// Package store provides SQLite-backed durable storage for propagation
// traces.
//
// The store is an append-only log of:
//   - Propagations: one row per change applied at an origin node
//   - Steps: one row per change-application step of a propagation
//
// It records what happened, never node data or links. A hierarchy is
// rebuilt from its scenario, not from the store.
//
// # Ordering
//
// All ordering uses the logical seq column, never timestamps, and every
// query sorts by seq ASC, id ASC COLLATE BINARY so reads are identical
// across runs.
//
// # Idempotency
//
// Step IDs are content addressed (see internal/canonical), so writing the
// same trace twice is a no-op: inserts use ON CONFLICT(id) DO NOTHING.
// Propagations carry a digest of their content; rewriting a stored ID with
// another digest fails with ErrConflict instead of mixing two traces.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Steps must reference a known propagation
package store
