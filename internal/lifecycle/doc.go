// Package lifecycle applies operator transitions to batches of topics.
//
// Every id in a batch is handled on its own: a failed precondition yields a
// consistency error for that id while the others proceed. Each per-id
// operation is authorized, audited, and applied as a single compare-and-set
// against the store, so it cannot lose an update to a concurrent lane run.
package lifecycle
