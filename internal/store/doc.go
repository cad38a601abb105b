// Package store manages durable pipeline state backed by SQLite: items,
// per-stage jobs, dead letter entries, daily budget counters, discovery
// checkpoints, and the append-only audit log. All status transitions are
// conditional writes so concurrent or duplicate callbacks cannot corrupt
// item state.
package store
