// Package main hosts the gister CLI entrypoint and command graph.
//
// The Cobra-based command tree renders the pipeline's operational views:
// status counts, item listings, dead letter triage and requeue, budget
// usage, discovery checkpoints, and the audit trail. Commands read the state
// database directly through the same view service the daemon's HTTP API
// uses, so both surfaces always agree.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
