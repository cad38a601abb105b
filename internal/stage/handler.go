package stage

import (
	"context"

	"gister/internal/store"
)

// Result carries what a completed stage reports back to the pipeline: the
// actual spend to reconcile against the budget reservation, and an optional
// reference into the external system that did the work.
type Result struct {
	ActualCost  float64
	ExternalRef string
}

// Handler describes the contract the workflow manager needs from each stage.
// Execute must tolerate re-runs for the same item: after a crash the manager
// dispatches the item again in the same processing status.
type Handler interface {
	Prepare(context.Context, *store.Item) error
	Execute(context.Context, *store.Item) (Result, error)
	HealthCheck(context.Context) Health
}
