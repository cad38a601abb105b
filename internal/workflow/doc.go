// Package workflow coordinates the daemon's background loops: polling the
// queue of items awaiting a stage, dispatching batches across the worker
// pool, and running interval discovery passes per source. All status
// movement goes through the pipeline state machine; the manager only decides
// when work is attempted.
package workflow
