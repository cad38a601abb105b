// Package api defines wire-format types and converters for the operational
// query surface. It translates internal store models into transport-friendly
// DTOs so the HTTP API and the CLI render the same views without coupling to
// internal types.
//
// DTOs use camelCase JSON tags. Internal enums (store.Status, store.Stage,
// store.Severity) are exposed as lowercase strings. Timestamps use RFC3339
// with milliseconds. The surface is strictly read-only except for dead
// letter requeue, which is the one operator mutation the pipeline accepts.
package api
