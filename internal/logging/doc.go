// Package logging provides slog-based structured logging with a human-readable
// console handler, a JSON handler for machine ingestion, and standardized
// attribute keys shared across pipeline components.
package logging
