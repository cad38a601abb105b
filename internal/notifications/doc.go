// Package notifications delivers best-effort push notifications via ntfy.
// Delivery failures are never retried by the pipeline; the core treats the
// notifier as fire-and-forget.
package notifications
