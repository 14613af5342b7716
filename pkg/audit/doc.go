// Package audit captures upstream exchange snapshots for later inspection.
//
// The transport kernel emits a Snapshot for each request and response it
// handles; the Recorder here converts those into durable Records without
// blocking the request path. Bodies are never stored verbatim, only their
// SHA-256 hash and size, so the audit trail cannot leak prompt or
// completion content.
//
// Two storage backends are provided: an in-memory store for tests and
// short-lived runs, and a SQLite store with a selectable driver. Retention
// pruning runs on a cron schedule.
package audit
