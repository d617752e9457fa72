// Package audit records the administrative actions taken against the
// authorization graph: workspace lifecycle, membership changes, role
// changes and denied authorization checks. Events are written through the
// Logger interface; the default production sink is PostgreSQL.
//
// Audit writes are best-effort from the caller's perspective: a failed
// write is logged and never fails the operation it records.
package audit
