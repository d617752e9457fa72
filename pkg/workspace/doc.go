// Package workspace provisions, tears down and reconciles the per-organization
// authorization graph in the Directory: a root group per organization, one
// nested group per role template, one permission per catalog scope, and one
// role per template bound to its scopes' permissions.
//
// Creation is atomic in intent but not transactional: the root group must be
// created first and is the only step whose failure aborts the call. Every
// later step is best-effort and recorded in a Ledger; the Reconciler converges
// partially provisioned organizations on its next pass. Reconciliation only
// adds missing elements or updates role→permission bindings, never removes
// groups, roles, permissions or memberships, so it is safe to run at any time
// against live traffic.
package workspace
