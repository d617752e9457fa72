// Package directory is a thin adapter over the external Directory service,
// the system of record for groups, roles, permissions and memberships.
//
// The Directory offers no transactions and at-least-once call semantics;
// callers (the workspace provisioner and reconciler) are responsible for
// existence checks before creation and for eventual convergence. This
// package only translates operations and errors.
//
// Client is the operation contract. HTTPClient implements it against the
// Directory's REST API, authenticating with OAuth2 client credentials.
// Fake is an in-memory implementation for tests.
package directory
