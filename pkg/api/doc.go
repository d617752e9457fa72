// Package api exposes the administrative HTTP surface of the authorization
// core: workspace lifecycle, member management, membership queries, catalog
// inspection and on-demand reconciliation. Every route sits behind the
// guard middleware; handlers additionally apply privilege checks that
// depend on Directory state, such as the rule that nobody grants a role
// above their own.
package api
