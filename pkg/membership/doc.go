// Package membership resolves a user's effective place in the organization
// hierarchy: flattened group memberships, primary-group lookup, nested-group
// and role aggregation, and ownership/admin/super-admin determination. All
// operations are reads against the Directory; the resolver never mutates.
//
// Membership calculation is the hot path and the only Directory read worth
// caching: results flow through an in-process LRU backed by redis when one
// is configured.
package membership
