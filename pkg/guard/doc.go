// Package guard is the runtime authorization evaluator. It decides, from
// token claims alone, whether a request may proceed and against which
// organization group(s). It performs no Directory calls and never blocks:
// the claims embedded in the token by the enrichment hook are trusted
// as-is.
//
// Two checks exist:
//
//   - Enforce evaluates a required-scope expression (a disjunction of
//     conjunctions of scope tokens) against the claimed permissions and
//     narrows the request to the group set that satisfies it.
//   - EnforcePrimaryGroup resolves which organization(s) a request targets,
//     handling the service-account, anonymous and authenticated paths.
//
// Both are exposed as pure functions on Guard and as gorilla/mux
// middleware that stores the narrowed group set in the request context.
package guard
