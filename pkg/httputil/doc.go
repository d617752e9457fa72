// Package httputil carries the shared HTTP plumbing of the administrative
// API: JSON response writers with a uniform error envelope, request body
// decoding, and the edge middleware (request ids, access logging, panic
// recovery).
package httputil
