// Package observability provides the structured logger, Prometheus metrics,
// OpenTelemetry bootstrap and health probes shared by the authorization
// core's components.
package observability
