// Package registry provides in-memory service discovery for backend
// instances.
//
// A Registry owns the service→instances map and exposes registration,
// deregistration and query operations over both a Go API and a small chi
// HTTP surface. A HealthChecker runs the background liveness protocol:
// every interval it probes each instance's /health endpoint with a bounded
// timeout, flips instances between healthy and unhealthy, and removes any
// instance that has not been seen within the staleness window.
//
// All query results are defensive copies; callers never hold references
// into live registry state. Network I/O happens outside the registry lock
// so a slow backend cannot stall unrelated operations.
package registry
