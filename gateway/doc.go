// Package gateway routes and forwards inbound HTTP traffic to healthy
// backend instances.
//
// Routes form an explicit ordered list: the first route whose path
// prefix and method set match wins, so configuration order is match
// priority. Resolution goes route → registry (healthy instances) →
// balancer (starting instance); forwarding copies method, path, headers
// and body through, honors the per-route timeout, and retries connection
// failures against the remaining healthy instances up to a bounded
// attempt count before answering 503.
//
// The package also exposes the gateway's own API surface: an aggregate
// health endpoint with per-service instance counts and proxy traffic
// counters, the route listing, and the registry's registration
// endpoints.
package gateway
