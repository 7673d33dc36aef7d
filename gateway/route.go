package gateway

import (
	"strings"
	"time"
)

// Route is a static routing rule mapping a path prefix (plus allowed
// methods) to a target service. Routes are immutable after construction
// and held in an ordered list: earlier routes win ties, so registration
// order is match priority.
type Route struct {
	// PathPrefix matched against the start of the request path.
	PathPrefix string `json:"path_prefix" yaml:"path_prefix"`
	// ServiceName of the registry service to forward to.
	ServiceName string `json:"service_name" yaml:"service_name"`
	// Methods allowed on this route. Empty means any method.
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	// StripPrefix removes PathPrefix from the path before forwarding.
	StripPrefix bool `json:"strip_prefix,omitempty" yaml:"strip_prefix,omitempty"`
	// Timeout bounds each forwarded attempt. Zero means the default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Matches reports whether the route applies to the given path and method.
func (r Route) Matches(path, method string) bool {
	if !strings.HasPrefix(path, r.PathPrefix) {
		return false
	}
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// ForwardPath returns the upstream path for a request path, honoring the
// strip-prefix flag.
func (r Route) ForwardPath(path string) string {
	if !r.StripPrefix {
		return path
	}
	stripped := strings.TrimPrefix(path, r.PathPrefix)
	if !strings.HasPrefix(stripped, "/") {
		stripped = "/" + stripped
	}
	return stripped
}

// matchRoute returns the first route matching path and method, in
// configuration order.
func matchRoute(routes []Route, path, method string) (Route, bool) {
	for _, route := range routes {
		if route.Matches(path, method) {
			return route, true
		}
	}
	return Route{}, false
}
