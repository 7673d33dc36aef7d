package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"

	"github.com/ruvnet/alienator-sub000/loadbalance"
	"github.com/ruvnet/alienator-sub000/registry"
)

// Config tunes the gateway.
type Config struct {
	// MaxAttempts caps forwarding attempts per request, counting the
	// first try. Connection failures move on to the next healthy
	// instance until attempts or candidates run out.
	MaxAttempts int
	// DefaultTimeout bounds forwarded attempts on routes without their
	// own timeout.
	DefaultTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		DefaultTimeout: 30 * time.Second,
	}
}

// Gateway routes inbound requests to healthy backend instances. It owns
// the ordered route list; instance state lives in the registry and
// selection in the balancer.
type Gateway struct {
	config   Config
	registry *registry.Registry
	balancer loadbalance.Balancer
	client   *http.Client
	logger   *slog.Logger

	mu     sync.RWMutex
	routes []Route

	// Traffic counters, exposed on the health endpoint.
	requestsTotal  atomic.Int64
	retriesTotal   atomic.Int64
	failuresTotal  atomic.Int64
	notFoundTotal  atomic.Int64
	unavailability atomic.Int64
}

// New creates a gateway over the given registry and balancer.
func New(config Config, reg *registry.Registry, balancer loadbalance.Balancer, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	return &Gateway{
		config:   config,
		registry: reg,
		balancer: balancer,
		client:   newProxyClient(),
		logger:   logger,
	}
}

// AddRoute appends a route. Registration order is match priority.
func (g *Gateway) AddRoute(route Route) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = append(g.routes, route)
}

// Routes returns a copy of the configured route list.
func (g *Gateway) Routes() []Route {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Route, len(g.routes))
	copy(out, g.routes)
	return out
}

// HealthResponse aggregates instance health and traffic counters.
type HealthResponse struct {
	Status      string                   `json:"status"`
	Services    map[string]ServiceHealth `json:"services"`
	Requests    int64                    `json:"requests_total"`
	Retries     int64                    `json:"retries_total"`
	Failures    int64                    `json:"failures_total"`
	NotFound    int64                    `json:"not_found_total"`
	Unavailable int64                    `json:"unavailable_total"`
}

// ServiceHealth counts instances per health state for one service.
type ServiceHealth struct {
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
}

// RegisterRoutes mounts the gateway API surface and the catch-all proxy.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Route("/gateway", func(r chi.Router) {
		r.Get("/health", g.handleHealth)
		r.Get("/routes", g.handleRoutes)
		g.registry.RegisterRoutes(r)
	})
	r.Handle("/*", http.HandlerFunc(g.handleProxy))
}

func (g *Gateway) handleHealth(w http.ResponseWriter, req *http.Request) {
	services := make(map[string]ServiceHealth)
	for name, instances := range g.registry.GetAllServices() {
		var h ServiceHealth
		for _, inst := range instances {
			if inst.Health == registry.Healthy {
				h.Healthy++
			} else {
				h.Unhealthy++
			}
		}
		services[name] = h
	}

	resp := HealthResponse{
		Status:      "ok",
		Services:    services,
		Requests:    g.requestsTotal.Load(),
		Retries:     g.retriesTotal.Load(),
		Failures:    g.failuresTotal.Load(),
		NotFound:    g.notFoundTotal.Load(),
		Unavailable: g.unavailability.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (g *Gateway) handleRoutes(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(g.Routes())
}

// handleProxy matches a route, resolves a healthy instance and forwards
// the request, retrying across remaining healthy instances on connection
// failure.
func (g *Gateway) handleProxy(w http.ResponseWriter, req *http.Request) {
	g.requestsTotal.Inc()

	g.mu.RLock()
	route, ok := matchRoute(g.routes, req.URL.Path, req.Method)
	g.mu.RUnlock()
	if !ok {
		g.notFoundTotal.Inc()
		http.Error(w, "no route for path", http.StatusNotFound)
		return
	}

	healthy := g.registry.GetHealthyInstances(route.ServiceName)
	if len(healthy) == 0 {
		g.unavailability.Inc()
		http.Error(w, "service unavailable: no healthy instances", http.StatusServiceUnavailable)
		return
	}

	body, err := readRequestBody(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The balancer picks the starting instance; connection failures walk
	// the remaining healthy candidates in rotation order.
	first, err := g.balancer.Pick(route.ServiceName, healthy)
	if err != nil {
		g.unavailability.Inc()
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	candidates := rotateToFront(healthy, first.InstanceID)
	attempts := g.config.MaxAttempts
	if attempts > len(candidates) {
		attempts = len(candidates)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			g.retriesTotal.Inc()
		}
		err := g.forwardAttempt(w, req, route, candidates[i], body)
		if err == nil {
			return
		}

		var attempt *errAttemptFailed
		if !errors.As(err, &attempt) {
			// Not a transport failure; do not retry.
			g.failuresTotal.Inc()
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		lastErr = err
		g.logger.Warn("forward attempt failed",
			"service", route.ServiceName, "instance", candidates[i].InstanceID, "err", err)
	}

	g.failuresTotal.Inc()
	g.logger.Error("all forward attempts exhausted",
		"service", route.ServiceName, "attempts", attempts, "err", lastErr)
	http.Error(w, "service unavailable: all upstream attempts failed", http.StatusServiceUnavailable)
}

// rotateToFront reorders instances so the one with the given ID comes
// first, preserving rotation order for the rest.
func rotateToFront(instances []registry.ServiceInstance, instanceID string) []registry.ServiceInstance {
	for i, inst := range instances {
		if inst.InstanceID == instanceID {
			out := make([]registry.ServiceInstance, 0, len(instances))
			out = append(out, instances[i:]...)
			out = append(out, instances[:i]...)
			return out
		}
	}
	return instances
}
