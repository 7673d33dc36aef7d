package registry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Registry manages service discovery for backend instances. It owns the
// service→instances map; all reads hand out copies so callers never
// observe later mutation.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	services map[string][]*ServiceInstance
}

// NewRegistry creates an empty registry. A nil logger falls back to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		services: make(map[string][]*ServiceInstance),
	}
}

// Register adds an instance, or refreshes it if the (service, instance ID)
// pair is already present. Refreshing overwrites address and tags and
// resets the instance to healthy with a current last-seen timestamp.
// Idempotent; never fails.
func (r *Registry) Register(inst ServiceInstance) {
	if inst.InstanceID == "" {
		inst.InstanceID = uuid.NewString()
	}
	inst.Health = Healthy
	inst.LastSeen = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.services[inst.ServiceName]
	for _, existing := range list {
		if existing.InstanceID == inst.InstanceID {
			existing.Address = inst.Address
			existing.Tags = inst.Tags
			existing.Health = Healthy
			existing.LastSeen = inst.LastSeen
			return
		}
	}

	stored := inst.clone()
	r.services[inst.ServiceName] = append(list, &stored)
	r.logger.Info("instance registered",
		"service", inst.ServiceName, "instance", inst.InstanceID, "address", inst.Address)
}

// Deregister removes the matching instance. Removing an unknown instance
// is a no-op, not an error.
func (r *Registry) Deregister(serviceName, instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.services[serviceName]
	for i, inst := range list {
		if inst.InstanceID == instanceID {
			r.services[serviceName] = append(list[:i], list[i+1:]...)
			if len(r.services[serviceName]) == 0 {
				delete(r.services, serviceName)
			}
			r.logger.Info("instance deregistered", "service", serviceName, "instance", instanceID)
			return
		}
	}
}

// GetHealthyInstances returns a snapshot of the instances currently marked
// healthy for the named service.
func (r *Registry) GetHealthyInstances(serviceName string) []ServiceInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ServiceInstance
	for _, inst := range r.services[serviceName] {
		if inst.Health == Healthy {
			out = append(out, inst.clone())
		}
	}
	return out
}

// GetAllServices deep-copies the whole service map for listing and
// diagnostics.
func (r *Registry) GetAllServices() map[string][]ServiceInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]ServiceInstance, len(r.services))
	for name, list := range r.services {
		copies := make([]ServiceInstance, 0, len(list))
		for _, inst := range list {
			copies = append(copies, inst.clone())
		}
		out[name] = copies
	}
	return out
}

// snapshot returns owned copies of every instance, for the health loop.
func (r *Registry) snapshot() []ServiceInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ServiceInstance
	for _, list := range r.services {
		for _, inst := range list {
			out = append(out, inst.clone())
		}
	}
	return out
}

// setHealth records a probe verdict. A healthy verdict also refreshes the
// last-seen timestamp; an unhealthy one leaves it alone so stale cleanup
// still fires for instances that stopped heartbeating.
func (r *Registry) setHealth(serviceName, instanceID string, state HealthState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, inst := range r.services[serviceName] {
		if inst.InstanceID == instanceID {
			if inst.Health != state {
				r.logger.Info("instance health changed",
					"service", serviceName, "instance", instanceID, "health", string(state))
			}
			inst.Health = state
			if state == Healthy {
				inst.LastSeen = time.Now()
			}
			return
		}
	}
}

// removeStale drops every instance whose last-seen timestamp is older than
// the cutoff, regardless of its last health verdict. Returns the number
// removed.
func (r *Registry) removeStale(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for name, list := range r.services {
		kept := list[:0]
		for _, inst := range list {
			if inst.LastSeen.Before(cutoff) {
				removed++
				r.logger.Info("stale instance removed",
					"service", name, "instance", inst.InstanceID, "last_seen", inst.LastSeen)
				continue
			}
			kept = append(kept, inst)
		}
		if len(kept) == 0 {
			delete(r.services, name)
		} else {
			r.services[name] = kept
		}
	}
	return removed
}

// RegisterRoutes mounts the registry HTTP endpoints.
func (r *Registry) RegisterRoutes(router chi.Router) {
	router.Get("/registry/services", r.handleListServices)
	router.Post("/registry/services", r.handleRegister)
	router.Delete("/registry/services/{service}/{id}", r.handleDeregister)
}

func (r *Registry) handleRegister(w http.ResponseWriter, req *http.Request) {
	var regReq RegisterRequest
	if err := json.NewDecoder(req.Body).Decode(&regReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if regReq.ServiceName == "" || regReq.Address == "" {
		http.Error(w, "service_name and address are required", http.StatusBadRequest)
		return
	}

	inst := ServiceInstance{
		ServiceName: regReq.ServiceName,
		InstanceID:  regReq.InstanceID,
		Address:     regReq.Address,
		Tags:        regReq.Tags,
	}
	if inst.InstanceID == "" {
		inst.InstanceID = uuid.NewString()
	}
	r.Register(inst)

	json.NewEncoder(w).Encode(&RegisterResponse{
		Success:    true,
		InstanceID: inst.InstanceID,
	})
}

func (r *Registry) handleDeregister(w http.ResponseWriter, req *http.Request) {
	service := chi.URLParam(req, "service")
	id := chi.URLParam(req, "id")
	r.Deregister(service, id)
	w.WriteHeader(http.StatusOK)
}

func (r *Registry) handleListServices(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&ServiceListResponse{Services: r.GetAllServices()})
}
