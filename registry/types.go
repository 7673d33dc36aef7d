package registry

import (
	"time"
)

// HealthState describes the last known liveness verdict for an instance.
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Unhealthy HealthState = "unhealthy"
)

// ServiceInstance is one addressable backend process, identified by
// service name plus instance ID. Instances are owned by the Registry;
// callers always receive copies.
type ServiceInstance struct {
	ServiceName string            `json:"service_name"`
	InstanceID  string            `json:"instance_id"`
	Address     string            `json:"address"`
	Health      HealthState       `json:"health"`
	Tags        map[string]string `json:"tags,omitempty"`
	LastSeen    time.Time         `json:"last_seen"`
}

func (s ServiceInstance) clone() ServiceInstance {
	out := s
	if s.Tags != nil {
		out.Tags = make(map[string]string, len(s.Tags))
		for k, v := range s.Tags {
			out.Tags[k] = v
		}
	}
	return out
}

// RegisterRequest is the HTTP payload for instance registration.
// Re-registering an existing (service_name, instance_id) pair acts as a
// heartbeat: the address and tags are overwritten and the instance is
// reset to healthy.
type RegisterRequest struct {
	ServiceName string            `json:"service_name"`
	InstanceID  string            `json:"instance_id"`
	Address     string            `json:"address"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// RegisterResponse confirms a registration.
type RegisterResponse struct {
	Success    bool   `json:"success"`
	InstanceID string `json:"instance_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ServiceListResponse lists every registered instance grouped by service.
type ServiceListResponse struct {
	Services map[string][]ServiceInstance `json:"services"`
}
