package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// failingProbe fails for the addresses in its set and succeeds otherwise.
type failingProbe struct {
	mu      sync.Mutex
	failing map[string]bool
}

func (p *failingProbe) probe(_ context.Context, address string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing[address] {
		return errors.New("connection refused")
	}
	return nil
}

func (p *failingProbe) setFailing(address string, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing[address] = fail
}

func setupChecker(t *testing.T, probe ProbeFunc) (*Registry, *HealthChecker) {
	t.Helper()

	reg := NewRegistry(nil)
	checker := NewHealthChecker(reg, HealthCheckerConfig{
		Interval:     10 * time.Millisecond,
		ProbeTimeout: time.Second,
		StaleAfter:   5 * time.Minute,
	}, probe, nil)
	return reg, checker
}

func TestHealthChecker_MarksFailingInstanceUnhealthy(t *testing.T) {
	probe := &failingProbe{failing: map[string]bool{"localhost:9002": true}}
	reg, checker := setupChecker(t, probe.probe)

	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: "localhost:9001"})
	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "b", Address: "localhost:9002"})

	checker.runPass(context.Background())

	healthy := reg.GetHealthyInstances("svc")
	require.Len(t, healthy, 1)
	require.Equal(t, "a", healthy[0].InstanceID)

	// The failing instance stays registered, just unhealthy.
	require.Len(t, reg.GetAllServices()["svc"], 2)
}

func TestHealthChecker_RecoveredInstanceTurnsHealthy(t *testing.T) {
	probe := &failingProbe{failing: map[string]bool{"localhost:9001": true}}
	reg, checker := setupChecker(t, probe.probe)

	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: "localhost:9001"})

	checker.runPass(context.Background())
	require.Empty(t, reg.GetHealthyInstances("svc"))

	probe.setFailing("localhost:9001", false)
	checker.runPass(context.Background())
	require.Len(t, reg.GetHealthyInstances("svc"), 1)
}

func TestHealthChecker_StaleInstanceRemovedEvenIfLastVerdictHealthy(t *testing.T) {
	probe := &failingProbe{failing: map[string]bool{"localhost:9002": true}}
	reg := NewRegistry(nil)
	checker := NewHealthChecker(reg, HealthCheckerConfig{
		Interval:     10 * time.Millisecond,
		ProbeTimeout: time.Second,
		StaleAfter:   time.Minute,
	}, probe.probe, nil)

	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: "localhost:9001"})
	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "b", Address: "localhost:9002"})

	// Instance b never probes healthy, so its last-seen never refreshes.
	// Age it past the window; instance a keeps refreshing via the probe.
	reg.mu.Lock()
	for _, inst := range reg.services["svc"] {
		if inst.InstanceID == "b" {
			inst.LastSeen = time.Now().Add(-2 * time.Minute)
			inst.Health = Healthy
		}
	}
	reg.mu.Unlock()

	checker.runPass(context.Background())

	all := reg.GetAllServices()["svc"]
	require.Len(t, all, 1)
	require.Equal(t, "a", all[0].InstanceID)
}

func TestHealthChecker_StartStopIsDeterministic(t *testing.T) {
	probe := &failingProbe{failing: map[string]bool{}}
	reg, checker := setupChecker(t, probe.probe)
	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: "localhost:9001"})

	checker.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	checker.Stop()

	// Stop has returned, so the loop is gone. A second Stop is harmless.
	checker.Stop()
}

func TestHTTPProbe(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	sick := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sick.Close()

	probe := HTTPProbe(healthy.Client())

	require.NoError(t, probe(context.Background(), healthy.URL))
	require.Error(t, probe(context.Background(), sick.URL))
	require.Error(t, probe(context.Background(), "localhost:1"))
}
