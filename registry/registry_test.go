package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func setupTestRegistry(t *testing.T) (*Registry, chi.Router) {
	t.Helper()

	reg := NewRegistry(nil)
	r := chi.NewRouter()
	reg.RegisterRoutes(r)
	return reg, r
}

func TestRegistry_RegisterAndQuery(t *testing.T) {
	reg, _ := setupTestRegistry(t)

	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: "localhost:9001"})
	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "b", Address: "localhost:9002"})

	all := reg.GetAllServices()
	require.Len(t, all["svc"], 2)

	healthy := reg.GetHealthyInstances("svc")
	require.Len(t, healthy, 2)
	for _, inst := range healthy {
		require.Equal(t, Healthy, inst.Health)
	}
}

func TestRegistry_ReRegisterRefreshesInstance(t *testing.T) {
	reg, _ := setupTestRegistry(t)

	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: "localhost:9001"})
	reg.setHealth("svc", "a", Unhealthy)
	require.Empty(t, reg.GetHealthyInstances("svc"))

	// Same identity re-registers with a new address: overwrite, not append.
	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: "localhost:9009"})

	all := reg.GetAllServices()
	require.Len(t, all["svc"], 1)
	require.Equal(t, "localhost:9009", all["svc"][0].Address)
	require.Equal(t, Healthy, all["svc"][0].Health)
}

func TestRegistry_DeregisterUnknownIsNoop(t *testing.T) {
	reg, _ := setupTestRegistry(t)

	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: "localhost:9001"})
	reg.Deregister("svc", "missing")
	reg.Deregister("other", "a")
	require.Len(t, reg.GetAllServices()["svc"], 1)

	reg.Deregister("svc", "a")
	require.Empty(t, reg.GetAllServices())
}

func TestRegistry_HealthyIsSubsetOfAll(t *testing.T) {
	reg, _ := setupTestRegistry(t)

	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: "localhost:9001"})
	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "b", Address: "localhost:9002"})
	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "c", Address: "localhost:9003"})
	reg.setHealth("svc", "b", Unhealthy)

	all := reg.GetAllServices()["svc"]
	healthy := reg.GetHealthyInstances("svc")
	require.Len(t, healthy, 2)

	ids := make(map[string]bool)
	for _, inst := range all {
		ids[inst.InstanceID] = true
	}
	for _, inst := range healthy {
		require.True(t, ids[inst.InstanceID])
		require.Equal(t, Healthy, inst.Health)
	}
}

func TestRegistry_QueriesReturnCopies(t *testing.T) {
	reg, _ := setupTestRegistry(t)

	reg.Register(ServiceInstance{
		ServiceName: "svc", InstanceID: "a", Address: "localhost:9001",
		Tags: map[string]string{"zone": "eu"},
	})

	healthy := reg.GetHealthyInstances("svc")
	healthy[0].Address = "mutated"
	healthy[0].Tags["zone"] = "mars"

	again := reg.GetHealthyInstances("svc")
	require.Equal(t, "localhost:9001", again[0].Address)
	require.Equal(t, "eu", again[0].Tags["zone"])
}

func TestRegistry_RemoveStale(t *testing.T) {
	reg, _ := setupTestRegistry(t)

	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "fresh", Address: "localhost:9001"})
	reg.Register(ServiceInstance{ServiceName: "svc", InstanceID: "old", Address: "localhost:9002"})

	// Age one instance past the cutoff while leaving it marked healthy.
	reg.mu.Lock()
	for _, inst := range reg.services["svc"] {
		if inst.InstanceID == "old" {
			inst.LastSeen = time.Now().Add(-10 * time.Minute)
		}
	}
	reg.mu.Unlock()

	removed := reg.removeStale(time.Now().Add(-5 * time.Minute))
	require.Equal(t, 1, removed)

	all := reg.GetAllServices()["svc"]
	require.Len(t, all, 1)
	require.Equal(t, "fresh", all[0].InstanceID)
}

func TestRegistry_HTTPRegisterListDeregister(t *testing.T) {
	_, router := setupTestRegistry(t)

	body := `{"service_name":"svc","instance_id":"a","address":"localhost:9001","tags":{"zone":"eu"}}`
	req := httptest.NewRequest("POST", "/registry/services", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var regResp RegisterResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&regResp))
	require.True(t, regResp.Success)
	require.Equal(t, "a", regResp.InstanceID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/registry/services", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var list ServiceListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list.Services["svc"], 1)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/registry/services/svc/a", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/registry/services", nil))
	// Decode into a fresh value: decoding {"services":{}} into the reused
	// struct would leave the previous map entries in place.
	var after ServiceListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&after))
	require.Empty(t, after.Services)
}

func TestRegistry_HTTPRegisterRejectsMissingFields(t *testing.T) {
	_, router := setupTestRegistry(t)

	req := httptest.NewRequest("POST", "/registry/services", strings.NewReader(`{"service_name":"svc"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistry_HTTPRegisterGeneratesInstanceID(t *testing.T) {
	_, router := setupTestRegistry(t)

	body := `{"service_name":"svc","address":"localhost:9001"}`
	req := httptest.NewRequest("POST", "/registry/services", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp RegisterResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.InstanceID)
}
