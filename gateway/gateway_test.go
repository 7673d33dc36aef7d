package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ruvnet/alienator-sub000/loadbalance"
	"github.com/ruvnet/alienator-sub000/registry"
)

// echoBackend answers with its own name so tests can see which instance
// served a request.
func echoBackend(t *testing.T, name string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Backend", name)
		w.Header().Set("X-Seen-Path", r.URL.Path)
		w.Header().Set("X-Seen-Header", r.Header.Get("X-Custom"))
		w.Write([]byte(name + ":" + string(body)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupGateway(t *testing.T, routes ...Route) (*Gateway, *registry.Registry, chi.Router) {
	t.Helper()

	reg := registry.NewRegistry(nil)
	gw := New(DefaultConfig(), reg, loadbalance.NewRoundRobin(), nil)
	for _, route := range routes {
		gw.AddRoute(route)
	}

	r := chi.NewRouter()
	gw.RegisterRoutes(r)
	return gw, reg, r
}

func TestGateway_ForwardsToBackend(t *testing.T) {
	backend := echoBackend(t, "a")
	_, reg, router := setupGateway(t, Route{PathPrefix: "/svc/", ServiceName: "svc"})
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: backend.URL})

	req := httptest.NewRequest("POST", "/svc/items?q=1", strings.NewReader("payload"))
	req.Header.Set("X-Custom", "custom-value")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "a:payload", w.Body.String())
	require.Equal(t, "/svc/items", w.Header().Get("X-Seen-Path"))
	require.Equal(t, "custom-value", w.Header().Get("X-Seen-Header"))
}

func TestGateway_StripPrefix(t *testing.T) {
	backend := echoBackend(t, "a")
	_, reg, router := setupGateway(t, Route{PathPrefix: "/svc", ServiceName: "svc", StripPrefix: true})
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: backend.URL})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/svc/items", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "/items", w.Header().Get("X-Seen-Path"))
}

func TestGateway_DistributesRoundRobin(t *testing.T) {
	backendA := echoBackend(t, "a")
	backendB := echoBackend(t, "b")
	_, reg, router := setupGateway(t, Route{PathPrefix: "/svc/", ServiceName: "svc"})
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: backendA.URL})
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "b", Address: backendB.URL})

	counts := make(map[string]int)
	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/svc/x", nil))
		require.Equal(t, http.StatusOK, w.Code)
		counts[w.Header().Get("X-Backend")]++
	}

	require.Equal(t, 2, counts["a"])
	require.Equal(t, 2, counts["b"])
}

func TestGateway_UnknownPathIs404(t *testing.T) {
	_, _, router := setupGateway(t, Route{PathPrefix: "/svc/", ServiceName: "svc"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGateway_MethodMismatchIs404(t *testing.T) {
	_, _, router := setupGateway(t, Route{PathPrefix: "/svc/", ServiceName: "svc", Methods: []string{"GET"}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/svc/x", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGateway_NoHealthyInstancesIs503(t *testing.T) {
	_, reg, router := setupGateway(t, Route{PathPrefix: "/svc/", ServiceName: "svc"})

	// No instances at all.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/svc/x", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Instances exist but none are healthy: same verdict.
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: "localhost:1"})
	reg.Deregister("svc", "a")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/svc/x", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGateway_RetriesNextInstanceOnConnectionFailure(t *testing.T) {
	backend := echoBackend(t, "b")
	gw, reg, router := setupGateway(t, Route{PathPrefix: "/svc/", ServiceName: "svc", Timeout: 2 * time.Second})

	// First candidate in rotation points at a dead port.
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "dead", Address: "127.0.0.1:1"})
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "b", Address: backend.URL})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/svc/x", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "b", w.Header().Get("X-Backend"))
	require.GreaterOrEqual(t, gw.retriesTotal.Load(), int64(1))
}

func TestGateway_AllAttemptsExhaustedIs503(t *testing.T) {
	_, reg, router := setupGateway(t, Route{PathPrefix: "/svc/", ServiceName: "svc", Timeout: time.Second})
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "dead1", Address: "127.0.0.1:1"})
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "dead2", Address: "127.0.0.1:1"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/svc/x", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGateway_UpstreamErrorStatusPassesThroughWithoutRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	gw, reg, router := setupGateway(t, Route{PathPrefix: "/svc/", ServiceName: "svc"})
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: srv.URL})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/svc/x", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Zero(t, gw.retriesTotal.Load())
}

func TestGateway_HealthEndpoint(t *testing.T) {
	_, reg, router := setupGateway(t, Route{PathPrefix: "/svc/", ServiceName: "svc"})
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "a", Address: "localhost:9001"})
	reg.Register(registry.ServiceInstance{ServiceName: "svc", InstanceID: "b", Address: "localhost:9002"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/gateway/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, 2, resp.Services["svc"].Healthy)
	require.Zero(t, resp.Services["svc"].Unhealthy)
}

func TestGateway_RegistryEndpointsMounted(t *testing.T) {
	_, _, router := setupGateway(t)

	body := `{"service_name":"svc","instance_id":"a","address":"localhost:9001"}`
	req := httptest.NewRequest("POST", "/gateway/registry/services", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/gateway/registry/services", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var list registry.ServiceListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list.Services["svc"], 1)
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Burst of 2 passes, the third is limited.
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}
