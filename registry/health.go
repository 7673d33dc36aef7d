package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ProbeFunc checks liveness of one instance address. Implementations must
// respect the passed context's deadline.
type ProbeFunc func(ctx context.Context, address string) error

// HealthCheckerConfig tunes the background health loop.
type HealthCheckerConfig struct {
	// Interval between probe passes.
	Interval time.Duration
	// ProbeTimeout bounds each individual health probe.
	ProbeTimeout time.Duration
	// StaleAfter is how long an instance may go without a successful probe
	// or re-registration before the cleanup pass removes it outright.
	StaleAfter time.Duration
}

// DefaultHealthCheckerConfig returns production defaults.
func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{
		Interval:     30 * time.Second,
		ProbeTimeout: 5 * time.Second,
		StaleAfter:   5 * time.Minute,
	}
}

// HealthChecker runs the periodic probe and stale-cleanup loop against a
// Registry. The loop is cancellable: Start launches it, Stop (or context
// cancellation) ends it deterministically.
type HealthChecker struct {
	config   HealthCheckerConfig
	registry *Registry
	probe    ProbeFunc
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthChecker creates a checker for the given registry. A nil probe
// uses the HTTP GET /health convention.
func NewHealthChecker(registry *Registry, config HealthCheckerConfig, probe ProbeFunc, logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	if probe == nil {
		probe = HTTPProbe(&http.Client{})
	}
	return &HealthChecker{
		config:   config,
		registry: registry,
		probe:    probe,
		logger:   logger,
	}
}

// Start launches the background loop. The loop stops when ctx is canceled
// or Stop is called.
func (h *HealthChecker) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(h.config.Interval)
		defer ticker.Stop()

		h.logger.Info("health checker started", "interval", h.config.Interval)
		for {
			select {
			case <-ctx.Done():
				h.logger.Info("health checker stopped")
				return
			case <-ticker.C:
				h.runPass(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (h *HealthChecker) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

// runPass probes every known instance, then removes stale ones. Probes
// happen against a snapshot so no lock is held during network I/O.
func (h *HealthChecker) runPass(ctx context.Context) {
	for _, inst := range h.registry.snapshot() {
		probeCtx, cancel := context.WithTimeout(ctx, h.config.ProbeTimeout)
		err := h.probe(probeCtx, inst.Address)
		cancel()

		if err != nil {
			h.logger.Debug("health probe failed",
				"service", inst.ServiceName, "instance", inst.InstanceID, "err", err)
			h.registry.setHealth(inst.ServiceName, inst.InstanceID, Unhealthy)
		} else {
			h.registry.setHealth(inst.ServiceName, inst.InstanceID, Healthy)
		}
	}

	h.registry.removeStale(time.Now().Add(-h.config.StaleAfter))
}

// HTTPProbe returns the standard probe: GET http://<address>/health must
// answer 2xx within the context deadline.
func HTTPProbe(client *http.Client) ProbeFunc {
	return func(ctx context.Context, address string) error {
		url := address
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "http://" + url
		}
		url = strings.TrimRight(url, "/") + "/health"

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("health probe request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("health probe returned status %d", resp.StatusCode)
		}
		return nil
	}
}
