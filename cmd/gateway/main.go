// Command gateway runs the API gateway with service discovery and
// channel broadcasting.
//
// # Configuration File
//
// Create a YAML file with gateway settings:
//
//	http_addr: ":8080"
//	broker:
//	  kind: memory
//	health:
//	  interval: 30s
//	  probe_timeout: 5s
//	  stale_after: 5m
//	proxy:
//	  max_attempts: 3
//	  default_timeout: 30s
//	rate_limit:
//	  rps: 100
//	  burst: 200
//	routes:
//	  - path_prefix: /api/users
//	    service_name: users
//	    strip_prefix: true
//
// # Endpoints
//
// Gateway API:
//   - GET /gateway/health - Gateway and per-service health counts
//   - GET /gateway/routes - Configured routing rules
//   - POST /gateway/registry/services - Register a service instance
//   - GET /gateway/registry/services - List registered services
//   - DELETE /gateway/registry/services/{service}/{id} - Deregister
//
// Broadcast API (under /broadcast):
//   - POST /broadcast/channels, GET /broadcast/channels
//   - GET|DELETE /broadcast/channels/{id}
//   - POST /broadcast/channels/{id}/subscriptions
//   - POST /broadcast/channels/{id}/broadcast
//   - DELETE /broadcast/subscriptions/{id}
//   - GET /broadcast/metrics
//
// Everything else is proxied to registered services by route prefix.
//
// # Usage
//
//	go run ./cmd/gateway --config=gateway.yaml
//	go run ./cmd/gateway --addr=:8080 --broker=nats --broker-url=nats://localhost:4222
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ruvnet/alienator-sub000/broadcast"
	"github.com/ruvnet/alienator-sub000/cmd/common"
	"github.com/ruvnet/alienator-sub000/eventbus"
	"github.com/ruvnet/alienator-sub000/gateway"
	"github.com/ruvnet/alienator-sub000/loadbalance"
	"github.com/ruvnet/alienator-sub000/registry"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		addr       = flag.String("addr", "", "HTTP listen address")
		brokerKind = flag.String("broker", "", "Broker kind: memory, nats or redis")
		brokerURL  = flag.String("broker-url", "", "Broker server address")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	applyFlagOverrides(cfg, *addr, *brokerKind, *brokerURL)

	if err := run(cfg, *verbose); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	return common.DefaultConfig(), nil
}

func applyFlagOverrides(cfg *common.Config, addr, brokerKind, brokerURL string) {
	if addr != "" {
		cfg.HTTPAddr = addr
	}
	if brokerKind != "" {
		cfg.Broker.Kind = brokerKind
	}
	if brokerURL != "" {
		cfg.Broker.URL = brokerURL
	}
}

func run(cfg *common.Config, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgBroker, err := common.NewBroker(ctx, cfg.Broker)
	if err != nil {
		return err
	}
	defer msgBroker.Close()

	reg := registry.NewRegistry(logger)

	checker := registry.NewHealthChecker(reg, registry.HealthCheckerConfig{
		Interval:     cfg.Health.Interval.Std(),
		ProbeTimeout: cfg.Health.ProbeTimeout.Std(),
		StaleAfter:   cfg.Health.StaleAfter.Std(),
	}, nil, logger)
	checker.Start(ctx)
	defer checker.Stop()

	gw := gateway.New(gateway.Config{
		MaxAttempts:    cfg.Proxy.MaxAttempts,
		DefaultTimeout: cfg.Proxy.DefaultTimeout.Std(),
	}, reg, loadbalance.NewRoundRobin(), logger)
	for _, route := range cfg.GatewayRoutes() {
		gw.AddRoute(route)
	}

	manager := broadcast.NewManager(broadcast.DefaultManagerConfig(),
		msgBroker, eventbus.NewLocal(), nil, logger)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.RateLimit.RPS > 0 {
		r.Use(gateway.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}

	r.Route("/broadcast", manager.RegisterRoutes)
	gw.RegisterRoutes(r)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("gateway listening", "addr", cfg.HTTPAddr, "broker", cfg.Broker.Kind)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down gateway")
	return server.Shutdown(shutdownCtx)
}
