// Package cmd provides the gateway binaries.
//
// # Commands
//
// gateway: Runs the API gateway: service registry, health checking, load
// balanced request forwarding and the channel broadcast API.
//
//	go run ./cmd/gateway --config=gateway.yaml
//	go run ./cmd/gateway --addr=:8080 --broker=memory
//
// gatewayctl: CLI for interacting with a running gateway: register service
// instances, inspect health, manage channels and publish broadcasts.
//
//	go run ./cmd/gatewayctl status --gateway=http://localhost:8080
//	go run ./cmd/gatewayctl register -s users -a 10.0.0.5:9000
//	go run ./cmd/gatewayctl broadcast -c news -m "Hello"
//
// # Configuration
//
// The gateway command supports a YAML configuration file via the --config
// flag. Command-line flags override config file values:
//
//	http_addr: ":8080"
//	broker:
//	  kind: nats
//	  url: nats://localhost:4222
//	health:
//	  interval: 30s
//	  probe_timeout: 5s
//	  stale_after: 5m
//	proxy:
//	  max_attempts: 3
//	  default_timeout: 30s
//	routes:
//	  - path_prefix: /api/users
//	    service_name: users
//	    strip_prefix: true
package cmd
