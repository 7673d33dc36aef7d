// Package common provides shared configuration loading for the gateway
// binaries.
package common

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruvnet/alienator-sub000/gateway"
)

// Duration wraps time.Duration so YAML configs can use "30s" notation.
type Duration time.Duration

// UnmarshalYAML parses either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// BrokerConfig selects and configures the message transport.
type BrokerConfig struct {
	// Kind is "memory", "nats" or "redis".
	Kind string `yaml:"kind"`
	// URL of the NATS server or Redis address, depending on Kind.
	URL string `yaml:"url,omitempty"`
}

// HealthConfig tunes the registry health loop.
type HealthConfig struct {
	Interval     Duration `yaml:"interval"`
	ProbeTimeout Duration `yaml:"probe_timeout"`
	StaleAfter   Duration `yaml:"stale_after"`
}

// ProxyConfig tunes request forwarding.
type ProxyConfig struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	DefaultTimeout Duration `yaml:"default_timeout"`
}

// RateLimitConfig tunes the API surface rate limiter. Zero RPS disables
// limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RouteConfig is one static routing rule in the config file.
type RouteConfig struct {
	PathPrefix  string   `yaml:"path_prefix"`
	ServiceName string   `yaml:"service_name"`
	Methods     []string `yaml:"methods,omitempty"`
	StripPrefix bool     `yaml:"strip_prefix,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
}

// Config is the gateway binary's full configuration.
type Config struct {
	HTTPAddr  string          `yaml:"http_addr"`
	Broker    BrokerConfig    `yaml:"broker"`
	Health    HealthConfig    `yaml:"health"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Routes    []RouteConfig   `yaml:"routes,omitempty"`
}

// DefaultConfig returns production defaults with an in-process broker.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr: ":8080",
		Broker:   BrokerConfig{Kind: "memory"},
		Health: HealthConfig{
			Interval:     Duration(30 * time.Second),
			ProbeTimeout: Duration(5 * time.Second),
			StaleAfter:   Duration(5 * time.Minute),
		},
		Proxy: ProxyConfig{
			MaxAttempts:    3,
			DefaultTimeout: Duration(30 * time.Second),
		},
		RateLimit: RateLimitConfig{RPS: 100, Burst: 200},
	}
}

// LoadConfig reads a YAML config file, applying defaults for anything
// unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the binary cannot run with.
func (c *Config) Validate() error {
	switch c.Broker.Kind {
	case "memory":
	case "nats", "redis":
		if c.Broker.URL == "" {
			return fmt.Errorf("broker kind %q requires a url", c.Broker.Kind)
		}
	default:
		return fmt.Errorf("unknown broker kind %q", c.Broker.Kind)
	}

	for i, route := range c.Routes {
		if route.PathPrefix == "" || route.ServiceName == "" {
			return fmt.Errorf("route %d: path_prefix and service_name are required", i)
		}
	}
	return nil
}

// GatewayRoutes converts the configured routes into gateway rules,
// preserving file order as match priority.
func (c *Config) GatewayRoutes() []gateway.Route {
	out := make([]gateway.Route, 0, len(c.Routes))
	for _, route := range c.Routes {
		out = append(out, gateway.Route{
			PathPrefix:  route.PathPrefix,
			ServiceName: route.ServiceName,
			Methods:     route.Methods,
			StripPrefix: route.StripPrefix,
			Timeout:     route.Timeout.Std(),
		})
	}
	return out
}
