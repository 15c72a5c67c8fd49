package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceTopology describes one downstream application service in a
// topology file, keyed by route prefix. The binaries do not load topology
// files; the auth proxy forwards to the single --appserver target.
type ServiceTopology struct {
	Name     string        `yaml:"name"`
	Endpoint string        `yaml:"endpoint"`
	Prefix   string        `yaml:"prefix"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RateLimitTopology describes one named rate-limit bucket in a topology
// file. Nothing converts it into an authproxy/middleware.RateLimit.
type RateLimitTopology struct {
	Route         string   `yaml:"route"`
	RatePerSecond float64  `yaml:"ratePerSecond"`
	Burst         int      `yaml:"burst"`
	Paths         []string `yaml:"paths"`
}

// ObservabilityTopology mirrors authproxy/middleware.ObservabilityConfig in
// YAML form.
type ObservabilityTopology struct {
	ServiceName   string `yaml:"serviceName"`
	Metrics       bool   `yaml:"metrics"`
	Tracing       bool   `yaml:"tracing"`
	LogRequests   bool   `yaml:"logRequests"`
	MetricsPrefix string `yaml:"metricsPrefix"`
}

// Topology is the parsed form of a multi-service configuration file. The
// --topology flag records a path, but neither binary calls LoadTopology.
type Topology struct {
	ListenAddress string                `yaml:"listen"`
	ReadTimeout   time.Duration         `yaml:"readTimeout"`
	WriteTimeout  time.Duration         `yaml:"writeTimeout"`
	IdleTimeout   time.Duration         `yaml:"idleTimeout"`
	Services      []ServiceTopology     `yaml:"services"`
	RateLimits    []RateLimitTopology   `yaml:"rateLimits"`
	Observability ObservabilityTopology `yaml:"observability"`
}

// LoadTopology reads and validates a topology file. An empty path returns
// sensible single-service defaults without touching the filesystem.
func LoadTopology(path string) (Topology, error) {
	top := Topology{
		ListenAddress: ":8080",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Observability: ObservabilityTopology{
			ServiceName:   "yar",
			Metrics:       true,
			Tracing:       true,
			LogRequests:   true,
			MetricsPrefix: "yar",
		},
	}
	if path == "" {
		return top, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return Topology{}, fmt.Errorf("open topology: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&top); err != nil {
		return Topology{}, fmt.Errorf("decode topology: %w", err)
	}
	if err := top.validate(); err != nil {
		return Topology{}, err
	}
	return top, nil
}

func (t Topology) validate() error {
	seen := make(map[string]struct{}, len(t.Services))
	for _, svc := range t.Services {
		if svc.Name == "" {
			return fmt.Errorf("topology service missing name")
		}
		if _, dup := seen[svc.Name]; dup {
			return fmt.Errorf("topology service %s declared twice", svc.Name)
		}
		seen[svc.Name] = struct{}{}
		if _, err := svc.URL(); err != nil {
			return err
		}
	}
	return nil
}

// URL parses the service's endpoint.
func (s ServiceTopology) URL() (*url.URL, error) {
	if s.Endpoint == "" {
		return nil, fmt.Errorf("endpoint missing for service %s", s.Name)
	}
	parsed, err := url.Parse(s.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse service %s endpoint: %w", s.Name, err)
	}
	return parsed, nil
}

// ByPrefix returns the first service whose route prefix matches path;
// services without a prefix are skipped.
func (t Topology) ByPrefix(path string) (*ServiceTopology, error) {
	for i := range t.Services {
		svc := &t.Services[i]
		if svc.Prefix == "" {
			continue
		}
		if hasPrefix(path, svc.Prefix) {
			return svc, nil
		}
	}
	return nil, fmt.Errorf("no topology service matches path %s", path)
}

func hasPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}
