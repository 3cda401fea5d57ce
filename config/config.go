// Package config loads server settings from a YAML file with environment
// overrides. A missing or malformed file falls back to defaults — a node
// must be able to start with zero configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment override variables. Each one, when set, wins over both the
// file value and the default.
const (
	listenAddrEnv       = "STREAMRPC_LISTEN_ADDR"
	advertiseAddrEnv    = "STREAMRPC_ADVERTISE_ADDR"
	etcdEndpointsEnv    = "STREAMRPC_ETCD_ENDPOINTS" // comma-separated
	rateLimitEnabledEnv = "STREAMRPC_RATE_LIMIT_ENABLED"
	rateLimitRPSEnv     = "STREAMRPC_RATE_LIMIT_RPS"
	rateLimitBurstEnv   = "STREAMRPC_RATE_LIMIT_BURST"
)

// ServerConfig holds the settings of one serving node.
type ServerConfig struct {
	ListenAddr        string        `yaml:"listenAddr"`
	AdvertiseAddr     string        `yaml:"advertiseAddr"`
	EtcdEndpoints     []string      `yaml:"etcdEndpoints"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	InvocationTimeout time.Duration `yaml:"invocationTimeout"` // 0 = unbounded
	RateLimit         RateLimit     `yaml:"rateLimit"`
}

// RateLimit configures the token-bucket limiter applied around every
// imperative invocation.
type RateLimit struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type fileConfig struct {
	Server ServerConfig `yaml:"server"`
}

// Default returns the zero-configuration settings.
func Default() ServerConfig {
	return ServerConfig{
		ListenAddr:      ":7878",
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimit{
			Enabled: false,
			RPS:     100,
			Burst:   200,
		},
	}
}

// LoadFromPath reads the config at configPath, or, when it is empty, the
// first readable default candidate. Unreadable or malformed candidates are
// skipped; environment overrides are applied last either way.
func LoadFromPath(configPath string) ServerConfig {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"configs/stream-rpc.yaml",
			"stream-rpc.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}

		merge(&cfg, parsed.Server)
		applyEnvOverrides(&cfg)
		return cfg
	}

	applyEnvOverrides(&cfg)
	return cfg
}

func merge(dst *ServerConfig, src ServerConfig) {
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	if src.AdvertiseAddr != "" {
		dst.AdvertiseAddr = src.AdvertiseAddr
	}
	if len(src.EtcdEndpoints) > 0 {
		dst.EtcdEndpoints = src.EtcdEndpoints
	}
	if src.ShutdownTimeout > 0 {
		dst.ShutdownTimeout = src.ShutdownTimeout
	}
	if src.InvocationTimeout > 0 {
		dst.InvocationTimeout = src.InvocationTimeout
	}
	if src.RateLimit.Enabled {
		dst.RateLimit.Enabled = true
	}
	if src.RateLimit.RPS > 0 {
		dst.RateLimit.RPS = src.RateLimit.RPS
	}
	if src.RateLimit.Burst > 0 {
		dst.RateLimit.Burst = src.RateLimit.Burst
	}
}

func applyEnvOverrides(cfg *ServerConfig) {
	if v := os.Getenv(listenAddrEnv); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(advertiseAddrEnv); v != "" {
		cfg.AdvertiseAddr = v
	}
	if v := os.Getenv(etcdEndpointsEnv); v != "" {
		endpoints := make([]string, 0, 2)
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				endpoints = append(endpoints, e)
			}
		}
		if len(endpoints) > 0 {
			cfg.EtcdEndpoints = endpoints
		}
	}
	if v, ok := parseBoolEnv(rateLimitEnabledEnv); ok {
		cfg.RateLimit.Enabled = v
	}
	if v := os.Getenv(rateLimitRPSEnv); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateLimit.RPS = f
		}
	}
	if v := os.Getenv(rateLimitBurstEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.Burst = n
		}
	}
}

func parseBoolEnv(name string) (bool, bool) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
