package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ListenAddr != ":7878" {
		t.Fatalf("expect :7878, got %s", cfg.ListenAddr)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expect 10s shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
	if cfg.RateLimit.Enabled {
		t.Fatal("rate limiting must be off by default")
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream-rpc.yaml")
	raw := `
server:
  listenAddr: ":9090"
  etcdEndpoints:
    - "127.0.0.1:2379"
  invocationTimeout: 5s
  rateLimit:
    enabled: true
    rps: 50
    burst: 80
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadFromPath(path)

	if cfg.ListenAddr != ":9090" {
		t.Fatalf("expect :9090, got %s", cfg.ListenAddr)
	}
	if len(cfg.EtcdEndpoints) != 1 || cfg.EtcdEndpoints[0] != "127.0.0.1:2379" {
		t.Fatalf("endpoints mismatch: %v", cfg.EtcdEndpoints)
	}
	if cfg.InvocationTimeout != 5*time.Second {
		t.Fatalf("expect 5s invocation timeout, got %v", cfg.InvocationTimeout)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RPS != 50 || cfg.RateLimit.Burst != 80 {
		t.Fatalf("rate limit mismatch: %+v", cfg.RateLimit)
	}
	// Unset fields keep their defaults.
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expect default shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	cfg := LoadFromPath(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	if cfg.ListenAddr != ":7878" {
		t.Fatalf("missing file must fall back to defaults, got %s", cfg.ListenAddr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STREAMRPC_LISTEN_ADDR", ":9999")
	t.Setenv("STREAMRPC_ETCD_ENDPOINTS", "10.0.0.1:2379, 10.0.0.2:2379")
	t.Setenv("STREAMRPC_RATE_LIMIT_ENABLED", "true")
	t.Setenv("STREAMRPC_RATE_LIMIT_RPS", "25")

	cfg := LoadFromPath(filepath.Join(t.TempDir(), "none.yaml"))

	if cfg.ListenAddr != ":9999" {
		t.Fatalf("expect :9999, got %s", cfg.ListenAddr)
	}
	if len(cfg.EtcdEndpoints) != 2 || cfg.EtcdEndpoints[1] != "10.0.0.2:2379" {
		t.Fatalf("endpoints mismatch: %v", cfg.EtcdEndpoints)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RPS != 25 {
		t.Fatalf("rate limit mismatch: %+v", cfg.RateLimit)
	}
}
