package server

import (
	"stream-rpc/config"
	"stream-rpc/middleware"
	"stream-rpc/registry"
)

// NewServerFromConfig builds a server with the middlewares the config asks
// for: a shared rate limiter when enabled, a per-invocation timeout when
// one is set. Functions are registered by the caller before Serve.
func NewServerFromConfig(cfg config.ServerConfig) *Server {
	svr := NewServer()
	if cfg.RateLimit.Enabled {
		svr.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	if cfg.InvocationTimeout > 0 {
		svr.Use(middleware.TimeoutMiddleware(cfg.InvocationTimeout))
	}
	return svr
}

// ServeFromConfig starts the server on the configured addresses, connecting
// to etcd when endpoints are configured.
func (svr *Server) ServeFromConfig(cfg config.ServerConfig) error {
	var reg registry.Registry
	if len(cfg.EtcdEndpoints) > 0 {
		etcdReg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints)
		if err != nil {
			return err
		}
		reg = etcdReg
	}
	return svr.Serve("tcp", cfg.ListenAddr, cfg.AdvertiseAddr, reg)
}
