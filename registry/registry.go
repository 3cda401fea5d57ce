// Package registry resolves function names, both in-process and across the
// network.
//
// Two collaborators live here:
//
//   - Catalog is the local function table: it owns the registered
//     function.Handle values and resolves a route to a handle.
//   - Registry is the discovery interface for distributed deployments: a
//     node announces which function definitions it serves, clients discover
//     node addresses per definition. The etcd implementation is in
//     etcd_registry.go.
package registry

import (
	"fmt"
	"sync"

	"stream-rpc/function"
)

// Instance describes one node serving a function definition.
type Instance struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
}

// Registry is the interface for distributed function discovery.
type Registry interface {
	// Announce registers a node address as serving the named function
	// definition, with a TTL in seconds.
	Announce(definition string, instance Instance, ttl int64) error
	// Deregister removes a node address for the named definition.
	Deregister(definition string, addr string) error
	// Discover returns every node currently serving the named definition.
	Discover(definition string) ([]Instance, error)
	// Watch emits updated instance lists whenever nodes come or go.
	Watch(definition string) <-chan []Instance
}

// Catalog is the in-process function table.
// Registration happens at startup; Resolve is called on every opening
// request frame, so lookups are guarded by an RWMutex.
type Catalog struct {
	mu      sync.RWMutex
	handles map[string]*function.Handle
}

// NewCatalog creates an empty function catalog.
func NewCatalog() *Catalog {
	return &Catalog{handles: make(map[string]*function.Handle)}
}

// Register adds a function handle under its own name.
// Registering the same name twice is an error — the classification is
// cached per handle and silently swapping handles mid-flight would let two
// exchanges of one route disagree about it.
func (c *Catalog) Register(h *function.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handles[h.Name()]; ok {
		return fmt.Errorf("registry: function %q already registered", h.Name())
	}
	c.handles[h.Name()] = h
	return nil
}

// Resolve returns the handle registered under name.
func (c *Catalog) Resolve(name string) (*function.Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handles[name]
	if !ok {
		return nil, fmt.Errorf("registry: unknown function %q", name)
	}
	return h, nil
}

// Names returns the registered function names, in no particular order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handles))
	for name := range c.handles {
		names = append(names, name)
	}
	return names
}
