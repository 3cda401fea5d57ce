// Package registry provides the etcd-based implementation of the Registry
// interface.
//
// etcd is a distributed key-value store with strong consistency (Raft).
// We use it as a "distributed phonebook" for function definitions:
//
//	Key:   /stream-rpc/{Definition}/{Addr}
//	Value: JSON-encoded Instance
//
// Announcements use TTL-based leases: if a node crashes, the lease expires
// and the entry is automatically removed — preventing "ghost" instances.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Announce adds a node instance for a function definition with a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL (e.g., 10 seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to automatically renew the lease
//
// Note: leaseID is a local variable, NOT stored on the struct.
// This prevents a data race when multiple servers share one EtcdRegistry
// instance.
func (r *EtcdRegistry) Announce(definition string, instance Instance, ttl int64) error {
	ctx := context.TODO()

	// TTL-based lease — if KeepAlive stops, the entry auto-expires
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	// Store in etcd: key = /stream-rpc/{definition}/{addr}, value = JSON metadata
	_, err = r.client.Put(ctx, "/stream-rpc/"+definition+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// Background lease renewal — KeepAlive sends heartbeats to etcd
	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes a node instance for a function definition.
// Called during graceful shutdown before closing the listener.
func (r *EtcdRegistry) Deregister(definition string, addr string) error {
	ctx := context.TODO()
	_, err := r.client.Delete(ctx, "/stream-rpc/"+definition+"/"+addr)
	if err != nil {
		return err
	}
	return nil
}

// Watch monitors a definition prefix in etcd and emits updated instance
// lists whenever changes occur (new announcements, deregistrations, lease
// expirations).
//
// Uses etcd's Watch API (server-push), which is more efficient than polling.
func (r *EtcdRegistry) Watch(definition string) <-chan []Instance {
	ctx := context.TODO()
	ch := make(chan []Instance, 1)
	prefix := "/stream-rpc/" + definition + "/"

	go func() {
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// On any change, re-fetch the full instance list
			// (simpler than parsing individual watch events)
			instances, _ := r.Discover(definition)
			ch <- instances
		}
	}()

	return ch
}

// Discover returns every node currently announced for a definition.
// Queries etcd with a key prefix to find all instances under
// /stream-rpc/{definition}/.
func (r *EtcdRegistry) Discover(definition string) ([]Instance, error) {
	ctx := context.TODO()
	prefix := "/stream-rpc/" + definition + "/"

	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0)
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // Skip malformed entries
		}
		instances = append(instances, instance)
	}

	return instances, nil
}
