// Package client is the caller-side API: it resolves a function definition
// to a node through the registry, picks an instance with the load balancer,
// borrows a multiplexed transport from the pool, and runs one of the three
// interaction verbs over it, translating between domain messages and wire
// payloads with the payload codec.
package client

import (
	"context"
	"fmt"

	"stream-rpc/codec"
	"stream-rpc/loadbalance"
	"stream-rpc/message"
	"stream-rpc/registry"
	"stream-rpc/transport"
)

// Reply is one element of a reply stream: a decoded message or the error
// that ended the exchange.
type Reply struct {
	Msg *message.Message
	Err error
}

// Client calls functions served by stream-rpc nodes.
type Client struct {
	registry registry.Registry    // find serving nodes per function definition
	balancer loadbalance.Balancer // pick one node per exchange
	pool     *transport.Pool
	codec    *codec.PayloadCodec
}

// NewClient builds a client over the given registry and balancer, keeping
// poolSize multiplexed transports per node address.
func NewClient(reg registry.Registry, bal loadbalance.Balancer, poolSize int) *Client {
	return &Client{
		registry: reg,
		balancer: bal,
		pool:     transport.NewPool(poolSize, nil),
		codec:    codec.NewPayloadCodec(nil),
	}
}

// pick resolves a definition to a node address and borrows a transport.
func (c *Client) pick(definition string) (string, *transport.Transport, error) {
	instances, err := c.registry.Discover(definition)
	if err != nil {
		return "", nil, err
	}

	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return "", nil, err
	}

	t, err := c.pool.Get(instance.Addr)
	if err != nil {
		return "", nil, err
	}
	return instance.Addr, t, nil
}

// Call runs a request-response exchange: one message in, one message out.
// Request headers travel as metadata, and the reply's headers (attached
// only on this verb) are decoded back.
func (c *Client) Call(definition string, in *message.Message) (*message.Message, error) {
	addr, t, err := c.pick(definition)
	if err != nil {
		return nil, err
	}
	defer c.pool.Put(addr, t)

	p, err := c.codec.Encode(in, true)
	if err != nil {
		return nil, err
	}

	events, err := t.RequestResponse(definition, p)
	if err != nil {
		return nil, err
	}

	ev, ok := <-events
	if !ok {
		return nil, nil // empty completion — the function produced nothing
	}
	if ev.Err != nil {
		return nil, fmt.Errorf("server error: %w", ev.Err)
	}
	// Drain the trailing close so the stream is fully settled
	for range events {
	}
	return c.codec.Decode(ev.Payload), nil
}

// Stream runs a request-stream exchange: one message in, a stream of
// messages out. The returned channel is closed on completion; an errored
// Reply terminates it.
func (c *Client) Stream(definition string, in *message.Message) (<-chan Reply, error) {
	addr, t, err := c.pick(definition)
	if err != nil {
		return nil, err
	}

	p, err := c.codec.Encode(in, true)
	if err != nil {
		c.pool.Put(addr, t)
		return nil, err
	}

	events, err := t.RequestStream(definition, p)
	if err != nil {
		c.pool.Put(addr, t)
		return nil, err
	}

	replies := make(chan Reply)
	go func() {
		defer close(replies)
		defer c.pool.Put(addr, t)
		for ev := range events {
			if ev.Err != nil {
				replies <- Reply{Err: fmt.Errorf("server error: %w", ev.Err)}
				return
			}
			replies <- Reply{Msg: c.codec.Decode(ev.Payload)}
		}
	}()
	return replies, nil
}

// Channel runs a request-channel exchange: the messages read from in are
// sent as the inbound stream (closing in completes it), and the returned
// channel carries the reply stream. Cancelling ctx aborts the exchange;
// the reply channel then terminates without an error.
func (c *Client) Channel(ctx context.Context, definition string, in <-chan *message.Message) (<-chan Reply, error) {
	addr, t, err := c.pick(definition)
	if err != nil {
		return nil, err
	}

	sender, events, err := t.RequestChannel(definition, nil)
	if err != nil {
		c.pool.Put(addr, t)
		return nil, err
	}

	// Feed the inbound stream until it closes or ctx cancels the exchange
	go func() {
		for {
			select {
			case <-ctx.Done():
				sender.Cancel()
				return
			case msg, ok := <-in:
				if !ok {
					sender.Complete()
					return
				}
				p, err := c.codec.Encode(msg, false)
				if err != nil {
					// Non-serializable headers cannot happen here (headers
					// are dropped on the channel path); a body is copied
					// verbatim. Skip the unit if it ever does.
					continue
				}
				if err := sender.Send(p); err != nil {
					return
				}
			}
		}
	}()

	replies := make(chan Reply)
	go func() {
		defer close(replies)
		defer c.pool.Put(addr, t)
		for ev := range events {
			if ev.Err != nil {
				replies <- Reply{Err: fmt.Errorf("server error: %w", ev.Err)}
				return
			}
			replies <- Reply{Msg: c.codec.Decode(ev.Payload)}
		}
	}()
	return replies, nil
}
