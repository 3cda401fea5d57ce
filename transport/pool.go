// Package transport also provides a pool of multiplexed transports.
//
// Because a Transport multiplexes any number of exchanges, the pool is a
// small fixed set per address rather than a grow-on-demand pool of
// exclusive connections: borrowing round-robins through the set via a
// buffered channel, which is concurrency-safe and blocks naturally when
// every transport is checked out.
package transport

import (
	"net"
	"sync"
)

// Pool manages a fixed number of transports per target address.
// Transports are created lazily — each address pool starts empty and grows
// on demand, so a failed dial leaves nothing behind and the next Get simply
// dials again.
type Pool struct {
	mu    sync.Mutex
	addrs map[string]*addrPool
	size  int
	dial  func(addr string) (net.Conn, error)
}

// addrPool holds the transports of one target address.
type addrPool struct {
	mu      sync.Mutex
	idle    chan *Transport // Buffered channel as pool — FIFO, goroutine-safe
	created int             // Currently created transports (may be < size)
}

// NewPool creates a transport pool holding up to size transports per
// address. A nil dial function defaults to plain TCP.
func NewPool(size int, dial func(addr string) (net.Conn, error)) *Pool {
	if dial == nil {
		dial = func(addr string) (net.Conn, error) {
			return net.Dial("tcp", addr)
		}
	}
	return &Pool{
		addrs: make(map[string]*addrPool),
		size:  size,
		dial:  dial,
	}
}

func (p *Pool) addrPoolFor(addr string) *addrPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ap, ok := p.addrs[addr]
	if !ok {
		ap = &addrPool{idle: make(chan *Transport, p.size)}
		p.addrs[addr] = ap
	}
	return ap
}

// Get borrows a transport for the given address.
// Strategy:
//  1. Try to take an idle transport (non-blocking select)
//  2. If none is idle but the pool is under its limit, dial a new one
//  3. If at the limit, block until a transport is returned
//
// The created count only moves on a successful dial, so a dial failure is
// retried by the next borrower instead of shrinking the pool.
func (p *Pool) Get(addr string) (*Transport, error) {
	ap := p.addrPoolFor(addr)

	select {
	case t := <-ap.idle:
		return t, nil
	default:
	}

	ap.mu.Lock()
	if ap.created < p.size {
		conn, err := p.dial(addr)
		if err != nil {
			ap.mu.Unlock()
			return nil, err
		}
		ap.created++
		ap.mu.Unlock()
		return NewTransport(conn), nil
	}
	ap.mu.Unlock()

	// At capacity — block until a transport is returned
	return <-ap.idle, nil
}

// Put returns a borrowed transport to its address pool.
func (p *Pool) Put(addr string, t *Transport) {
	p.addrPoolFor(addr).idle <- t
}

// Close tears down every pooled transport.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, ap := range p.addrs {
		close(ap.idle)
		for t := range ap.idle {
			t.Close()
		}
		delete(p.addrs, addr)
	}
	return nil
}
