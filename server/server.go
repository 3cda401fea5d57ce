// Package server exposes registered functions over the stream protocol's
// three interaction verbs, with middleware, parallel exchange processing,
// and graceful shutdown.
//
// Exchange processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each opening request frame: go handle<Verb> (parallel exchanges)
//	    → PayloadCodec.Decode → Middleware Chain → function.Handle → PayloadCodec.Encode → write frames
//
// Payload, Complete, and Cancel frames of a live request-channel exchange
// are routed to that exchange through a per-connection table keyed by
// stream ID.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"stream-rpc/codec"
	"stream-rpc/function"
	"stream-rpc/metrics"
	"stream-rpc/middleware"
	"stream-rpc/protocol"
	"stream-rpc/registry"

	"github.com/sirupsen/logrus"
)

// inboundBuffer is the per-exchange buffer between the connection read loop
// and a channel exchange. It decouples the single reader from a slow
// function so other exchanges on the connection keep flowing.
const inboundBuffer = 64

// Server accepts connections and serves registered functions over the
// stream protocol.
type Server struct {
	catalog       *registry.Catalog       // Registered functions: route → *function.Handle
	adapters      map[string]*Adapter     // Built once at Serve, after the middleware set is final
	codec         *codec.PayloadCodec     // Shared payload codec (stateless)
	listener      net.Listener            // TCP listener
	wg            sync.WaitGroup          // Tracks in-flight exchanges for graceful shutdown
	shutdown      atomic.Bool             // Set during shutdown to suppress Accept errors
	middlewares   []middleware.Middleware // Applied in order around every imperative invocation
	registry      registry.Registry       // Function discovery (etcd), nil if not using discovery
	advertiseAddr string                  // Address announced in etcd (e.g., "127.0.0.1:8080")
	// Different from the listen address (":8080") because etcd needs a routable IP
}

// NewServer creates a server with an empty function catalog and the JSON
// header codec.
func NewServer() *Server {
	return &Server{
		catalog: registry.NewCatalog(),
		codec:   codec.NewPayloadCodec(nil),
	}
}

// Register adds a function handle to the server's catalog.
// Must be called before Serve.
func (svr *Server) Register(h *function.Handle) error {
	return svr.catalog.Register(h)
}

// Use registers a middleware. Middlewares are applied in the order they are
// added, around the per-message invocation primitive of every imperative
// function.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve starts the server: listens on the given address, optionally
// announces every registered function in etcd, and enters the Accept loop.
//
// Parameters:
//   - advertiseAddr: the address to announce in etcd (e.g.,
//     "127.0.0.1:8080"). This differs from the listen address because
//     ":8080" resolves to "[::]:8080" locally.
//   - reg: the registry implementation. Pass nil to skip discovery.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	svr.listener = listener

	// Bind every function once, now that the middleware set is final.
	// Binding caches the reactive/imperative classification per handle and
	// builds the middleware chain around its apply-one primitive.
	svr.adapters = make(map[string]*Adapter, len(svr.catalog.Names()))
	for _, name := range svr.catalog.Names() {
		h, _ := svr.catalog.Resolve(name)
		svr.adapters[name] = NewAdapter(h, svr.codec, svr.middlewares...)
		logrus.WithFields(logrus.Fields{
			"function": name,
			"kind":     h.Kind().String(),
		}).Info("function bound")
	}

	// Announce all functions to etcd (if a registry is provided)
	svr.advertiseAddr = advertiseAddr
	if reg != nil {
		svr.registry = reg
		for _, name := range svr.catalog.Names() {
			err := reg.Announce(name, registry.Instance{
				Addr: advertiseAddr,
			}, 10) // TTL = 10 seconds, KeepAlive renews automatically
			if err != nil {
				logrus.Warnf("server: failed to announce %q at %s: %v", name, advertiseAddr, err)
			}
		}
	}

	// Accept loop: one goroutine per connection
	for {
		conn, err := listener.Accept()
		if err != nil {
			// During shutdown, listener.Close() causes Accept to return an
			// error. Check the shutdown flag to distinguish intentional
			// close from real errors.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// exchange is the connection-side state of one live exchange.
// inbound is set once at open and never reassigned; inboundDone is only
// touched by the connection's single read loop goroutine.
type exchange struct {
	ctx         context.Context
	cancel      context.CancelFunc
	inbound     chan *protocol.Payload // non-nil only for request-channel exchanges
	inboundDone bool                   // inbound has been closed by a Complete frame
}

// exchangeTable tracks the live exchanges of one connection by stream ID.
type exchangeTable struct {
	mu   sync.Mutex
	live map[uint32]*exchange
}

func newExchangeTable() *exchangeTable {
	return &exchangeTable{live: make(map[uint32]*exchange)}
}

func (t *exchangeTable) add(id uint32, ex *exchange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live[id] = ex
}

func (t *exchangeTable) get(id uint32) *exchange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live[id]
}

func (t *exchangeTable) remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.live, id)
}

// handleConn processes a single connection.
// It runs a read loop in a single goroutine (reads must be sequential to
// parse frame boundaries), dispatches each opening request frame to its own
// goroutine, and routes follow-up frames to live exchanges.
//
// A per-connection write mutex (writeMu) is shared among all exchange
// goroutines on this connection. This prevents frame interleaving when
// multiple goroutines write concurrently.
func (svr *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	writeMu := &sync.Mutex{}
	exchanges := newExchangeTable()

	// Cancelling connCtx tears down every exchange on this connection,
	// both on connection loss and on server shutdown of the read loop.
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	for {
		header, payload, err := protocol.Decode(conn)
		if err != nil {
			break // Connection closed or protocol error
		}
		if payload != nil {
			metrics.PayloadBytesIn.Add(float64(len(payload.Data)))
		}

		switch header.FrameType {
		case protocol.FrameHeartbeat:
			// KeepAlive probe — nothing to do
			continue

		// wg.Add happens here, before the handler goroutine is spawned, so
		// Shutdown's Wait always sees a dispatched exchange.
		case protocol.FrameRequestResponse:
			ex := svr.openExchange(connCtx, exchanges, header.StreamID, false)
			svr.wg.Add(1)
			go svr.handleRequestResponse(ex, exchanges, header, payload, conn, writeMu)

		case protocol.FrameRequestStream:
			ex := svr.openExchange(connCtx, exchanges, header.StreamID, false)
			svr.wg.Add(1)
			go svr.handleRequestStream(ex, exchanges, header, payload, conn, writeMu)

		case protocol.FrameRequestChannel:
			ex := svr.openExchange(connCtx, exchanges, header.StreamID, true)
			if payload != nil {
				ex.inbound <- payload // buffered, first element always fits
			}
			svr.wg.Add(1)
			go svr.handleRequestChannel(ex, exchanges, header, conn, writeMu)

		case protocol.FramePayload:
			if ex := exchanges.get(header.StreamID); ex != nil && ex.inbound != nil && !ex.inboundDone {
				select {
				case ex.inbound <- orEmpty(payload):
				case <-ex.ctx.Done():
					// Cancelled exchange — drop the unit
				}
			}

		case protocol.FrameComplete:
			if ex := exchanges.get(header.StreamID); ex != nil && ex.inbound != nil && !ex.inboundDone {
				ex.inboundDone = true
				close(ex.inbound)
			}

		case protocol.FrameCancel:
			if ex := exchanges.get(header.StreamID); ex != nil {
				ex.cancel()
				exchanges.remove(header.StreamID)
				// Acknowledge with a Complete so the client side terminates
				// its reply stream without an error
				svr.writeComplete(conn, writeMu, header.StreamID)
			}

		default:
			logrus.Warnf("server: ignoring unexpected frame type %d on stream %d", header.FrameType, header.StreamID)
		}
	}
}

// openExchange registers a new exchange for an opening request frame.
func (svr *Server) openExchange(connCtx context.Context, exchanges *exchangeTable, id uint32, channel bool) *exchange {
	ctx, cancel := context.WithCancel(connCtx)
	ex := &exchange{ctx: ctx, cancel: cancel}
	if channel {
		ex.inbound = make(chan *protocol.Payload, inboundBuffer)
	}
	exchanges.add(id, ex)
	return ex
}

// closeExchange tears an exchange down after its handler goroutine is done.
func closeExchange(exchanges *exchangeTable, id uint32, ex *exchange) {
	ex.cancel()
	exchanges.remove(id)
}

func (svr *Server) handleRequestResponse(ex *exchange, exchanges *exchangeTable, header *protocol.Header, payload *protocol.Payload, conn net.Conn, writeMu *sync.Mutex) {
	defer svr.wg.Done()
	defer closeExchange(exchanges, header.StreamID, ex)

	metrics.ExchangesStarted.WithLabelValues(metrics.VerbRequestResponse).Inc()

	ad, ok := svr.adapters[header.Route]
	if !ok {
		svr.writeError(conn, writeMu, header.StreamID, fmt.Sprintf("unknown function %q", header.Route))
		metrics.ExchangesFailed.WithLabelValues(metrics.VerbRequestResponse).Inc()
		return
	}

	reply, err := ad.RequestResponse(ex.ctx, orEmpty(payload))
	if err != nil {
		svr.writeError(conn, writeMu, header.StreamID, err.Error())
		metrics.ExchangesFailed.WithLabelValues(metrics.VerbRequestResponse).Inc()
		return
	}

	if reply != nil {
		if err := svr.writePayload(conn, writeMu, header.StreamID, reply); err != nil {
			return
		}
	}
	svr.writeComplete(conn, writeMu, header.StreamID)
	metrics.ExchangesCompleted.WithLabelValues(metrics.VerbRequestResponse).Inc()
}

func (svr *Server) handleRequestStream(ex *exchange, exchanges *exchangeTable, header *protocol.Header, payload *protocol.Payload, conn net.Conn, writeMu *sync.Mutex) {
	defer svr.wg.Done()
	defer closeExchange(exchanges, header.StreamID, ex)

	metrics.ExchangesStarted.WithLabelValues(metrics.VerbRequestStream).Inc()

	ad, ok := svr.adapters[header.Route]
	if !ok {
		svr.writeError(conn, writeMu, header.StreamID, fmt.Sprintf("unknown function %q", header.Route))
		metrics.ExchangesFailed.WithLabelValues(metrics.VerbRequestStream).Inc()
		return
	}

	for r := range ad.RequestStream(ex.ctx, orEmpty(payload)) {
		if r.Err != nil {
			// A body/invocation error fails the whole stream exchange
			svr.writeError(conn, writeMu, header.StreamID, r.Err.Error())
			metrics.ExchangesFailed.WithLabelValues(metrics.VerbRequestStream).Inc()
			return
		}
		if err := svr.writePayload(conn, writeMu, header.StreamID, r.Payload); err != nil {
			return
		}
	}
	if ex.ctx.Err() != nil {
		return // cancelled — no terminal frame
	}
	svr.writeComplete(conn, writeMu, header.StreamID)
	metrics.ExchangesCompleted.WithLabelValues(metrics.VerbRequestStream).Inc()
}

func (svr *Server) handleRequestChannel(ex *exchange, exchanges *exchangeTable, header *protocol.Header, conn net.Conn, writeMu *sync.Mutex) {
	defer svr.wg.Done()
	defer closeExchange(exchanges, header.StreamID, ex)

	metrics.ExchangesStarted.WithLabelValues(metrics.VerbRequestChannel).Inc()

	ad, ok := svr.adapters[header.Route]
	if !ok {
		svr.writeError(conn, writeMu, header.StreamID, fmt.Sprintf("unknown function %q", header.Route))
		metrics.ExchangesFailed.WithLabelValues(metrics.VerbRequestChannel).Inc()
		return
	}

	for r := range ad.RequestChannel(ex.ctx, ex.inbound) {
		if r.Err != nil {
			// Per-element failure: only that unit's contribution is lost,
			// the channel keeps flowing.
			logrus.WithField("function", header.Route).Warnf("channel element failed: %v", r.Err)
			continue
		}
		if err := svr.writePayload(conn, writeMu, header.StreamID, r.Payload); err != nil {
			return
		}
	}
	if ex.ctx.Err() != nil {
		return // cancelled — no terminal frame
	}
	svr.writeComplete(conn, writeMu, header.StreamID)
	metrics.ExchangesCompleted.WithLabelValues(metrics.VerbRequestChannel).Inc()
}

func (svr *Server) writePayload(conn net.Conn, writeMu *sync.Mutex, streamID uint32, p *protocol.Payload) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	metrics.PayloadBytesOut.Add(float64(len(p.Data)))
	err := protocol.Encode(conn, &protocol.Header{
		FrameType: protocol.FramePayload,
		StreamID:  streamID,
	}, p)
	if err != nil {
		logrus.Errorf("server: failed to write payload frame: %v", err)
	}
	return err
}

func (svr *Server) writeComplete(conn net.Conn, writeMu *sync.Mutex, streamID uint32) {
	writeMu.Lock()
	defer writeMu.Unlock()
	err := protocol.Encode(conn, &protocol.Header{
		FrameType: protocol.FrameComplete,
		StreamID:  streamID,
	}, nil)
	if err != nil {
		logrus.Errorf("server: failed to write complete frame: %v", err)
	}
}

func (svr *Server) writeError(conn net.Conn, writeMu *sync.Mutex, streamID uint32, msg string) {
	writeMu.Lock()
	defer writeMu.Unlock()
	err := protocol.Encode(conn, &protocol.Header{
		FrameType: protocol.FrameError,
		StreamID:  streamID,
	}, &protocol.Payload{Data: []byte(msg)})
	if err != nil {
		logrus.Errorf("server: failed to write error frame: %v", err)
	}
}

// orEmpty normalizes a nil payload (frame with no sections) to an empty one
// so the adapter and codec never see nil.
func orEmpty(p *protocol.Payload) *protocol.Payload {
	if p == nil {
		return &protocol.Payload{}
	}
	return p
}

// Shutdown performs graceful shutdown:
//  1. Deregister all functions from etcd (clients stop routing here)
//  2. Set the shutdown flag (so the Accept error is recognized as intentional)
//  3. Close the listener (stop accepting new connections)
//  4. Wait for in-flight exchanges to finish (with timeout)
func (svr *Server) Shutdown(timeout time.Duration) error {
	// Deregister FIRST — so clients stop opening new exchanges
	if svr.registry != nil {
		for _, name := range svr.catalog.Names() {
			if err := svr.registry.Deregister(name, svr.advertiseAddr); err != nil {
				logrus.Warnf("server: failed to deregister %q at %s: %v", name, svr.advertiseAddr, err)
			}
		}
	}

	// Set the flag BEFORE closing the listener. If we close first, the
	// Accept error fires before the flag is set and Serve() would return a
	// real error instead of nil.
	svr.shutdown.Store(true)
	svr.listener.Close()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil // All exchanges completed
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for in-flight exchanges to finish")
	}
}
