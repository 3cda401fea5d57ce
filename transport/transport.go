// Package transport implements the client-side transport layer with stream
// multiplexing and heartbeat.
//
// Transport enables multiple concurrent exchanges over a single TCP
// connection. Each exchange gets a unique stream ID, and a background
// goroutine (recvLoop) continuously reads frames and routes them to the
// correct exchange's event channel.
//
//	goroutine-1 ──RequestResponse(stream=1)──┐
//	goroutine-2 ──RequestStream(stream=2)────┼──→ single TCP conn ──→ Server
//	goroutine-3 ──RequestChannel(stream=3)───┘
//
//	recvLoop:  ←── Payload(stream=2) → streams[2] events ← goroutine-2 receives
package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"stream-rpc/protocol"
)

// streamBuffer is the per-exchange event buffer between recvLoop and the
// consumer. It keeps one slow consumer from stalling reads for every other
// exchange on the connection.
const streamBuffer = 64

// Event is one outcome unit of an exchange as seen by the client: a payload
// frame, or the terminal error from an Error frame. Normal completion is
// signaled by closing the event channel.
type Event struct {
	Payload *protocol.Payload
	Err     error
}

// stream is the client-side state of one live exchange.
// recvLoop is the only goroutine that sends on or closes events.
type stream struct {
	events  chan Event
	discard atomic.Bool // set by Cancel: drop further payloads, keep the terminal
}

func (s *stream) deliver(e Event) {
	if s.discard.Load() {
		return
	}
	s.events <- e
}

// Transport manages a single multiplexed TCP connection.
type Transport struct {
	conn    net.Conn
	seq     atomic.Uint32 // Monotonically increasing stream ID allocator
	streams sync.Map      // map[uint32]*stream — each exchange drains its own event channel
	sending sync.Mutex    // Write lock — multiple goroutines share one conn, writes must be
	//                       serialized to prevent frame interleaving
}

// NewTransport creates a transport for the given connection and starts two
// background goroutines:
//   - recvLoop: continuously reads frames and dispatches to live exchanges
//   - heartbeatLoop: sends periodic heartbeat frames to detect dead connections
func NewTransport(conn net.Conn) *Transport {
	t := &Transport{conn: conn}
	go t.recvLoop()
	go t.heartbeatLoop(30 * time.Second)
	return t
}

// open registers a new exchange and writes its opening frame.
func (t *Transport) open(frameType protocol.FrameType, route string, p *protocol.Payload) (uint32, *stream, error) {
	streamID := t.seq.Add(1)

	// Register the event channel BEFORE sending (avoid a race with recvLoop)
	s := &stream{events: make(chan Event, streamBuffer)}
	t.streams.Store(streamID, s)

	err := t.writeFrame(&protocol.Header{
		FrameType: frameType,
		StreamID:  streamID,
		Route:     route,
	}, p)
	if err != nil {
		t.streams.Delete(streamID) // Clean up on failure
		return 0, nil, err
	}
	return streamID, s, nil
}

// RequestResponse opens a 1-in → 1-out exchange for the named function.
// The returned channel delivers at most one payload event (or one error
// event) and is then closed.
func (t *Transport) RequestResponse(route string, p *protocol.Payload) (<-chan Event, error) {
	_, s, err := t.open(protocol.FrameRequestResponse, route, p)
	if err != nil {
		return nil, err
	}
	return s.events, nil
}

// RequestStream opens a 1-in → N-out exchange for the named function.
// The returned channel delivers every payload of the reply stream and is
// closed on completion; an error event terminates it.
func (t *Transport) RequestStream(route string, p *protocol.Payload) (<-chan Event, error) {
	_, s, err := t.open(protocol.FrameRequestStream, route, p)
	if err != nil {
		return nil, err
	}
	return s.events, nil
}

// RequestChannel opens an N-in → M-out exchange for the named function.
// first, which may be nil, rides on the opening frame. Further inbound
// units go through the returned ChannelSender; the event channel carries
// the reply stream.
func (t *Transport) RequestChannel(route string, first *protocol.Payload) (*ChannelSender, <-chan Event, error) {
	streamID, s, err := t.open(protocol.FrameRequestChannel, route, first)
	if err != nil {
		return nil, nil, err
	}
	return &ChannelSender{t: t, streamID: streamID, s: s}, s.events, nil
}

// ChannelSender is the client's send side of a request-channel exchange.
type ChannelSender struct {
	t        *Transport
	streamID uint32
	s        *stream
}

// Send delivers one inbound unit to the server.
func (cs *ChannelSender) Send(p *protocol.Payload) error {
	return cs.t.writeFrame(&protocol.Header{
		FrameType: protocol.FramePayload,
		StreamID:  cs.streamID,
	}, p)
}

// Complete tells the server the inbound stream is exhausted. The exchange
// stays open until the server's reply stream completes.
func (cs *ChannelSender) Complete() error {
	return cs.t.writeFrame(&protocol.Header{
		FrameType: protocol.FrameComplete,
		StreamID:  cs.streamID,
	}, nil)
}

// Cancel aborts the exchange. The server stops consuming further inbound
// units immediately and acknowledges with a Complete frame, which closes
// the event channel without an error; payloads still in flight are dropped.
func (cs *ChannelSender) Cancel() error {
	cs.s.discard.Store(true)
	return cs.t.writeFrame(&protocol.Header{
		FrameType: protocol.FrameCancel,
		StreamID:  cs.streamID,
	}, nil)
}

// writeFrame writes one frame under the sending lock.
// The lock ensures the frame's bytes are not interleaved with frames from
// other goroutines sharing this connection.
func (t *Transport) writeFrame(h *protocol.Header, p *protocol.Payload) error {
	t.sending.Lock()
	defer t.sending.Unlock()
	return protocol.Encode(t.conn, h, p)
}

// recvLoop runs in a dedicated goroutine, continuously reading frames from
// the connection. For each frame it looks up the stream ID and routes the
// event to that exchange's channel. This is the core of multiplexing —
// reply streams interleave arbitrarily on the wire, and each frame finds
// its own consumer.
//
// Why a single goroutine for reading? TCP is a byte stream — reads must be
// sequential to correctly parse frame boundaries.
func (t *Transport) recvLoop() {
	for {
		header, payload, err := protocol.Decode(t.conn)
		if err != nil {
			// Connection broken — notify all live exchanges
			t.closeAll(err)
			return
		}

		switch header.FrameType {
		case protocol.FramePayload:
			if v, ok := t.streams.Load(header.StreamID); ok {
				v.(*stream).deliver(Event{Payload: payload})
			}

		case protocol.FrameComplete:
			if v, ok := t.streams.LoadAndDelete(header.StreamID); ok {
				close(v.(*stream).events)
			}

		case protocol.FrameError:
			if v, ok := t.streams.LoadAndDelete(header.StreamID); ok {
				s := v.(*stream)
				s.deliver(Event{Err: errors.New(errorText(payload))})
				close(s.events)
			}

		case protocol.FrameHeartbeat:
			// KeepAlive echo — nothing to route

		default:
			// Request frames never travel server → client; skip
		}
	}
}

func errorText(p *protocol.Payload) string {
	if p == nil || len(p.Data) == 0 {
		return "exchange failed"
	}
	return string(p.Data)
}

// closeAll is called when the connection breaks. Every live exchange gets a
// terminal error event so consumers don't block forever.
func (t *Transport) closeAll(err error) {
	t.streams.Range(func(key, value any) bool {
		s := value.(*stream)
		s.deliver(Event{Err: err})
		close(s.events)
		t.streams.Delete(key)
		return true
	})
}

// Conn returns the underlying TCP connection.
func (t *Transport) Conn() net.Conn {
	return t.conn
}

// Close tears down the connection; recvLoop then fails every live exchange.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// heartbeatLoop sends periodic heartbeat frames to keep the connection
// alive. Heartbeat frames have no payload and stream ID 0, so they're very
// lightweight.
func (t *Transport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		err := t.writeFrame(&protocol.Header{
			FrameType: protocol.FrameHeartbeat,
		}, nil)
		if err != nil {
			return // Connection broken, exit heartbeat loop
		}
	}
}
