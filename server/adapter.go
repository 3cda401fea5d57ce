package server

import (
	"context"

	"stream-rpc/codec"
	"stream-rpc/function"
	"stream-rpc/message"
	"stream-rpc/middleware"
	"stream-rpc/protocol"
)

// Result is one outcome unit of a streaming verb: either an encoded payload
// or the error that replaced it. For request-stream a Result with Err set
// terminates the exchange; for request-channel fan-out it only voids that
// element's contribution and the stream continues.
type Result struct {
	Payload *protocol.Payload
	Err     error
}

// Adapter exposes one bound function over the three interaction verbs.
//
// It binds the function handle, the classification cached on that handle,
// and a payload codec once at construction, and holds no mutable state
// afterwards — one Adapter instance safely serves unlimited concurrent
// exchanges.
//
// Verb composition rules:
//
//   - Reactive handles own the full stream shape, so requestResponse and
//     requestStream degrade to "the first or full output of a one-shot
//     channel exchange".
//   - Imperative handles process one unit at a time, so requestResponse and
//     requestStream are direct single-shot calls, and requestChannel becomes
//     a per-unit fan-out in arrival order.
//
// Headers are re-attached on exactly one path: the imperative
// request-response reply. The stream and channel verbs are pure-data
// pipelines.
type Adapter struct {
	handle  *function.Handle
	kind    function.Kind // cached at bind time, never re-evaluated
	codec   *codec.PayloadCodec
	handler middleware.HandlerFunc // middleware-chained apply-one, imperative path only
}

// NewAdapter binds a function handle.
// Middlewares wrap the per-message invocation primitive and therefore only
// apply to imperative invocations; a reactive transform receives its stream
// unwrapped.
func NewAdapter(h *function.Handle, pc *codec.PayloadCodec, middlewares ...middleware.Middleware) *Adapter {
	if pc == nil {
		pc = codec.NewPayloadCodec(nil)
	}
	return &Adapter{
		handle:  h,
		kind:    h.Kind(),
		codec:   pc,
		handler: middleware.Chain(middlewares...)(h.Call),
	}
}

// Handle returns the bound function handle.
func (a *Adapter) Handle() *function.Handle { return a.handle }

// applyOne is the shared primitive: decode a single payload, invoke the
// function once through the middleware chain, yield its output sequence.
func (a *Adapter) applyOne(ctx context.Context, p *protocol.Payload) ([]*message.Message, error) {
	return a.handler(ctx, a.codec.Decode(p))
}

// RequestResponse implements the 1-in → 1-out verb.
//
// Imperative: decode, invoke once, encode the first produced message with
// headers attached. Reactive: run a one-shot channel exchange and take the
// first element of its output stream (the channel path never attaches
// headers). A function that produces nothing yields a nil payload and nil
// error — an empty completion.
func (a *Adapter) RequestResponse(ctx context.Context, p *protocol.Payload) (*protocol.Payload, error) {
	if a.kind == function.Reactive {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel() // stop the function once the first element is taken

		out := a.RequestChannel(ctx, oneElement(p))
		r, ok := <-out
		if !ok {
			return nil, nil
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Payload, nil
	}

	outs, err := a.applyOne(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 {
		return nil, nil
	}
	return a.codec.Encode(outs[0], true)
}

// RequestStream implements the 1-in → N-out verb.
//
// Imperative: decode once, invoke once, emit the entire produced sequence.
// Reactive: delegate to the channel strategy with a one-element input
// stream. Headers are dropped in both cases. A Result with Err set
// terminates the returned stream.
func (a *Adapter) RequestStream(ctx context.Context, p *protocol.Payload) <-chan Result {
	if a.kind == function.Reactive {
		return a.RequestChannel(ctx, oneElement(p))
	}

	results := make(chan Result)
	go func() {
		defer close(results)
		outs, err := a.applyOne(ctx, p)
		if err != nil {
			emit(ctx, results, Result{Err: err})
			return
		}
		for _, m := range outs {
			pl, err := a.codec.Encode(m, false)
			if err != nil {
				emit(ctx, results, Result{Err: err})
				return
			}
			if !emit(ctx, results, Result{Payload: pl}) {
				return
			}
		}
	}()
	return results
}

// RequestChannel implements the N-in → M-out verb.
//
// Reactive: each inbound payload is decoded lazily as it arrives and fed to
// the function's input stream; the function itself determines the
// input-to-output correlation (bulk transform, not per-element pairing).
// Imperative: each inbound payload is independently decoded and invoked in
// arrival order, each invocation's output sequence flattened into the
// combined output stream; a failing unit contributes an errored Result and
// the rest of the stream continues.
//
// Cancelling ctx stops inbound consumption immediately and terminates the
// returned stream without a trailing error.
func (a *Adapter) RequestChannel(ctx context.Context, in <-chan *protocol.Payload) <-chan Result {
	if a.kind == function.Reactive {
		return a.channelReactive(ctx, in)
	}
	return a.channelImperative(ctx, in)
}

func (a *Adapter) channelReactive(ctx context.Context, in <-chan *protocol.Payload) <-chan Result {
	// Inbound side: decode lazily, suspend on both the transport and the
	// function's consumption pace.
	msgs := make(chan *message.Message)
	go func() {
		defer close(msgs)
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-in:
				if !ok {
					return
				}
				select {
				case msgs <- a.codec.Decode(p):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	out := a.handle.Transform(ctx, msgs)

	results := make(chan Result)
	go func() {
		defer close(results)
		for m := range out {
			pl, err := a.codec.Encode(m, false)
			r := Result{Payload: pl}
			if err != nil {
				r = Result{Err: err}
			}
			if !emit(ctx, results, r) {
				return
			}
		}
	}()
	return results
}

func (a *Adapter) channelImperative(ctx context.Context, in <-chan *protocol.Payload) <-chan Result {
	results := make(chan Result)
	go func() {
		defer close(results)
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-in:
				if !ok {
					return
				}
				// Invocations run in arrival order. A failing unit only
				// loses its own output contribution.
				outs, err := a.applyOne(ctx, p)
				if err != nil {
					if !emit(ctx, results, Result{Err: err}) {
						return
					}
					continue
				}
				for _, m := range outs {
					pl, err := a.codec.Encode(m, false)
					r := Result{Payload: pl}
					if err != nil {
						r = Result{Err: err}
					}
					if !emit(ctx, results, r) {
						return
					}
				}
			}
		}
	}()
	return results
}

// oneElement wraps a single payload as a closed one-element stream.
func oneElement(p *protocol.Payload) <-chan *protocol.Payload {
	in := make(chan *protocol.Payload, 1)
	in <- p
	close(in)
	return in
}

// emit delivers a Result unless the exchange was cancelled first.
func emit(ctx context.Context, ch chan<- Result, r Result) bool {
	select {
	case ch <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
