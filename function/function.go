// Package function defines the handle for a target function bound to the
// stream protocol.
//
// A Handle carries the function's static type metadata (whether its declared
// input and output are multi-valued) and its invocation shape. The
// reactive-vs-imperative classification is computed exactly once, at
// construction, and cached on the handle — every protocol verb consults the
// same cached value, so one bound function behaves consistently across all
// interaction modes.
package function

import (
	"context"
	"fmt"

	"stream-rpc/message"
)

// Kind classifies how a handle is invoked by the protocol adapter.
type Kind int

const (
	// Imperative functions process one message per invocation. They may
	// still produce a sequence of outputs for that single input.
	Imperative Kind = iota
	// Reactive functions own the whole stream: they consume an unbounded
	// input stream and produce an unbounded output stream, deciding the
	// input-to-output correlation themselves.
	Reactive
)

func (k Kind) String() string {
	if k == Reactive {
		return "Reactive"
	}
	return "Imperative"
}

// TypeInfo is the static type metadata supplied by the registry collaborator.
// It is sufficient to classify a handle without invoking the function.
type TypeInfo struct {
	InputMultiValued  bool
	OutputMultiValued bool
}

// Kind derives the classification from the declared types.
// Reactive requires both a multi-valued input AND a multi-valued output:
// a function that accepts a producer but declares a single-valued output
// does not qualify and stays imperative.
func (ti TypeInfo) Kind() Kind {
	if ti.InputMultiValued && ti.OutputMultiValued {
		return Reactive
	}
	return Imperative
}

// CallFunc is the imperative invocation shape: one input message in, a
// sequence of zero or more output messages out. Single-valued functions
// return a one-element slice — the sequence form keeps call sites in the
// adapter symmetric.
type CallFunc func(ctx context.Context, in *message.Message) ([]*message.Message, error)

// TransformFunc is the reactive invocation shape: the function receives the
// full input stream and returns its output stream. The implementation must
// close its output channel when done and stop producing once ctx is
// cancelled.
type TransformFunc func(ctx context.Context, in <-chan *message.Message) <-chan *message.Message

// Handle is an invocable target function plus the cached classification.
// A Handle is read-only after construction and safe to share across any
// number of concurrent exchanges.
type Handle struct {
	name      string
	info      TypeInfo
	kind      Kind
	call      CallFunc
	transform TransformFunc
}

// New builds a Handle from explicit type metadata.
// The classification is computed here, once, and never re-evaluated.
// Reactive handles need a transform, imperative handles need a call.
func New(name string, info TypeInfo, call CallFunc, transform TransformFunc) (*Handle, error) {
	kind := info.Kind()
	if kind == Reactive && transform == nil {
		return nil, fmt.Errorf("function %q: reactive handle requires a transform", name)
	}
	if kind == Imperative && call == nil {
		return nil, fmt.Errorf("function %q: imperative handle requires a call", name)
	}
	return &Handle{
		name:      name,
		info:      info,
		kind:      kind,
		call:      call,
		transform: transform,
	}, nil
}

// NewImperative builds a handle for a single-value-in function.
func NewImperative(name string, call CallFunc) *Handle {
	h, _ := New(name, TypeInfo{}, call, nil)
	return h
}

// NewMapper builds an imperative handle for the common one-in one-out case.
func NewMapper(name string, fn func(ctx context.Context, in *message.Message) (*message.Message, error)) *Handle {
	return NewImperative(name, func(ctx context.Context, in *message.Message) ([]*message.Message, error) {
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, nil
		}
		return []*message.Message{out}, nil
	})
}

// NewReactive builds a handle for a stream-in stream-out function.
func NewReactive(name string, transform TransformFunc) *Handle {
	h, _ := New(name, TypeInfo{InputMultiValued: true, OutputMultiValued: true}, nil, transform)
	return h
}

// Name returns the function's registered name.
func (h *Handle) Name() string { return h.name }

// Kind returns the classification cached at construction.
func (h *Handle) Kind() Kind { return h.kind }

// TypeInfo returns the static type metadata the handle was built from.
func (h *Handle) TypeInfo() TypeInfo { return h.info }

// Call invokes an imperative handle once with a single input message.
func (h *Handle) Call(ctx context.Context, in *message.Message) ([]*message.Message, error) {
	if h.call == nil {
		return nil, fmt.Errorf("function %q: not invocable per message", h.name)
	}
	return h.call(ctx, in)
}

// Transform hands the input stream to a reactive handle and returns its
// output stream.
func (h *Handle) Transform(ctx context.Context, in <-chan *message.Message) <-chan *message.Message {
	return h.transform(ctx, in)
}
