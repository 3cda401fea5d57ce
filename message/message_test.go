package message

import (
	"bytes"
	"testing"
)

func TestNew(t *testing.T) {
	msg := New([]byte("hello"))

	if !bytes.Equal(msg.Body, []byte("hello")) {
		t.Fatalf("body mismatch: %q", msg.Body)
	}
	if msg.Headers == nil || len(msg.Headers) != 0 {
		t.Fatalf("expect empty non-nil headers, got %v", msg.Headers)
	}
}

func TestWithHeaders(t *testing.T) {
	msg := WithHeaders([]byte("hello"), map[string]any{"traceId": "abc"})

	if msg.Headers["traceId"] != "abc" {
		t.Fatalf("headers mismatch: %v", msg.Headers)
	}
}

func TestWithHeadersNil(t *testing.T) {
	msg := WithHeaders([]byte("hello"), nil)

	if msg.Headers == nil {
		t.Fatal("nil headers must be normalized to an empty map")
	}
}
