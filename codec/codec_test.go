package codec

import (
	"errors"
	"testing"

	"stream-rpc/message"
	"stream-rpc/protocol"
)

func TestJSONHeaderCodec(t *testing.T) {
	hc := &JSONHeaderCodec{}

	original := map[string]any{
		"contentType": "text/plain",
		"route":       "upper",
	}

	data, err := hc.Encode(original)
	if err != nil {
		t.Fatalf("JSONHeaderCodec Encode failed: %v", err)
	}

	decoded, err := hc.Decode(data)
	if err != nil {
		t.Fatalf("JSONHeaderCodec Decode failed: %v", err)
	}

	if len(decoded) != len(original) {
		t.Fatalf("header count mismatch: got %d, want %d", len(decoded), len(original))
	}
	for k, v := range original {
		if decoded[k] != v {
			t.Errorf("header %q mismatch: got %v, want %v", k, decoded[k], v)
		}
	}
}

func TestJSONHeaderCodecNonSerializable(t *testing.T) {
	hc := &JSONHeaderCodec{}

	_, err := hc.Encode(map[string]any{"bad": make(chan int)})
	if err == nil {
		t.Fatal("expect error for non-serializable header value")
	}

	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expect *EncodingError, got %T", err)
	}
}

func TestJSONHeaderCodecMalformed(t *testing.T) {
	hc := &JSONHeaderCodec{}

	_, err := hc.Decode([]byte("not-json"))
	if err == nil {
		t.Fatal("expect error for malformed metadata")
	}

	var decErr *DecodingError
	if !errors.As(err, &decErr) {
		t.Fatalf("expect *DecodingError, got %T", err)
	}
}

func TestPayloadMetadataRoundTrip(t *testing.T) {
	pc := NewPayloadCodec(nil)

	original := message.WithHeaders([]byte("hello"), map[string]any{
		"contentType": "text/plain",
		"caller":      "test",
	})

	p, err := pc.Encode(original, true)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !p.HasMetadata() {
		t.Fatal("expect metadata to be attached with includeHeaders=true")
	}

	decoded := pc.Decode(p)
	if string(decoded.Body) != "hello" {
		t.Errorf("body mismatch: got %q, want %q", decoded.Body, "hello")
	}
	for k, v := range original.Headers {
		if decoded.Headers[k] != v {
			t.Errorf("header %q mismatch: got %v, want %v", k, decoded.Headers[k], v)
		}
	}
}

func TestPayloadEncodeDropsHeaders(t *testing.T) {
	pc := NewPayloadCodec(nil)

	msg := message.WithHeaders([]byte("hello"), map[string]any{"k": "v"})

	// includeHeaders=false drops the headers even when present
	p, err := pc.Encode(msg, false)
	if err != nil {
		t.Fatal(err)
	}
	if p.HasMetadata() {
		t.Fatal("expect no metadata with includeHeaders=false")
	}

	// includeHeaders=true with empty headers attaches nothing
	p, err = pc.Encode(message.New([]byte("hello")), true)
	if err != nil {
		t.Fatal(err)
	}
	if p.HasMetadata() {
		t.Fatal("expect no metadata for empty headers")
	}
}

// Malformed metadata never fails the decode — headers just come back empty.
func TestPayloadDecodeMalformedMetadata(t *testing.T) {
	pc := NewPayloadCodec(nil)

	decoded := pc.Decode(&protocol.Payload{
		Data:     []byte("body"),
		Metadata: []byte("not-json"),
	})

	if string(decoded.Body) != "body" {
		t.Errorf("body mismatch: got %q, want %q", decoded.Body, "body")
	}
	if len(decoded.Headers) != 0 {
		t.Errorf("expect empty headers, got %v", decoded.Headers)
	}
}

func TestPayloadDecodeNoMetadata(t *testing.T) {
	pc := NewPayloadCodec(nil)

	decoded := pc.Decode(&protocol.Payload{Data: []byte("body")})
	if string(decoded.Body) != "body" {
		t.Errorf("body mismatch: got %q", decoded.Body)
	}
	if len(decoded.Headers) != 0 {
		t.Errorf("expect empty headers, got %v", decoded.Headers)
	}
}

func TestPayloadEncodeNonSerializableHeaders(t *testing.T) {
	pc := NewPayloadCodec(nil)

	msg := message.WithHeaders([]byte("body"), map[string]any{"bad": make(chan int)})
	_, err := pc.Encode(msg, true)
	if err == nil {
		t.Fatal("expect error for non-serializable headers")
	}

	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expect *EncodingError, got %T", err)
	}
}
