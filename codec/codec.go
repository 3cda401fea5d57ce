// Package codec converts between transport payloads and domain messages.
//
// Two layers live here:
//
//   - HeaderCodec serializes the string-keyed header mapping to and from the
//     frame metadata bytes. Implementations are interchangeable; JSON is the
//     wire default.
//   - PayloadCodec combines a HeaderCodec with the verbatim body copy rules:
//     it is the only place that builds a message.Message from a
//     protocol.Payload or the other way around.
package codec

import "fmt"

// HeaderCodec serializes header mappings for the frame metadata section.
type HeaderCodec interface {
	// Encode serializes a header mapping. A non-serializable value yields
	// an *EncodingError.
	Encode(headers map[string]any) ([]byte, error)
	// Decode parses metadata bytes into a header mapping. Malformed input
	// yields a *DecodingError.
	Decode(data []byte) (map[string]any, error)
}

// EncodingError reports a header mapping that could not be serialized.
// It is fatal to the single reply unit being encoded, never to the whole
// exchange.
type EncodingError struct {
	Cause error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("codec: encoding headers: %v", e.Cause)
}

func (e *EncodingError) Unwrap() error { return e.Cause }

// DecodingError reports metadata bytes that could not be parsed into a
// header mapping. Callers on the inbound path treat it as non-fatal and
// proceed with empty headers.
type DecodingError struct {
	Cause error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("codec: decoding headers: %v", e.Cause)
}

func (e *DecodingError) Unwrap() error { return e.Cause }
