// Package message defines the domain message exchanged between the wire
// protocol and a target function.
//
// Message is what a bound function sees: the raw payload body plus the
// header mapping recovered from the wire unit's metadata. It gets built by
// the codec layer on every decode and is never reused across exchanges.
package message

// Message carries the data for one unit of a function exchange.
//
//   - Body is the payload bytes, copied verbatim from the wire.
//   - Headers is the mapping decoded from the frame metadata (JSON object),
//     empty when the frame carried no metadata or the metadata was malformed.
//
// A Message is built fresh per decode and must not be mutated after it has
// been handed to a function or a codec.
type Message struct {
	Body    []byte
	Headers map[string]any
}

// New builds a Message with the given body and empty headers.
func New(body []byte) *Message {
	return &Message{Body: body, Headers: map[string]any{}}
}

// WithHeaders builds a Message with the given body and headers.
// A nil headers map is normalized to an empty one so callers can always
// range over Headers without a nil check.
func WithHeaders(body []byte, headers map[string]any) *Message {
	if headers == nil {
		headers = map[string]any{}
	}
	return &Message{Body: body, Headers: headers}
}
