package codec

import (
	"stream-rpc/message"
	"stream-rpc/protocol"

	"github.com/sirupsen/logrus"
)

// PayloadCodec converts between the wire payload (data + optional metadata)
// and the domain message (body + headers).
//
// Decode never fails the exchange: the body is copied verbatim, and a
// malformed metadata section only costs the headers (logged, then empty).
// Encode attaches metadata only on the paths that propagate headers — the
// request-response reply is the single such path in the whole protocol.
type PayloadCodec struct {
	headers HeaderCodec
}

// NewPayloadCodec builds a PayloadCodec over the given header codec.
// Passing nil selects the JSON header codec.
func NewPayloadCodec(headers HeaderCodec) *PayloadCodec {
	if headers == nil {
		headers = &JSONHeaderCodec{}
	}
	return &PayloadCodec{headers: headers}
}

// Decode builds a fresh Message from a wire payload.
// The body is copied verbatim. When metadata is present it is parsed as a
// JSON header object; on parse failure the error is logged and the message
// keeps empty headers — metadata problems never fail the exchange.
func (c *PayloadCodec) Decode(p *protocol.Payload) *message.Message {
	if p == nil {
		return message.New(nil)
	}

	body := make([]byte, len(p.Data))
	copy(body, p.Data)

	if !p.HasMetadata() {
		return message.New(body)
	}

	headers, err := c.headers.Decode(p.Metadata)
	if err != nil {
		logrus.Warnf("codec: failed to extract headers from metadata: %v", err)
		return message.New(body)
	}
	return message.WithHeaders(body, headers)
}

// Encode builds a wire payload from a Message.
// The body is copied verbatim. Headers are serialized into the metadata
// section only when includeHeaders is true and the message actually carries
// headers; a header serialization failure is fatal to this single reply
// unit and surfaces as an *EncodingError.
func (c *PayloadCodec) Encode(msg *message.Message, includeHeaders bool) (*protocol.Payload, error) {
	data := make([]byte, len(msg.Body))
	copy(data, msg.Body)

	p := &protocol.Payload{Data: data}
	if !includeHeaders || len(msg.Headers) == 0 {
		return p, nil
	}

	metadata, err := c.headers.Encode(msg.Headers)
	if err != nil {
		return nil, err
	}
	p.Metadata = metadata
	return p, nil
}
