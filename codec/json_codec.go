package codec

import (
	"encoding/json"
)

// JSONHeaderCodec uses Go's standard library encoding/json for header
// serialization.
// Pros: human-readable, cross-language, easy to debug.
// Cons: slower due to reflection + string parsing, larger metadata section.
type JSONHeaderCodec struct{}

func (c *JSONHeaderCodec) Encode(headers map[string]any) ([]byte, error) {
	data, err := json.Marshal(headers)
	if err != nil {
		return nil, &EncodingError{Cause: err}
	}
	return data, nil
}

func (c *JSONHeaderCodec) Decode(data []byte) (map[string]any, error) {
	headers := map[string]any{}
	if err := json.Unmarshal(data, &headers); err != nil {
		return nil, &DecodingError{Cause: err}
	}
	return headers, nil
}
