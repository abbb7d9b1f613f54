package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeCompletion parses a completion payload delivered on an execute topic.
// Returns an error for invalid JSON or a payload carrying neither result nor
// error; callers log and drop those rather than failing the waiter.
func DecodeCompletion(data []byte) (*Completion, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty completion payload")
	}

	var c Completion
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("completion payload is not valid JSON: %w", err)
	}

	if c.Result == nil && c.Error == nil {
		return nil, fmt.Errorf("completion payload has neither result nor error")
	}

	return &c, nil
}

// DecodeResult unwraps a delivered result value. The remote side stringifies
// its outcome before transport, so the value is usually a JSON-encoded string
// needing one more decode. A value that is not a string is returned as-is.
func DecodeResult(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return raw, nil
	}

	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, fmt.Errorf("decode transported string: %w", err)
	}

	if !json.Valid([]byte(inner)) {
		return nil, fmt.Errorf("transported result is not valid JSON: %q", inner)
	}

	return json.RawMessage(inner), nil
}
