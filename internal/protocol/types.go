package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Namespace prefixes every completion topic emitted by the remote context.
const Namespace = "marionette"

// ExecuteRequest is the payload of the execute command.
type ExecuteRequest struct {
	// Script is the JavaScript source evaluated in the remote context.
	Script string `json:"script"`
	// Args are bound positionally as __marionette_args inside the script scope.
	Args []json.RawMessage `json:"args,omitempty"`
}

// MockConfig is a registered override for a named command.
type MockConfig struct {
	// Command is the name of the operation being overridden.
	Command string `json:"command"`
	// ReturnValue is handed back verbatim when no implementation is set.
	ReturnValue json.RawMessage `json:"return_value,omitempty"`
	// Implementation is a serialized script evaluated in the remote context
	// in place of the real handler. When both fields are set, it wins.
	Implementation string `json:"implementation,omitempty"`
}

// EvalPayload is the host-to-webview envelope carried on the session stream.
type EvalPayload struct {
	Topic  string `json:"topic"`
	Script string `json:"script"`
}

// Completion is the webview-to-host report for one execute call. Exactly one
// of Result or Error is set; Result is itself a JSON-encoded string (the
// remote side stringifies its outcome before transport).
type Completion struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *string         `json:"error,omitempty"`
}

// ExecuteTopic builds the completion topic for a correlation id.
func ExecuteTopic(id string) string {
	return fmt.Sprintf("%s:execute:%s", Namespace, id)
}

// ParseExecuteTopic extracts the correlation id from a completion topic.
// Returns false for topics outside the execute namespace.
func ParseExecuteTopic(topic string) (string, bool) {
	prefix := Namespace + ":execute:"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	id := topic[len(prefix):]
	if id == "" {
		return "", false
	}
	return id, true
}
