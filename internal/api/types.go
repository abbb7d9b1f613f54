package api

import (
	"encoding/json"

	"github.com/mattjoyce/marionette/internal/history"
)

// CommandResponse wraps the JSON value a command produced. Commands with no
// return value carry a JSON null.
type CommandResponse struct {
	Result json.RawMessage `json:"result"`
}

// HealthzResponse is the health check response body.
type HealthzResponse struct {
	Status          string   `json:"status"`
	UptimeSeconds   int64    `json:"uptime_seconds"`
	SessionAttached bool     `json:"session_attached"`
	PendingExecutes int      `json:"pending_executes"`
	MocksRegistered int      `json:"mocks_registered"`
	Commands        []string `json:"commands"`
}

// HistoryResponse lists recent execute calls, newest first.
type HistoryResponse struct {
	Records []history.Record `json:"records"`
}

// EmitRequest is the body of POST /session/emit: a completion topic plus the
// payload the remote context reported on it.
type EmitRequest struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
