package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattjoyce/marionette/internal/events"
	"github.com/mattjoyce/marionette/internal/mock"
	"github.com/mattjoyce/marionette/internal/protocol"
)

// Built-in command names.
const (
	CmdExecute      = "execute"
	CmdSetMock      = "set-mock"
	CmdGetMock      = "get-mock"
	CmdClearMocks   = "clear-mocks"
	CmdResetMocks   = "reset-mocks"
	CmdRestoreMocks = "restore-mocks"
)

type setMockRequest struct {
	Command string              `json:"command"`
	Config  protocol.MockConfig `json:"config"`
}

type getMockRequest struct {
	Command string `json:"command"`
}

type mockEvent struct {
	Command string `json:"command,omitempty"`
	Scope   string `json:"scope,omitempty"`
}

var emptySuccess = json.RawMessage(`null`)

// RegisterBuiltins wires the core command set into the dispatcher. Mock
// mutations publish lifecycle events on hub.
func (d *Dispatcher) RegisterBuiltins(hub *events.Hub) error {
	builtins := map[string]Handler{
		CmdExecute:      d.handleExecute,
		CmdSetMock:      d.setMockHandler(hub),
		CmdGetMock:      d.handleGetMock,
		CmdClearMocks:   d.clearHandler(hub, "clear", (*mock.Registry).Clear),
		CmdResetMocks:   d.clearHandler(hub, "reset", (*mock.Registry).Reset),
		CmdRestoreMocks: d.clearHandler(hub, "restore", (*mock.Registry).Restore),
	}
	for name, h := range builtins {
		if err := d.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) handleExecute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req protocol.ExecuteRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, protocol.SerializationError("invalid execute payload: %v", err)
	}
	if req.Script == "" {
		return nil, protocol.SerializationError("execute payload requires a script")
	}
	return d.runner.Execute(ctx, req)
}

func (d *Dispatcher) setMockHandler(hub *events.Hub) Handler {
	return func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		var req setMockRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, protocol.SerializationError("invalid set-mock payload: %v", err)
		}
		if req.Command == "" {
			return nil, protocol.MockError("set-mock requires a command name")
		}
		if req.Config.Command == "" {
			req.Config.Command = req.Command
		}

		d.mocks.Set(req.Command, req.Config)
		hub.Publish(events.TypeMockSet, mockEvent{Command: req.Command})
		d.logger.Info("mock registered", "command", req.Command,
			"has_implementation", req.Config.Implementation != "")
		return emptySuccess, nil
	}
}

func (d *Dispatcher) handleGetMock(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req getMockRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, protocol.SerializationError("invalid get-mock payload: %v", err)
	}
	if req.Command == "" {
		return nil, protocol.MockError("get-mock requires a command name")
	}

	cfg, ok := d.mocks.Get(req.Command)
	if !ok {
		return json.RawMessage(`null`), nil
	}
	out, err := json.Marshal(cfg)
	if err != nil {
		return nil, protocol.SerializationError("encode mock config: %v", err)
	}
	return out, nil
}

// clearHandler builds a handler for one of the registry's bulk operations so
// the three flavors share a body.
func (d *Dispatcher) clearHandler(hub *events.Hub, scope string, op func(*mock.Registry)) Handler {
	return func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		op(d.mocks)
		hub.Publish(events.TypeMockCleared, mockEvent{Scope: scope})
		d.logger.Info(fmt.Sprintf("mocks %s", scope))
		return emptySuccess, nil
	}
}
