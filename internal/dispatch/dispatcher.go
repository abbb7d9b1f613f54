package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mattjoyce/marionette/internal/log"
	"github.com/mattjoyce/marionette/internal/mock"
	"github.com/mattjoyce/marionette/internal/protocol"
)

// ErrUnknownCommand is returned when a command has neither a handler nor a
// registered mock.
var ErrUnknownCommand = errors.New("unknown command")

// Handler is a real command implementation.
type Handler func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// ScriptRunner evaluates mock implementations in the remote context. Satisfied
// by bridge.Executor.
type ScriptRunner interface {
	Execute(ctx context.Context, req protocol.ExecuteRequest) (json.RawMessage, error)
}

// Dispatcher owns the command table and the mock gate in front of it.
type Dispatcher struct {
	handlers map[string]Handler
	mocks    *mock.Registry
	runner   ScriptRunner
	logger   *slog.Logger
}

// New creates a dispatcher with an empty handler table.
func New(mocks *mock.Registry, runner ScriptRunner) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		mocks:    mocks,
		runner:   runner,
		logger:   log.WithComponent("dispatch"),
	}
}

// Register adds a handler for a command name. Commands are registered once at
// startup; duplicate names are a wiring bug.
func (d *Dispatcher) Register(command string, h Handler) error {
	if _, exists := d.handlers[command]; exists {
		return fmt.Errorf("command %q already registered", command)
	}
	d.handlers[command] = h
	return nil
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs one command. A registered mock answers the call before the
// real handler is consulted; the real handler never runs on a mock hit.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, payload json.RawMessage) (json.RawMessage, error) {
	if cfg, ok := d.mocks.Get(command); ok {
		d.logger.Debug("serving mocked command", "command", command)
		return d.serveMock(ctx, cfg, payload)
	}

	h, ok := d.handlers[command]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, command)
	}
	return h(ctx, payload)
}

// serveMock synthesizes the override's response. Implementation wins over
// return_value when both are set.
func (d *Dispatcher) serveMock(ctx context.Context, cfg protocol.MockConfig, payload json.RawMessage) (json.RawMessage, error) {
	if cfg.Implementation != "" {
		arg := payload
		if len(arg) == 0 {
			arg = json.RawMessage(`null`)
		}
		req := protocol.ExecuteRequest{
			Script: fmt.Sprintf("(%s)(__marionette_args[0])", cfg.Implementation),
			Args:   []json.RawMessage{arg},
		}
		return d.runner.Execute(ctx, req)
	}

	if cfg.ReturnValue != nil {
		return cfg.ReturnValue, nil
	}

	return json.RawMessage(`null`), nil
}
