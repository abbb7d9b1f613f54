// Package bridge orchestrates one execute call end to end: build the
// effective script, push it into the remote context, and block until the
// matching completion report arrives or the timeout fires.
package bridge

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/marionette/internal/correlate"
	"github.com/mattjoyce/marionette/internal/events"
	"github.com/mattjoyce/marionette/internal/log"
	"github.com/mattjoyce/marionette/internal/protocol"
)

// DefaultTimeout bounds how long an execute call waits for its completion.
// A hung or erroring remote context must never block the host forever.
const DefaultTimeout = 30 * time.Second

// Executor runs scripts in the remote context and returns their outcomes.
type Executor struct {
	evaluator  Evaluator
	correlator *correlate.Manager
	hub        *events.Hub
	timeout    time.Duration
	logger     *slog.Logger
}

// NewExecutor creates an executor. A non-positive timeout falls back to
// DefaultTimeout.
func NewExecutor(evaluator Evaluator, correlator *correlate.Manager, hub *events.Hub, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		evaluator:  evaluator,
		correlator: correlator,
		hub:        hub,
		timeout:    timeout,
		logger:     log.WithComponent("bridge"),
	}
}

// executeEvent is the lifecycle payload published on the event hub.
type executeEvent struct {
	CallID      string `json:"call_id"`
	Fingerprint string `json:"fingerprint"`
	ScriptBytes int    `json:"script_bytes,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Execute runs one execute call. Exactly one listener registration exists for
// its duration; every exit path tears it down.
func (e *Executor) Execute(ctx context.Context, req protocol.ExecuteRequest) (json.RawMessage, error) {
	script, err := BuildEffectiveScript(req)
	if err != nil {
		return nil, err
	}

	handle := e.correlator.Allocate()
	topic := protocol.ExecuteTopic(handle.ID())
	fingerprint := Fingerprint(script)
	logger := e.logger.With("call_id", handle.ID())
	start := time.Now()

	e.hub.Publish(events.TypeExecuteStarted, executeEvent{
		CallID:      handle.ID(),
		Fingerprint: fingerprint,
		ScriptBytes: len(script),
	})
	logger.Debug("dispatching script", "topic", topic, "script_bytes", len(script))

	if err := e.evaluator.Dispatch(ctx, protocol.EvalPayload{Topic: topic, Script: WrapCompletion(script, topic)}); err != nil {
		e.correlator.Discard(handle)
		err = asExecuteError(err)
		e.publishFailure(handle.ID(), fingerprint, start, err)
		logger.Warn("remote dispatch rejected", "error", err)
		return nil, err
	}

	raw, err := e.correlator.Await(ctx, handle, e.timeout)
	if err != nil {
		e.publishFailure(handle.ID(), fingerprint, start, err)
		logger.Warn("execute failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	value, err := protocol.DecodeResult(raw)
	if err != nil {
		serr := protocol.SerializationError("failed to decode execute result: %v", err)
		e.publishFailure(handle.ID(), fingerprint, start, serr)
		logger.Warn("result decode failed", "error", err)
		return nil, serr
	}

	e.hub.Publish(events.TypeExecuteCompleted, executeEvent{
		CallID:      handle.ID(),
		Fingerprint: fingerprint,
		DurationMs:  time.Since(start).Milliseconds(),
	})
	logger.Info("execute completed", "duration_ms", time.Since(start).Milliseconds())
	return value, nil
}

func (e *Executor) publishFailure(callID, fingerprint string, start time.Time, err error) {
	ev := executeEvent{
		CallID:      callID,
		Fingerprint: fingerprint,
		DurationMs:  time.Since(start).Milliseconds(),
		Error:       err.Error(),
	}
	var perr *protocol.Error
	if errors.As(err, &perr) {
		ev.Kind = perr.Kind.String()
	}
	e.hub.Publish(events.TypeExecuteFailed, ev)
}

// asExecuteError keeps classified errors and wraps everything else as an
// execute failure.
func asExecuteError(err error) error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return err
	}
	return protocol.ExecuteError("%s", err.Error())
}

// Fingerprint returns the hex BLAKE3 digest of a script, used to identify
// repeated scripts in history and event payloads without storing the source.
func Fingerprint(script string) string {
	sum := blake3.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}
