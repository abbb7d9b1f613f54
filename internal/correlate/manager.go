// Package correlate matches asynchronous completion reports from the remote
// context to the execute call that is waiting on them.
//
// Each execute call allocates a handle with a process-unique id, the remote
// side reports its outcome on a topic derived from that id, and Resolve routes
// the outcome to the one-shot slot the caller is blocked on. Whichever of
// {resolution, timeout, cancellation} fires first tears the registration down;
// the others become no-ops. Late or duplicate resolutions are dropped.
package correlate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/marionette/internal/log"
	"github.com/mattjoyce/marionette/internal/protocol"
)

// Outcome is the resolution delivered for one handle: a success value or a
// carried failure message, never both.
type Outcome struct {
	Result json.RawMessage
	ErrMsg string
	failed bool
}

// Success wraps a delivered result value.
func Success(result json.RawMessage) Outcome {
	return Outcome{Result: result}
}

// Failure wraps a remote-reported failure message.
func Failure(msg string) Outcome {
	return Outcome{ErrMsg: msg, failed: true}
}

// Failed reports whether the outcome carries a failure.
func (o Outcome) Failed() bool { return o.failed }

// Handle is a single-use completion slot for one outstanding execute call.
// Handles are never shared across calls.
type Handle struct {
	id   string
	slot chan Outcome
}

// ID returns the correlation id the remote side reports on.
func (h *Handle) ID() string { return h.id }

// Manager owns the table of outstanding handles.
type Manager struct {
	mu      sync.Mutex
	pending map[string]*Handle
	seq     atomic.Uint64
	logger  *slog.Logger
}

// NewManager creates an empty correlation manager.
func NewManager() *Manager {
	return &Manager{
		pending: make(map[string]*Handle),
		logger:  log.WithComponent("correlate"),
	}
}

// Allocate registers a new handle. The id combines a nanosecond timestamp with
// a per-process counter; the timestamp alone is not provably unique at high
// call rates.
func (m *Manager) Allocate() *Handle {
	id := fmt.Sprintf("%d-%04d", time.Now().UnixNano(), m.seq.Add(1))
	h := &Handle{
		id:   id,
		slot: make(chan Outcome, 1),
	}

	m.mu.Lock()
	m.pending[id] = h
	m.mu.Unlock()

	return h
}

// Await blocks the calling goroutine until the handle resolves, the timeout
// elapses, or ctx is cancelled. The handle's registration is torn down exactly
// once on every path; a resolution racing the teardown is dropped.
func (m *Manager) Await(ctx context.Context, h *Handle, timeout time.Duration) (json.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	defer m.release(h.id)

	select {
	case outcome := <-h.slot:
		if outcome.Failed() {
			return nil, protocol.ExecuteError("%s", outcome.ErrMsg)
		}
		return outcome.Result, nil
	case <-timer.C:
		return nil, protocol.ExecuteError("timeout waiting for execute result")
	case <-ctx.Done():
		return nil, protocol.ExecuteError("execute cancelled: %v", ctx.Err())
	}
}

// Resolve delivers an outcome for id. If no live handle exists (already
// resolved, timed out, or cancelled), the resolution is dropped without error.
func (m *Manager) Resolve(id string, outcome Outcome) {
	m.mu.Lock()
	h, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("dropping resolution for unknown or torn-down id", "call_id", id)
		return
	}

	// The slot is buffered and the handle was removed from the table under the
	// lock, so exactly one send ever happens per handle.
	h.slot <- outcome
}

// Discard tears down a handle that will never be awaited, such as when the
// dispatch into the remote context is rejected. Idempotent.
func (m *Manager) Discard(h *Handle) {
	m.release(h.id)
}

// Pending reports the number of outstanding handles.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// release removes the handle registration. Safe to call after Resolve has
// already removed it.
func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}
