// Package session owns the channel between the host and the attached webview.
//
// The webview's agent holds one SSE stream open to receive eval payloads and
// reports completions back over HTTP. Exactly one attachment is live at a
// time; attaching again supersedes the previous stream (the original system
// has a single webview). Dispatch with no attachment fails fast — that is the
// execute bridge's "remote context rejected the injection" path.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mattjoyce/marionette/internal/correlate"
	"github.com/mattjoyce/marionette/internal/events"
	"github.com/mattjoyce/marionette/internal/log"
	"github.com/mattjoyce/marionette/internal/protocol"
)

// streamBuffer bounds how many eval payloads may be queued for the webview
// before dispatch starts rejecting.
const streamBuffer = 64

// Session bridges eval dispatch and completion delivery for the attached
// remote context.
type Session struct {
	mu     sync.Mutex
	stream chan protocol.EvalPayload
	gen    int

	correlator *correlate.Manager
	hub        *events.Hub
	logger     *slog.Logger
}

// New creates a session with no attachment.
func New(correlator *correlate.Manager, hub *events.Hub) *Session {
	return &Session{
		correlator: correlator,
		hub:        hub,
		logger:     log.WithComponent("session"),
	}
}

// Attach registers the remote context's stream and returns the payload channel
// plus a detach func. A second Attach supersedes the first: the old channel is
// closed so its SSE handler unwinds.
func (s *Session) Attach() (<-chan protocol.EvalPayload, func()) {
	s.mu.Lock()
	if s.stream != nil {
		close(s.stream)
	}
	ch := make(chan protocol.EvalPayload, streamBuffer)
	s.stream = ch
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.hub.Publish(events.TypeSessionAttached, nil)
	s.logger.Info("remote context attached", "generation", gen)

	detach := func() {
		s.mu.Lock()
		// Only tear down if this attachment is still the live one.
		if s.gen == gen && s.stream != nil {
			close(s.stream)
			s.stream = nil
			s.mu.Unlock()
			s.hub.Publish(events.TypeSessionDetached, nil)
			s.logger.Info("remote context detached", "generation", gen)
			return
		}
		s.mu.Unlock()
	}

	return ch, detach
}

// Attached reports whether a remote context is currently connected.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Dispatch pushes an eval payload toward the remote context. Fire-and-forget:
// success means the payload was queued on the stream, not that it ran.
func (s *Session) Dispatch(ctx context.Context, payload protocol.EvalPayload) error {
	if err := ctx.Err(); err != nil {
		return protocol.ExecuteError("dispatch cancelled: %v", err)
	}

	// The send is non-blocking, so holding the lock across it is safe and
	// prevents a racing Attach from closing the channel mid-send.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return protocol.ExecuteError("remote context not attached")
	}

	select {
	case s.stream <- payload:
		return nil
	default:
		return protocol.ExecuteError("session stream backlogged, dropping dispatch")
	}
}

// HandleEmission routes a topic/payload pair reported by the remote context.
// Completions for unknown or torn-down correlation ids are dropped by the
// correlator; malformed payloads are logged and dropped, never crashing the
// waiter.
func (s *Session) HandleEmission(topic string, payload []byte) {
	id, ok := protocol.ParseExecuteTopic(topic)
	if !ok {
		s.logger.Warn("emission on unrecognized topic", "topic", topic)
		return
	}

	completion, err := protocol.DecodeCompletion(payload)
	if err != nil {
		s.logger.Warn("dropping malformed completion", "call_id", id, "error", err)
		return
	}

	if completion.Error != nil {
		s.correlator.Resolve(id, correlate.Failure(*completion.Error))
		return
	}
	s.correlator.Resolve(id, correlate.Success(completion.Result))
}
