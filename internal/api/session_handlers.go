package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mattjoyce/marionette/internal/session"
)

// handleAgentScript handles GET /session/agent.js: the bundle a webview loads
// to join the session.
func (s *Server) handleAgentScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, session.AgentScript)
}

// handleSessionStream handles GET /session/stream: the SSE channel carrying
// eval payloads toward the attached remote context. A new connection
// supersedes the previous one; the superseded handler unwinds when its
// channel closes.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, detach := s.session.Attach()
	defer detach()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				// Superseded by a newer attachment.
				return
			}
			data, err := json.Marshal(payload)
			if err != nil {
				s.logger.Error("failed to encode eval payload", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: eval\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleSessionEmit handles POST /session/emit: completion reports from the
// remote context. Always 202; malformed payloads are logged and dropped on
// the session side so a flaky agent cannot wedge a waiter.
func (s *Server) handleSessionEmit(w http.ResponseWriter, r *http.Request) {
	var req EmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCommandBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		s.writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	s.session.HandleEmission(req.Topic, req.Payload)
	w.WriteHeader(http.StatusAccepted)
}
