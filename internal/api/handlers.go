package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/marionette/internal/dispatch"
	"github.com/mattjoyce/marionette/internal/history"
	"github.com/mattjoyce/marionette/internal/protocol"
)

// maxCommandBody bounds the size of one command payload.
const maxCommandBody = 4 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		SessionAttached: s.session.Attached(),
		PendingExecutes: s.correlator.Pending(),
		MocksRegistered: s.mocks.Len(),
		Commands:        s.dispatcher.Commands(),
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCommand handles POST /command/{command}: the surface test clients
// drive. The body is the command payload verbatim; an empty body dispatches a
// null payload.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	command := chi.URLParam(r, "command")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var payload json.RawMessage
	if len(body) > 0 {
		if !json.Valid(body) {
			s.writeError(w, http.StatusBadRequest, "request body must be valid JSON")
			return
		}
		payload = body
	}

	result, err := s.dispatcher.Dispatch(r.Context(), command, payload)
	if err != nil {
		s.writeError(w, commandErrorStatus(err), err.Error())
		return
	}
	if result == nil {
		result = json.RawMessage(`null`)
	}
	respondJSON(w, http.StatusOK, CommandResponse{Result: result})
}

// handleHistory handles GET /history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to query history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Records: records})
}

// commandErrorStatus maps a dispatch failure to an HTTP status. All errors
// stay a flat string in the body.
func commandErrorStatus(err error) int {
	if errors.Is(err, dispatch.ErrUnknownCommand) {
		return http.StatusNotFound
	}
	var perr *protocol.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case protocol.KindSerialization:
			return http.StatusBadRequest
		case protocol.KindExecute:
			return http.StatusBadGateway
		case protocol.KindMock:
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// respondJSON is a helper to write JSON responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
