package history

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mattjoyce/marionette/internal/events"
	"github.com/mattjoyce/marionette/internal/log"
)

// Recorder tails the event hub and persists execute outcomes.
type Recorder struct {
	store  *Store
	hub    *events.Hub
	logger *slog.Logger
}

// NewRecorder creates a recorder over the given store and hub.
func NewRecorder(store *Store, hub *events.Hub) *Recorder {
	return &Recorder{
		store:  store,
		hub:    hub,
		logger: log.WithComponent("history"),
	}
}

// Run consumes hub events until ctx is cancelled. Blocking; call from its own
// goroutine.
func (r *Recorder) Run(ctx context.Context) {
	ch, cancel := r.hub.Subscribe()
	defer cancel()

	r.logger.Debug("history recorder started")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev events.Event) {
	var status string
	switch ev.Type {
	case events.TypeExecuteCompleted:
		status = StatusOK
	case events.TypeExecuteFailed:
		status = StatusFailed
	default:
		return
	}

	var data struct {
		CallID      string `json:"call_id"`
		Fingerprint string `json:"fingerprint"`
		DurationMs  int64  `json:"duration_ms"`
		Kind        string `json:"kind"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		r.logger.Warn("unparseable execute event", "type", ev.Type, "error", err)
		return
	}

	if _, err := r.store.Append(ctx, Record{
		CallID:      data.CallID,
		Fingerprint: data.Fingerprint,
		Status:      status,
		Kind:        data.Kind,
		Error:       data.Error,
		DurationMs:  data.DurationMs,
	}); err != nil {
		r.logger.Error("failed to record execute call", "call_id", data.CallID, "error", err)
	}
}
