package bridge

import (
	"context"

	"github.com/mattjoyce/marionette/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_evaluator.go -package=mocks github.com/mattjoyce/marionette/internal/bridge Evaluator

// Evaluator injects a script into the remote context. Dispatch is
// fire-and-forget: a nil return means the payload was accepted for delivery,
// not that it has run.
type Evaluator interface {
	Dispatch(ctx context.Context, payload protocol.EvalPayload) error
}
