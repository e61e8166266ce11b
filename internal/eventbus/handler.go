package eventbus

import "context"

// DefaultPriority is used by Subscribe.
const DefaultPriority = 100

// Handler processes events on the bus. Handlers are called in priority order
// (lower priority value = called earlier) for matching event types.
type Handler interface {
	// ID returns a unique identifier for this handler.
	ID() string

	// Handles returns the event types this handler processes.
	Handles() []EventType

	// Priority determines call order. Lower values are called first.
	Priority() int

	// Handle processes a single event and may add warnings to the result.
	// Returning an error logs a warning but does not stop the handler chain.
	Handle(ctx context.Context, event *Event, result *Result) error
}

type funcHandler struct {
	id       string
	handles  []EventType
	priority int
	fn       func(ctx context.Context, event *Event)
}

func (h *funcHandler) ID() string           { return h.id }
func (h *funcHandler) Handles() []EventType { return h.handles }
func (h *funcHandler) Priority() int        { return h.priority }

func (h *funcHandler) Handle(ctx context.Context, event *Event, _ *Result) error {
	h.fn(ctx, event)
	return nil
}
