package events

import (
	"log/slog"

	"marketvault/core/types"
)

// Event represents a structured state change emitted by the market engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Carrier is implemented by events that wrap a typed payload.
type Carrier interface {
	Event
	Event() *types.Event
}

// LogEmitter writes every event to a structured logger. It is the default
// subscriber wired by the node so settlements remain observable without an
// external indexer.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements the Emitter interface.
func (l LogEmitter) Emit(evt Event) {
	if l.Logger == nil || evt == nil {
		return
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(Carrier); ok {
		if payload := carrier.Event(); payload != nil {
			for k, v := range payload.Attributes {
				attrs = append(attrs, slog.String(k, v))
			}
		}
	}
	l.Logger.Info("market event", attrs...)
}

// Queue buffers events until the surrounding state transition commits, then
// forwards them to the wrapped emitter. Discarded transitions never publish.
type Queue struct {
	next    Emitter
	pending []Event
}

// NewQueue returns a buffering emitter in front of next. A nil next discards
// on flush.
func NewQueue(next Emitter) *Queue {
	if next == nil {
		next = NoopEmitter{}
	}
	return &Queue{next: next}
}

// Emit implements the Emitter interface by buffering the event.
func (q *Queue) Emit(evt Event) {
	if q == nil || evt == nil {
		return
	}
	q.pending = append(q.pending, evt)
}

// Flush forwards all buffered events and clears the buffer.
func (q *Queue) Flush() {
	if q == nil {
		return
	}
	for _, evt := range q.pending {
		q.next.Emit(evt)
	}
	q.pending = nil
}

// Discard drops all buffered events without publishing them.
func (q *Queue) Discard() {
	if q == nil {
		return
	}
	q.pending = nil
}
