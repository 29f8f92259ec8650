package progress

import "context"

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Emit must not block for long.
type Emitter interface {
	Emit(evt Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

// Emit calls f(evt).
func (f EmitterFunc) Emit(evt Event) { f(evt) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// Tee forwards each event to every non-nil emitter in order.
func Tee(emitters ...Emitter) Emitter {
	return EmitterFunc(func(evt Event) {
		for _, e := range emitters {
			if e != nil {
				e.Emit(evt)
			}
		}
	})
}
