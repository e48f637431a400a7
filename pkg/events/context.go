package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// EventSink receives the events of a conversation: streamed assistant text,
// notices, mandates, signature results and receipts.
type EventSink interface {
	PublishEvent(event Event) error
}

type sinksKey struct{}

// WithEventSinks returns a context carrying sinks in addition to the sinks
// already attached to ctx.
func WithEventSinks(ctx context.Context, sinks ...EventSink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	existing := GetEventSinks(ctx)
	combined := make([]EventSink, 0, len(existing)+len(sinks))
	combined = append(combined, existing...)
	combined = append(combined, sinks...)
	return context.WithValue(ctx, sinksKey{}, combined)
}

func GetEventSinks(ctx context.Context) []EventSink {
	sinks, _ := ctx.Value(sinksKey{}).([]EventSink)
	return sinks
}

// PublishEventToContext hands event to every sink attached to ctx. A sink
// error is logged and never reaches the conversation: rendering is
// best-effort while the turn and its signing go on.
func PublishEventToContext(ctx context.Context, event Event) {
	for _, sink := range GetEventSinks(ctx) {
		if err := sink.PublishEvent(event); err != nil {
			log.Debug().
				Err(err).
				Str("event_type", string(event.Type())).
				Str("turn_id", event.Metadata().TurnID).
				Msg("sink rejected event")
		}
	}
}
