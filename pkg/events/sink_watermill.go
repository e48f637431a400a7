package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// WatermillSink forwards conversation events to a watermill topic, where the
// EventRouter's handlers (the turn printer, the raw dumper) pick them up.
// The event type and turn id are copied into the message metadata so
// handlers can filter without decoding the payload.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "encoding %s event", event.Type())
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", string(event.Type()))
	if md := event.Metadata(); md.TurnID != "" {
		msg.Metadata.Set("turn_id", md.TurnID)
	}

	if err := w.publisher.Publish(w.topic, msg); err != nil {
		log.Warn().Err(err).Str("topic", w.topic).Str("event_type", string(event.Type())).Msg("could not publish event")
		return errors.Wrapf(err, "publishing to %s", w.topic)
	}
	return nil
}

var _ EventSink = (*WatermillSink)(nil)

// SinkFunc lets a plain function, such as a test recorder, act as a sink.
type SinkFunc func(event Event) error

func (f SinkFunc) PublishEvent(event Event) error {
	return f(event)
}
