package events

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// EventCodec decodes one serialized event. Codecs registered here take
// precedence over the built-in turn events in NewEventFromJson, which is how
// the mandate, signature and receipt events travel over the router.
type EventCodec func([]byte) (Event, error)

var codecs = struct {
	sync.RWMutex
	byType map[string]EventCodec
}{byType: map[string]EventCodec{}}

// RegisterEventCodec adds a codec for typeName. Registering a type twice is
// an error.
func RegisterEventCodec(typeName string, dec EventCodec) error {
	codecs.Lock()
	defer codecs.Unlock()
	if _, exists := codecs.byType[typeName]; exists {
		return errors.Errorf("codec already registered for event type %q", typeName)
	}
	codecs.byType[typeName] = dec
	return nil
}

// RegisterEventFactory registers a codec that unmarshals into the event
// returned by factory, which must be a pointer to a fresh struct.
func RegisterEventFactory(typeName string, factory func() Event) error {
	return RegisterEventCodec(typeName, func(b []byte) (Event, error) {
		ev := factory()
		if err := json.Unmarshal(b, ev); err != nil {
			return nil, errors.Wrapf(err, "decoding %s event", typeName)
		}
		return ev, nil
	})
}

func lookupCodec(typeName string) (EventCodec, bool) {
	codecs.RLock()
	defer codecs.RUnlock()
	dec, ok := codecs.byType[typeName]
	return dec, ok
}
