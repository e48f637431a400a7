package events

import (
	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/go-go-golems/concierge/pkg/receipt"
)

const (
	EventTypeMandate            EventType = "mandate"
	EventTypeSignatureRequested EventType = "signature-requested"
	EventTypeSignatureResult    EventType = "signature-result"
	EventTypeReceipt            EventType = "receipt"
)

// EventMandate is published when a closed assistant turn yields a mandate.
type EventMandate struct {
	EventImpl
	Mandate *mandate.CanonicalMandate `json:"mandate"`
	Digest  string                    `json:"digest,omitempty"`
}

func NewMandateEvent(metadata EventMetadata, m *mandate.CanonicalMandate, digest string) *EventMandate {
	return &EventMandate{
		EventImpl: EventImpl{
			Type_:     EventTypeMandate,
			Metadata_: metadata,
		},
		Mandate: m,
		Digest:  digest,
	}
}

type EventSignatureRequested struct {
	EventImpl
	Digest  string `json:"digest,omitempty"`
	Message string `json:"message"`
}

func NewSignatureRequestedEvent(metadata EventMetadata, digest string, message string) *EventSignatureRequested {
	return &EventSignatureRequested{
		EventImpl: EventImpl{
			Type_:     EventTypeSignatureRequested,
			Metadata_: metadata,
		},
		Digest:  digest,
		Message: message,
	}
}

type EventSignatureResult struct {
	EventImpl
	State     string `json:"state"`
	Signature string `json:"signature,omitempty"`
	Message   string `json:"message,omitempty"`
}

func NewSignatureResultEvent(metadata EventMetadata, state string, signature string, message string) *EventSignatureResult {
	return &EventSignatureResult{
		EventImpl: EventImpl{
			Type_:     EventTypeSignatureResult,
			Metadata_: metadata,
		},
		State:     state,
		Signature: signature,
		Message:   message,
	}
}

type EventReceipt struct {
	EventImpl
	Receipt *receipt.Receipt `json:"receipt"`
}

func NewReceiptEvent(metadata EventMetadata, r *receipt.Receipt) *EventReceipt {
	return &EventReceipt{
		EventImpl: EventImpl{
			Type_:     EventTypeReceipt,
			Metadata_: metadata,
		},
		Receipt: r,
	}
}

var (
	_ Event = &EventMandate{}
	_ Event = &EventSignatureRequested{}
	_ Event = &EventSignatureResult{}
	_ Event = &EventReceipt{}
)

func init() {
	// registration only fails on duplicates, which would be a programming error
	for typ, factory := range map[EventType]func() Event{
		EventTypeMandate:            func() Event { return &EventMandate{} },
		EventTypeSignatureRequested: func() Event { return &EventSignatureRequested{} },
		EventTypeSignatureResult:    func() Event { return &EventSignatureResult{} },
		EventTypeReceipt:            func() Event { return &EventReceipt{} },
	} {
		if err := RegisterEventFactory(string(typ), factory); err != nil {
			panic(err)
		}
	}
}
