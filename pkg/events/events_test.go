package events

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/go-go-golems/concierge/pkg/receipt"
)

func toMessage(t *testing.T, e Event) *message.Message {
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return message.NewMessage(watermill.NewUUID(), b)
}

func TestNewEventFromJson_Builtin(t *testing.T) {
	md := NewMetadata("session-1", "turn-1")
	b, err := json.Marshal(NewPartialEvent(md, "lo", "hello"))
	require.NoError(t, err)

	e, err := NewEventFromJson(b)
	require.NoError(t, err)
	p, ok := e.(*EventPartial)
	require.True(t, ok)
	assert.Equal(t, "lo", p.Delta)
	assert.Equal(t, "hello", p.Completion)
	assert.Equal(t, "turn-1", p.Metadata().TurnID)
	assert.Equal(t, md.ID, p.Metadata().ID)
	assert.Equal(t, b, p.Payload())
}

func TestNewEventFromJson_RegisteredDomainEvents(t *testing.T) {
	amount := 12.5
	r := &receipt.Receipt{Entries: []receipt.Entry{{Label: "Helmet", TxHash: "0xabc", Amount: &amount}}}
	b, err := json.Marshal(NewReceiptEvent(NewMetadata("s", "t"), r))
	require.NoError(t, err)

	e, err := NewEventFromJson(b)
	require.NoError(t, err)
	re, ok := e.(*EventReceipt)
	require.True(t, ok)
	require.Len(t, re.Receipt.Entries, 1)
	assert.Equal(t, "0xabc", re.Receipt.Entries[0].TxHash)
	assert.Equal(t, EventTypeReceipt, re.Type())

	b, err = json.Marshal(NewSignatureResultEvent(NewMetadata("s", "t"), "signed", "0x01", ""))
	require.NoError(t, err)
	e, err = NewEventFromJson(b)
	require.NoError(t, err)
	sr, ok := e.(*EventSignatureResult)
	require.True(t, ok)
	assert.Equal(t, "signed", sr.State)
}

func TestNewEventFromJson_Unknown(t *testing.T) {
	e, err := NewEventFromJson([]byte(`{"type":"something-else"}`))
	require.NoError(t, err)
	assert.Equal(t, EventType("something-else"), e.Type())

	_, err = NewEventFromJson([]byte(`not json`))
	assert.Error(t, err)
}

func TestRegisterEventCodec_Duplicate(t *testing.T) {
	err := RegisterEventFactory(string(EventTypeMandate), func() Event { return &EventMandate{} })
	assert.Error(t, err)
}

func TestPublishEventToContext(t *testing.T) {
	var got []EventType
	sink := SinkFunc(func(e Event) error {
		got = append(got, e.Type())
		return nil
	})
	failing := SinkFunc(func(e Event) error {
		return assert.AnError
	})

	ctx := WithEventSinks(context.Background(), failing)
	ctx = WithEventSinks(ctx, sink)
	assert.Len(t, GetEventSinks(ctx), 2)

	PublishEventToContext(ctx, NewStartEvent(NewMetadata("s", "t")))
	PublishEventToContext(ctx, NewFinalEvent(NewMetadata("s", "t"), "done"))
	assert.Equal(t, []EventType{EventTypeStart, EventTypeFinal}, got)

	// no sinks is a no-op
	PublishEventToContext(context.Background(), NewStartEvent(NewMetadata("s", "t")))
}

func TestWatermillSink_Metadata(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() {
		_ = pubSub.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := pubSub.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	sink := NewWatermillSink(pubSub, DefaultTopic)
	require.NoError(t, sink.PublishEvent(NewSignatureResultEvent(NewMetadata("session-1", "turn-1"), "signed", "0xsig", "")))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, string(EventTypeSignatureResult), msg.Metadata.Get("event_type"))
		assert.Equal(t, "turn-1", msg.Metadata.Get("turn_id"))

		e, err := NewEventFromJson(msg.Payload)
		require.NoError(t, err)
		result, ok := e.(*EventSignatureResult)
		require.True(t, ok)
		assert.Equal(t, "0xsig", result.Signature)
		assert.Equal(t, "session-1", result.Metadata().SessionID)
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
}

func TestTurnPrinter_StreamsDeltas(t *testing.T) {
	var buf bytes.Buffer
	h := TurnPrinterFunc("assistant", &buf, PrinterOptions{})
	md := NewMetadata("s", "t")

	require.NoError(t, h(toMessage(t, NewStartEvent(md))))
	require.NoError(t, h(toMessage(t, NewPartialEvent(md, "Here", "Here"))))
	require.NoError(t, h(toMessage(t, NewPartialEvent(md, " is", "Here is"))))
	// a shrinking projection prints nothing until the final event
	require.NoError(t, h(toMessage(t, NewPartialEvent(md, "`", "Here i"))))
	require.NoError(t, h(toMessage(t, NewFinalEvent(md, "Here is your cart."))))

	assert.Equal(t, "\nassistant: \nHere is your cart.\n", buf.String())
}

func TestTurnPrinter_FinalCompletesText(t *testing.T) {
	var buf bytes.Buffer
	h := TurnPrinterFunc("", &buf, PrinterOptions{})
	md := NewMetadata("s", "t")

	require.NoError(t, h(toMessage(t, NewStartEvent(md))))
	require.NoError(t, h(toMessage(t, NewPartialEvent(md, "Hi", "Hi"))))
	require.NoError(t, h(toMessage(t, NewFinalEvent(md, "Hi there"))))

	assert.Equal(t, "Hi there\n", buf.String())
}

func TestTurnPrinter_NoticesAndReceipts(t *testing.T) {
	var buf bytes.Buffer
	h := TurnPrinterFunc("", &buf, PrinterOptions{})
	md := NewMetadata("s", "t")
	amount := 50.0

	require.NoError(t, h(toMessage(t, NewInfoEvent(md, "Requesting your signature", nil))))
	require.NoError(t, h(toMessage(t, NewReceiptEvent(md, &receipt.Receipt{
		Entries: []receipt.Entry{{Label: "Helmet", TxHash: "0x01", Amount: &amount}},
	}))))
	require.NoError(t, h(toMessage(t, NewErrorEvent(md, assert.AnError))))

	out := buf.String()
	assert.Contains(t, out, "\nRequesting your signature\n")
	assert.Contains(t, out, "[receipt] Helmet 0x01 (50)\n")
	assert.Contains(t, out, "[error] "+assert.AnError.Error())
}

func TestTurnPrinter_Details(t *testing.T) {
	reg, err := mandate.NewCartMandateRegistry(mandate.DefaultCartMandateOptions())
	require.NoError(t, err)
	cand, err := mandate.CandidateFromValue(map[string]interface{}{
		"merchant_address": "0x1111111111111111111111111111111111111111",
		"amount":           50,
	})
	require.NoError(t, err)
	m, err := mandate.NewCanonicalizer(reg).Canonicalize(cand)
	require.NoError(t, err)

	var buf bytes.Buffer
	h := TurnPrinterFunc("", &buf, PrinterOptions{Details: true})
	require.NoError(t, h(toMessage(t, NewMandateEvent(NewMetadata("s", "t"), m, "0xdigest"))))
	assert.Contains(t, buf.String(), "[mandate] 0xdigest")
	assert.Contains(t, buf.String(), "primaryType: CartMandate")

	buf.Reset()
	h = TurnPrinterFunc("", &buf, PrinterOptions{})
	require.NoError(t, h(toMessage(t, NewMandateEvent(NewMetadata("s", "t"), m, "0xdigest"))))
	assert.Empty(t, buf.String())
}

func TestEventRouter_DeliversToHandler(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	var buf bytes.Buffer
	router.AddHandler("printer", DefaultTopic, TurnPrinterFunc("", &buf, PrinterOptions{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- router.Run(ctx) }()

	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	sink := router.Sink(DefaultTopic)
	require.NoError(t, sink.PublishEvent(NewFinalEvent(NewMetadata("s", "t"), "hello")))
	assert.Equal(t, "hello\n", buf.String())

	require.NoError(t, router.Close())
	cancel()
	<-done
}
