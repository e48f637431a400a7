package conversation

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/concierge/pkg/events"
	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/go-go-golems/concierge/pkg/signing"
	"github.com/go-go-golems/concierge/pkg/transport"
	"github.com/go-go-golems/concierge/pkg/turns"
)

const merchant = "0x1234567890AbcdEF1234567890aBcdef12345678"

var txHash = "0x" + strings.Repeat("c3", 32)

// sse renders fragments as an agent event stream.
func sse(fragments ...string) string {
	var sb strings.Builder
	for _, f := range fragments {
		b, _ := json.Marshal(map[string]any{
			"content": map[string]any{"parts": []any{map[string]any{"text": f}}},
		})
		sb.WriteString("data: ")
		sb.Write(b)
		sb.WriteString("\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

func mandateStream() string {
	return sse(
		"Great choice! The Bell helmet is $50. ",
		"Please sign the EIP-712 mandate below.\n",
		"```json\n{\"cart_mandate\": {\"merchant_address\": \""+merchant+"\", \"amount\": \"$50\"",
		", \"currency\": \"USDC\"}}\n```\n",
	)
}

func receiptStream() string {
	return sse(
		"Payment Complete! Your Bell helmet is on its way.\n",
		"TX Hash: ["+txHash+"]",
	)
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) PublishEvent(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []events.EventType
	for _, e := range r.events {
		ret = append(ret, e.Type())
	}
	return ret
}

type fakeTransport struct {
	mu         sync.Mutex
	sessionErr error
	sessions   int
	runErr     error
	streams    []string
	prompts    []string
}

func (f *fakeTransport) CreateSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	return f.sessionErr
}

func (f *fakeTransport) Run(ctx context.Context, text string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, text)
	if f.runErr != nil {
		return nil, f.runErr
	}
	if len(f.streams) == 0 {
		return nil, errors.New("no stream left")
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return io.NopCloser(strings.NewReader(s)), nil
}

func countingSigner(signature string, err error) (signing.Signer, *int) {
	calls := 0
	return signing.SignerFunc(func(ctx context.Context, m *mandate.CanonicalMandate) (string, error) {
		calls++
		return signature, err
	}), &calls
}

func TestController_HelmetPurchase(t *testing.T) {
	replay := transport.NewReplay(mandateStream(), receiptStream())
	signer, calls := countingSigner("0xfeedface", nil)
	sink := &recordingSink{}

	c, err := NewController(replay, signer, WithEventSinks(sink), WithSessionID("session-1"))
	require.NoError(t, err)
	require.NoError(t, c.Submit(context.Background(), "  I want the Bell helmet  "))

	assert.Equal(t, 1, *calls)
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.IsRunning())
	assert.Equal(t, []string{
		"I want the Bell helmet",
		"Here is my signature for the CartMandate: 0xfeedface",
	}, replay.Prompts())

	ts := c.Turns()
	require.Len(t, ts, 5)

	assert.Equal(t, turns.RoleUser, ts[0].Role)
	assert.False(t, ts[0].Hidden)

	proposal := ts[1]
	assert.Equal(t, turns.RoleAssistant, proposal.Role)
	assert.True(t, proposal.Closed)
	assert.Equal(t, "Great choice! The Bell helmet is $50.", proposal.Text)
	assert.NotContains(t, proposal.Text, "```")
	require.NotNil(t, proposal.Mandate)
	assert.Equal(t, uint64(50), proposal.Mandate.Amount())
	assert.Equal(t, merchant, proposal.Mandate.MerchantAddress())
	assert.Equal(t, mandate.CartMandateType, proposal.Mandate.PrimaryType)

	assert.Equal(t, signing.RequestingMessage, ts[2].Text)
	assert.Equal(t, turns.RoleAssistant, ts[2].Role)

	assert.Equal(t, turns.RoleUser, ts[3].Role)
	assert.True(t, ts[3].Hidden)
	assert.Equal(t, "Here is my signature for the CartMandate: 0xfeedface", ts[3].Text)

	settled := ts[4]
	require.NotNil(t, settled.Receipt)
	require.Len(t, settled.Receipt.Entries, 1)
	assert.Equal(t, txHash, settled.Receipt.Entries[0].TxHash)
	assert.Nil(t, settled.Mandate)

	assert.Len(t, turns.Visible(ts), 4)

	typ := sink.types()
	assert.Contains(t, typ, events.EventTypeMandate)
	assert.Contains(t, typ, events.EventTypeSignatureRequested)
	assert.Contains(t, typ, events.EventTypeSignatureResult)
	assert.Contains(t, typ, events.EventTypeReceipt)
	assert.Equal(t, events.EventTypeStart, typ[0])
}

func TestController_SnapshotsAreCopies(t *testing.T) {
	ft := &fakeTransport{streams: []string{sse("Hello there.")}}
	c, err := NewController(ft, nil)
	require.NoError(t, err)
	require.NoError(t, c.Submit(context.Background(), "hi"))

	ts := c.Turns()
	ts[1].Text = "changed"
	assert.Equal(t, "Hello there.", c.Turns()[1].Text)
}

func TestController_SignatureCancelled(t *testing.T) {
	ft := &fakeTransport{streams: []string{mandateStream()}}
	signer, calls := countingSigner("", signing.ErrUserRejected)

	c, err := NewController(ft, signer)
	require.NoError(t, err)
	require.NoError(t, c.Submit(context.Background(), "I want the Bell helmet"))

	assert.Equal(t, 1, *calls)
	assert.Len(t, ft.prompts, 1)
	ts := c.Turns()
	require.Len(t, ts, 4)
	assert.Equal(t, signing.RequestingMessage, ts[2].Text)
	assert.Equal(t, signing.CancelledMessage, ts[3].Text)
	for _, tt := range ts {
		assert.False(t, tt.Hidden)
	}
	assert.Equal(t, StateIdle, c.State())
}

func TestController_SignatureFailed(t *testing.T) {
	ft := &fakeTransport{streams: []string{mandateStream()}}
	signer, _ := countingSigner("", errors.New("wallet locked"))

	c, err := NewController(ft, signer)
	require.NoError(t, err)
	require.NoError(t, c.Submit(context.Background(), "I want the Bell helmet"))

	ts := c.Turns()
	assert.Equal(t, "❌ Payment signature failed: wallet locked", ts[len(ts)-1].Text)
	assert.Len(t, ft.prompts, 1)
}

func TestController_NoSigner(t *testing.T) {
	ft := &fakeTransport{streams: []string{mandateStream()}}
	c, err := NewController(ft, nil)
	require.NoError(t, err)
	require.NoError(t, c.Submit(context.Background(), "I want the Bell helmet"))

	ts := c.Turns()
	assert.True(t, strings.HasPrefix(ts[len(ts)-1].Text, "❌ Payment signature failed: "))
}

func TestController_TransportError(t *testing.T) {
	ft := &fakeTransport{runErr: &transport.StatusError{StatusCode: 500, Body: "boom"}}
	sink := &recordingSink{}
	c, err := NewController(ft, nil, WithEventSinks(sink))
	require.NoError(t, err)

	require.NoError(t, c.Submit(context.Background(), "hello"))
	ts := c.Turns()
	require.Len(t, ts, 2)
	assert.Equal(t, "⚠️ Backend Error 500", ts[1].Text)
	assert.Equal(t, turns.RoleAssistant, ts[1].Role)
	assert.True(t, ts[1].Closed)
	assert.Equal(t, []events.EventType{events.EventTypeError}, sink.types())
	assert.Equal(t, StateIdle, c.State())

	// the conversation goes on
	ft.mu.Lock()
	ft.runErr = nil
	ft.streams = []string{sse("Back online.")}
	ft.mu.Unlock()
	require.NoError(t, c.Submit(context.Background(), "hello again"))
	assert.Equal(t, "Back online.", c.Turns()[3].Text)
}

func TestController_EmptyInput(t *testing.T) {
	c, err := NewController(&fakeTransport{}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Submit(context.Background(), "  \n"), ErrEmptyInput)
	assert.Empty(t, c.Turns())
}

func TestController_SessionFailureIgnored(t *testing.T) {
	ft := &fakeTransport{
		sessionErr: errors.New("session exists"),
		streams:    []string{sse("One."), sse("Two.")},
	}
	c, err := NewController(ft, nil)
	require.NoError(t, err)

	require.NoError(t, c.Submit(context.Background(), "first"))
	require.NoError(t, c.Submit(context.Background(), "second"))
	assert.Equal(t, 2, ft.sessions)
	assert.Equal(t, "Two.", c.Turns()[3].Text)

	ft.mu.Lock()
	ft.sessionErr = nil
	ft.streams = []string{sse("Three."), sse("Four.")}
	ft.mu.Unlock()
	require.NoError(t, c.Submit(context.Background(), "third"))
	require.NoError(t, c.Submit(context.Background(), "fourth"))
	assert.Equal(t, 3, ft.sessions)
}

func TestController_MalformedLinesDropped(t *testing.T) {
	stream := "data: {\"content\": {\"parts\": [{\"text\": \"Hel\"}]}}\n" +
		"data: {broken\n" +
		": keep-alive\n" +
		"data: {\"content\": {\"parts\": [{\"text\": \"lo!\"}]}}\n" +
		"data: [DONE]\n" +
		"data: {\"content\": {\"parts\": [{\"text\": \" ignored\"}]}}\n"
	ft := &fakeTransport{streams: []string{stream}}
	c, err := NewController(ft, nil)
	require.NoError(t, err)
	require.NoError(t, c.Submit(context.Background(), "hi"))

	assert.Equal(t, "Hello!", c.Turns()[1].Text)
}

func TestController_RepeatedMandateSignedOnce(t *testing.T) {
	ft := &fakeTransport{streams: []string{mandateStream(), mandateStream()}}
	signer, calls := countingSigner("0xfeedface", nil)

	c, err := NewController(ft, signer)
	require.NoError(t, err)
	require.NoError(t, c.Submit(context.Background(), "I want the Bell helmet"))

	assert.Equal(t, 1, *calls)
	assert.Len(t, ft.prompts, 2)
	ts := c.Turns()
	require.NotNil(t, ts[len(ts)-1].Mandate)
}

func TestController_InFlightGuardAndCancel(t *testing.T) {
	ft := &fakeTransport{streams: []string{mandateStream()}}
	entered := make(chan struct{})
	signer := signing.SignerFunc(func(ctx context.Context, m *mandate.CanonicalMandate) (string, error) {
		close(entered)
		<-ctx.Done()
		return "", ctx.Err()
	})

	c, err := NewController(ft, signer)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Cancel(), ErrNoActiveTurn)

	done := make(chan error, 1)
	go func() {
		done <- c.Submit(context.Background(), "I want the Bell helmet")
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("signer was not called")
	}

	assert.True(t, c.IsRunning())
	assert.Equal(t, StateSigning, c.State())
	assert.ErrorIs(t, c.Submit(context.Background(), "another"), ErrTurnInFlight)

	require.NoError(t, c.Cancel())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not return")
	}

	ts := c.Turns()
	assert.True(t, strings.HasPrefix(ts[len(ts)-1].Text, "❌ Payment signature failed: "))
	assert.Len(t, ft.prompts, 1)
	assert.False(t, c.IsRunning())
}

func TestController_CallerContextCancelled(t *testing.T) {
	ft := &fakeTransport{streams: []string{sse("never read")}}
	c, err := NewController(ft, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Submit(ctx, "hello"), context.Canceled)
	assert.Equal(t, StateIdle, c.State())
}
