package conversation

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/concierge/pkg/assembler"
	"github.com/go-go-golems/concierge/pkg/events"
	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/go-go-golems/concierge/pkg/receipt"
	"github.com/go-go-golems/concierge/pkg/signing"
	"github.com/go-go-golems/concierge/pkg/stream"
	"github.com/go-go-golems/concierge/pkg/turns"
)

var (
	ErrTurnInFlight = errors.New("a turn is already in flight")
	ErrEmptyInput   = errors.New("input is empty")
	ErrNoActiveTurn = errors.New("no turn in flight")
)

// WarningPrefix starts the visible turn that reports a transport failure.
const WarningPrefix = "⚠️ "

// Transport is the remote agent as seen by the controller.
type Transport interface {
	CreateSession(ctx context.Context) error
	Run(ctx context.Context, text string) (io.ReadCloser, error)
}

type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateSigning   State = "signing"
)

// Controller owns one conversation. It sends user turns to the agent,
// streams the reply into an assistant turn, and runs the mandate signing
// round-trip when a reply proposes a payment.
//
// Only one turn is processed at a time. The hidden turn carrying a signature
// is submitted from inside the running Submit call.
type Controller struct {
	transport     Transport
	sessionID     string
	decoder       *stream.Decoder
	assembler     *assembler.Assembler
	extractor     *mandate.Extractor
	canonicalizer *mandate.Canonicalizer
	recognizer    *receipt.Recognizer
	orchestrator  *signing.Orchestrator
	sinks         []events.EventSink

	mu           sync.Mutex
	turns        []*turns.Turn
	state        State
	inFlight     bool
	cancel       context.CancelFunc
	sessionReady bool
	signed       map[string]bool
}

type Option func(*Controller)

func WithEventSinks(sinks ...events.EventSink) Option {
	return func(c *Controller) {
		c.sinks = append(c.sinks, sinks...)
	}
}

// WithRegistry sets the schemas mandates are canonicalized against.
func WithRegistry(registry *mandate.Registry) Option {
	return func(c *Controller) {
		c.canonicalizer = mandate.NewCanonicalizer(registry)
	}
}

func WithExtractor(extractor *mandate.Extractor) Option {
	return func(c *Controller) {
		c.extractor = extractor
	}
}

func WithRecognizer(recognizer *receipt.Recognizer) Option {
	return func(c *Controller) {
		c.recognizer = recognizer
	}
}

func WithAssembler(a *assembler.Assembler) Option {
	return func(c *Controller) {
		c.assembler = a
	}
}

func WithDecoder(d *stream.Decoder) Option {
	return func(c *Controller) {
		c.decoder = d
	}
}

// WithSessionID tags published events. It does not change the agent session.
func WithSessionID(id string) Option {
	return func(c *Controller) {
		c.sessionID = id
	}
}

// NewController returns an idle controller. A nil signer is allowed: every
// mandate then ends in a failed signature.
func NewController(transport Transport, signer signing.Signer, options ...Option) (*Controller, error) {
	if transport == nil {
		return nil, errors.New("transport is nil")
	}
	c := &Controller{
		transport:    transport,
		decoder:      stream.NewDecoder(),
		assembler:    assembler.New(),
		extractor:    mandate.NewExtractor(),
		recognizer:   receipt.NewRecognizer(),
		orchestrator: signing.NewOrchestrator(signer),
		state:        StateIdle,
		signed:       map[string]bool{},
	}
	for _, o := range options {
		o(c)
	}
	if c.canonicalizer == nil {
		registry, err := mandate.NewCartMandateRegistry(mandate.DefaultCartMandateOptions())
		if err != nil {
			return nil, errors.Wrap(err, "building default mandate registry")
		}
		c.canonicalizer = mandate.NewCanonicalizer(registry)
	}
	return c, nil
}

// Turns returns deep copies of all turns in conversation order, hidden ones included.
func (c *Controller) Turns() []*turns.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]*turns.Turn, 0, len(c.turns))
	for _, t := range c.turns {
		ret = append(ret, t.Clone())
	}
	return ret
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Cancel aborts the turn in flight, closing its stream or withdrawing a
// pending signature request.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return ErrNoActiveTurn
	}
	cancel()
	return nil
}

// Submit sends text as a user turn and processes the reply, including any
// signing round-trip and the hidden resubmission that follows it. It returns
// when the controller is idle again.
//
// Failures of the agent or the signer become visible turns and are not
// returned. The error is non-nil only for rejected input, a turn already in
// flight, or a cancelled ctx.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.inFlight = true
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.inFlight = false
		c.cancel = nil
		c.state = StateIdle
		c.mu.Unlock()
	}()

	runCtx = events.WithEventSinks(runCtx, c.sinks...)
	next := submission{text: text}
	for {
		followUp, ok := c.process(runCtx, next)
		if !ok {
			break
		}
		next = followUp
	}

	return ctx.Err()
}

type submission struct {
	text   string
	hidden bool
}

// process runs one user turn to completion. It returns the hidden follow-up
// turn when a signature was obtained.
func (c *Controller) process(ctx context.Context, sub submission) (submission, bool) {
	user := turns.NewUserTurn(sub.text, sub.hidden)
	c.appendTurn(user)

	c.ensureSession(ctx)

	assistant, ok := c.streamReply(ctx, sub.text)
	if !ok {
		return submission{}, false
	}

	raw := c.assembler.Buffer()
	md := c.metadata(assistant.ID)
	logger := log.With().Str("turn_id", assistant.ID).Str("session_id", c.sessionID).Logger()

	if r := c.recognizer.Recognize(raw); r != nil {
		c.mu.Lock()
		err := assistant.AttachReceipt(r)
		c.mu.Unlock()
		if err != nil {
			logger.Warn().Err(err).Msg("could not attach receipt")
			return submission{}, false
		}
		logger.Info().Int("entries", len(r.Entries)).Msg("receipt recognized")
		events.PublishEventToContext(ctx, events.NewReceiptEvent(md, r))
		return submission{}, false
	}

	cand := c.extractor.Extract(raw)
	if cand == nil {
		logger.Debug().Msg("no mandate in turn")
		return submission{}, false
	}
	m, err := c.canonicalizer.Canonicalize(cand)
	if err != nil {
		logger.Warn().Err(err).Msg("mandate candidate rejected")
		return submission{}, false
	}

	c.mu.Lock()
	err = assistant.AttachMandate(m)
	c.mu.Unlock()
	if err != nil {
		logger.Warn().Err(err).Msg("could not attach mandate")
		return submission{}, false
	}
	digest := m.Digest()
	events.PublishEventToContext(ctx, events.NewMandateEvent(md, m, digest))

	if digest != "" && c.alreadySigned(digest) {
		logger.Info().Str("digest", digest).Msg("mandate already signed, not asking again")
		return submission{}, false
	}

	return c.sign(ctx, m, digest, md)
}

// streamReply sends text to the agent and assembles the reply into a new
// assistant turn. ok is false when no reply could be processed.
func (c *Controller) streamReply(ctx context.Context, text string) (*turns.Turn, bool) {
	c.setState(StateStreaming)

	body, err := c.transport.Run(ctx, text)
	if err != nil {
		c.reportFailure(ctx, err)
		return nil, false
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(body)

	assistant := turns.NewAssistantTurn()
	c.appendTurn(assistant)
	md := c.metadata(assistant.ID)
	events.PublishEventToContext(ctx, events.NewStartEvent(md))

	c.decoder.Reset()
	c.assembler.Reset(text)

	readErr := stream.Read(ctx, body, c.decoder, func(ev stream.Event) error {
		switch ev.Kind {
		case stream.KindEnd:
			return stream.ErrStop
		case stream.KindMalformed:
			log.Trace().Str("turn_id", assistant.ID).Str("line", ev.Raw).Msg("dropping malformed stream line")
			return nil
		}

		fragment := stream.TokenText(ev)
		if fragment == "" || !c.assembler.Append(fragment) {
			return nil
		}

		display := c.assembler.Display()
		c.mu.Lock()
		previous := assistant.Text
		err := assistant.SetText(display)
		c.mu.Unlock()
		if err != nil {
			return err
		}
		if display != previous {
			events.PublishEventToContext(ctx, events.NewPartialEvent(md, delta(previous, display), display))
		}
		return nil
	})

	c.mu.Lock()
	assistant.Close()
	final := assistant.Text
	c.mu.Unlock()
	events.PublishEventToContext(ctx, events.NewFinalEvent(md, final))

	if readErr != nil {
		if ctx.Err() != nil {
			log.Info().Str("turn_id", assistant.ID).Msg("turn cancelled")
			return nil, false
		}
		c.reportFailure(ctx, readErr)
		return nil, false
	}

	return assistant, true
}

func (c *Controller) sign(ctx context.Context, m *mandate.CanonicalMandate, digest string, md events.EventMetadata) (submission, bool) {
	c.setState(StateSigning)

	outcome, err := c.orchestrator.Request(ctx, m, func() {
		c.notice(ctx, signing.RequestingMessage)
		events.PublishEventToContext(ctx, events.NewSignatureRequestedEvent(md, digest, signing.RequestingMessage))
	})
	if err != nil {
		log.Warn().Err(err).Str("turn_id", md.TurnID).Msg("signature request refused")
		return submission{}, false
	}

	events.PublishEventToContext(ctx, events.NewSignatureResultEvent(md, string(outcome.State), outcome.Signature, outcome.Message()))

	if outcome.State != signing.StateSigned {
		c.notice(ctx, outcome.Message())
		return submission{}, false
	}

	if digest != "" {
		c.mu.Lock()
		c.signed[digest] = true
		c.mu.Unlock()
	}
	return submission{text: signing.ResubmissionText(outcome.Signature), hidden: true}, true
}

// ensureSession creates the agent session once. Failures are logged and
// retried on the next turn; the agent may accept messages anyway.
func (c *Controller) ensureSession(ctx context.Context) {
	c.mu.Lock()
	ready := c.sessionReady
	c.mu.Unlock()
	if ready {
		return
	}
	if err := c.transport.CreateSession(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", c.sessionID).Msg("could not create agent session")
		return
	}
	c.mu.Lock()
	c.sessionReady = true
	c.mu.Unlock()
}

func (c *Controller) reportFailure(ctx context.Context, err error) {
	log.Error().Err(err).Str("session_id", c.sessionID).Msg("agent request failed")
	t := turns.NewNotice(WarningPrefix + err.Error())
	c.appendTurn(t)
	events.PublishEventToContext(ctx, events.NewErrorEvent(c.metadata(t.ID), err))
}

// notice appends a closed, locally produced assistant turn.
func (c *Controller) notice(ctx context.Context, text string) *turns.Turn {
	t := turns.NewNotice(text)
	c.appendTurn(t)
	events.PublishEventToContext(ctx, events.NewInfoEvent(c.metadata(t.ID), text, nil))
	return t
}

func (c *Controller) appendTurn(t *turns.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, t)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Controller) alreadySigned(digest string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signed[digest]
}

func (c *Controller) metadata(turnID string) events.EventMetadata {
	return events.NewMetadata(c.sessionID, turnID)
}

// delta is what display adds to previous, or empty if display rewrote it.
func delta(previous, display string) string {
	if strings.HasPrefix(display, previous) {
		return display[len(previous):]
	}
	return ""
}
