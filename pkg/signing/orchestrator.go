package signing

import (
	"context"
	"sync"

	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrUserRejected      = errors.New("user rejected the signature request")
	ErrNoProvider        = errors.New("no signing provider available")
	ErrChainMismatch     = errors.New("signer is connected to a different chain")
	ErrSignatureInFlight = errors.New("a signature request is already in flight")
)

// Signer is the signing capability. Implementations must sign exactly the
// mandate's domain, types, primary type and message.
type Signer interface {
	SignTypedData(ctx context.Context, m *mandate.CanonicalMandate) (string, error)
}

type SignerFunc func(ctx context.Context, m *mandate.CanonicalMandate) (string, error)

func (f SignerFunc) SignTypedData(ctx context.Context, m *mandate.CanonicalMandate) (string, error) {
	return f(ctx, m)
}

type State string

const (
	StateIdle              State = "idle"
	StateAwaitingSignature State = "awaiting-signature"
	StateSigned            State = "signed"
	StateRejected          State = "rejected"
	StateFailed            State = "failed"
)

const (
	RequestingMessage = "Requesting your signature for the payment mandate..."
	CancelledMessage  = "❌ Payment signature was cancelled."
	failedPrefix      = "❌ Payment signature failed: "
	resubmitPrefix    = "Here is my signature for the CartMandate: "
)

// Outcome is how one signature request ended.
type Outcome struct {
	State     State
	Signature string
	Err       error
}

// Message is the text shown to the user for rejected and failed requests.
func (o Outcome) Message() string {
	switch o.State {
	case StateRejected:
		return CancelledMessage
	case StateFailed:
		if o.Err != nil {
			return failedPrefix + o.Err.Error()
		}
		return failedPrefix + "unknown error"
	default:
		return ""
	}
}

// ResubmissionText is the user turn that hands a signature back to the agent.
func ResubmissionText(signature string) string {
	return resubmitPrefix + signature
}

// Orchestrator drives a Signer for one conversation. At most one request is
// awaiting a signature at any time.
type Orchestrator struct {
	signer Signer

	mu    sync.Mutex
	state State
}

func NewOrchestrator(signer Signer) *Orchestrator {
	return &Orchestrator{
		signer: signer,
		state:  StateIdle,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Request asks the signer to sign m. onAwaiting is called once the request
// is accepted and before the signer is invoked. If another request is still
// awaiting its signature, ErrSignatureInFlight is returned and m is ignored.
//
// Rejections and signer failures are reported through the Outcome, not the
// error. The orchestrator is idle again when Request returns.
func (o *Orchestrator) Request(ctx context.Context, m *mandate.CanonicalMandate, onAwaiting func()) (Outcome, error) {
	if m == nil {
		return Outcome{}, errors.New("mandate is nil")
	}

	o.mu.Lock()
	if o.state == StateAwaitingSignature {
		o.mu.Unlock()
		return Outcome{}, ErrSignatureInFlight
	}
	o.state = StateAwaitingSignature
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.state = StateIdle
		o.mu.Unlock()
	}()

	if onAwaiting != nil {
		onAwaiting()
	}

	outcome := o.sign(ctx, m)
	log.Info().
		Str("state", string(outcome.State)).
		Str("primary_type", m.PrimaryType).
		AnErr("err", outcome.Err).
		Msg("signature request finished")
	return outcome, nil
}

func (o *Orchestrator) sign(ctx context.Context, m *mandate.CanonicalMandate) Outcome {
	if o.signer == nil {
		return Outcome{State: StateFailed, Err: ErrNoProvider}
	}
	sig, err := o.signer.SignTypedData(ctx, m)
	switch {
	case errors.Is(err, ErrUserRejected):
		return Outcome{State: StateRejected, Err: err}
	case err != nil:
		return Outcome{State: StateFailed, Err: err}
	case sig == "":
		return Outcome{State: StateFailed, Err: errors.New("signer returned an empty signature")}
	default:
		return Outcome{State: StateSigned, Signature: sig}
	}
}
