package signing

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/pkg/errors"
	"github.com/tcnksm/go-input"
)

// ApprovalSigner asks the user before delegating to Next.
//
// A prompt abandoned by a cancelled request keeps reading its input; the
// answer it receives goes to the next request instead of being lost.
type ApprovalSigner struct {
	Next Signer
	ui   *input.UI

	mu      sync.Mutex
	pending <-chan answer
}

type answer struct {
	text string
	err  error
}

func NewApprovalSigner(next Signer, r io.Reader, w io.Writer) *ApprovalSigner {
	return &ApprovalSigner{
		Next: next,
		ui: &input.UI{
			Writer: w,
			Reader: r,
		},
	}
}

func Describe(m *mandate.CanonicalMandate) string {
	return fmt.Sprintf("Sign %s: pay %d %s to %s (chain %d)?",
		m.PrimaryType, m.Amount(), m.Currency(), m.MerchantAddress(), m.Domain.ChainID)
}

// SignTypedData returns ctx.Err() when ctx ends before the user answers.
func (a *ApprovalSigner) SignTypedData(ctx context.Context, m *mandate.CanonicalMandate) (string, error) {
	if a.Next == nil {
		return "", ErrNoProvider
	}
	if m == nil {
		return "", errors.New("mandate is nil")
	}

	text, err := a.ask(ctx, "\n"+Describe(m)+" [y/n]")
	if err != nil {
		if errors.Is(err, input.ErrInterrupted) {
			return "", errors.Wrap(ErrUserRejected, "interrupted")
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", errors.Wrap(err, "waiting for approval")
		}
		return "", errors.Wrap(err, "asking for approval")
	}

	switch text {
	case "y", "Y":
		return a.Next.SignTypedData(ctx, m)
	default:
		return "", ErrUserRejected
	}
}

func (a *ApprovalSigner) ask(ctx context.Context, question string) (string, error) {
	a.mu.Lock()
	answers := a.pending
	a.pending = nil
	a.mu.Unlock()

	if answers == nil {
		ch := make(chan answer, 1)
		go func() {
			text, err := a.ui.Ask(question, &input.Options{
				Default:  "n",
				Required: true,
				Loop:     true,
				ValidateFunc: func(s string) error {
					switch s {
					case "y", "Y", "n", "N":
						return nil
					default:
						return fmt.Errorf("please enter 'y' or 'n'")
					}
				},
			})
			ch <- answer{text: text, err: err}
		}()
		answers = ch
	} else if a.ui.Writer != nil {
		_, _ = fmt.Fprintln(a.ui.Writer, question)
	}

	select {
	case res := <-answers:
		return res.text, res.err
	case <-ctx.Done():
		a.mu.Lock()
		a.pending = answers
		a.mu.Unlock()
		return "", ctx.Err()
	}
}
