package turns

import (
	"time"

	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/go-go-golems/concierge/pkg/receipt"
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	ErrTurnClosed      = errors.New("turn is closed")
	ErrAlreadyAttached = errors.New("already attached")
)

// Turn is one message of the conversation.
//
// Text is the display projection, never the raw stream buffer. It may change
// while the turn is open. Mandate and Receipt are attached at most once.
type Turn struct {
	ID        string                    `yaml:"id" json:"id"`
	Role      Role                      `yaml:"role" json:"role"`
	Text      string                    `yaml:"text" json:"text"`
	Hidden    bool                      `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	Closed    bool                      `yaml:"closed" json:"closed"`
	Mandate   *mandate.CanonicalMandate `yaml:"mandate,omitempty" json:"mandate,omitempty"`
	Receipt   *receipt.Receipt          `yaml:"receipt,omitempty" json:"receipt,omitempty"`
	CreatedAt time.Time                 `yaml:"created_at" json:"createdAt"`
}

// NewUserTurn returns a closed user turn. Hidden turns are sent to the agent
// but not shown.
func NewUserTurn(text string, hidden bool) *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Text:      text,
		Hidden:    hidden,
		Closed:    true,
		CreatedAt: time.Now(),
	}
}

// NewAssistantTurn returns an open assistant turn.
func NewAssistantTurn() *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
	}
}

// NewNotice returns a closed assistant turn produced locally, such as an
// error or a signing status message.
func NewNotice(text string) *Turn {
	t := NewAssistantTurn()
	t.Text = text
	t.Closed = true
	return t
}

func (t *Turn) SetText(text string) error {
	if t.Closed {
		return ErrTurnClosed
	}
	t.Text = text
	return nil
}

func (t *Turn) Close() {
	t.Closed = true
}

func (t *Turn) AttachMandate(m *mandate.CanonicalMandate) error {
	if t.Mandate != nil {
		return errors.Wrap(ErrAlreadyAttached, "mandate")
	}
	t.Mandate = m
	return nil
}

func (t *Turn) AttachReceipt(r *receipt.Receipt) error {
	if t.Receipt != nil {
		return errors.Wrap(ErrAlreadyAttached, "receipt")
	}
	t.Receipt = r
	return nil
}

// Clone returns a deep copy of the turn.
func (t *Turn) Clone() *Turn {
	if t == nil {
		return nil
	}
	return clone.Clone(t).(*Turn)
}

// Visible filters out hidden turns.
func Visible(ts []*Turn) []*Turn {
	ret := make([]*Turn, 0, len(ts))
	for _, t := range ts {
		if t != nil && !t.Hidden {
			ret = append(ret, t)
		}
	}
	return ret
}
