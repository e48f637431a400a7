package turns

import (
	"bytes"
	"testing"

	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/go-go-golems/concierge/pkg/receipt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurn_ClosedIsImmutable(t *testing.T) {
	tr := NewAssistantTurn()
	require.NoError(t, tr.SetText("partial"))
	tr.Close()
	require.ErrorIs(t, tr.SetText("changed"), ErrTurnClosed)
	assert.Equal(t, "partial", tr.Text)
}

func TestTurn_AttachOnce(t *testing.T) {
	tr := NewNotice("done")
	m := &mandate.CanonicalMandate{PrimaryType: "CartMandate", Message: map[string]any{"amount": uint64(1)}}
	require.NoError(t, tr.AttachMandate(m))
	require.ErrorIs(t, tr.AttachMandate(m), ErrAlreadyAttached)

	r := &receipt.Receipt{Entries: []receipt.Entry{{Label: "Item", TxHash: "0x1"}}}
	require.NoError(t, tr.AttachReceipt(r))
	require.ErrorIs(t, tr.AttachReceipt(r), ErrAlreadyAttached)
}

func TestTurn_CloneIsDeep(t *testing.T) {
	tr := NewNotice("x")
	require.NoError(t, tr.AttachMandate(&mandate.CanonicalMandate{Message: map[string]any{"amount": uint64(1)}}))

	cp := tr.Clone()
	cp.Mandate.Message["amount"] = uint64(2)
	cp.Text = "y"
	assert.Equal(t, uint64(1), tr.Mandate.Message["amount"])
	assert.Equal(t, "x", tr.Text)
}

func TestVisible(t *testing.T) {
	a := NewUserTurn("a", false)
	b := NewUserTurn("b", true)
	assert.Equal(t, []*Turn{a}, Visible([]*Turn{a, b, nil}))
}

func TestPrettyPrinter(t *testing.T) {
	user := NewUserTurn("buy the helmet", false)
	hidden := NewUserTurn("signature", true)
	amount := 50.0
	answer := NewNotice("Payment Complete!")
	require.NoError(t, answer.AttachReceipt(&receipt.Receipt{
		Entries: []receipt.Entry{{Label: "Helmet", TxHash: "0xab", Amount: &amount}},
		Summary: "settled",
	}))

	var buf bytes.Buffer
	FprintTurns(&buf, []*Turn{user, hidden, answer})
	assert.Equal(t, "user: buy the helmet\n"+
		"assistant: Payment Complete!\n"+
		"  receipt: Helmet 0xab (50)\n"+
		"  details: settled\n", buf.String())

	buf.Reset()
	FprintTurns(&buf, []*Turn{hidden}, WithHidden(true), WithDetails(false))
	assert.Equal(t, "user (hidden): signature\n", buf.String())
}
