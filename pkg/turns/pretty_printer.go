package turns

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// PrettyPrinter renders turns as a plain text transcript.
type PrettyPrinter struct {
	IncludeIDs     bool
	IncludeHidden  bool
	IncludeDetails bool
	IndentSpaces   int
	MaxTextLines   int // 0 => unlimited
}

type PrintOption func(*PrettyPrinter)

func WithIDs(include bool) PrintOption { return func(p *PrettyPrinter) { p.IncludeIDs = include } }

// WithHidden toggles printing of hidden user turns.
func WithHidden(include bool) PrintOption { return func(p *PrettyPrinter) { p.IncludeHidden = include } }

// WithDetails toggles printing of attached mandates and receipts.
func WithDetails(include bool) PrintOption {
	return func(p *PrettyPrinter) { p.IncludeDetails = include }
}

func WithIndent(spaces int) PrintOption { return func(p *PrettyPrinter) { p.IndentSpaces = spaces } }

func WithMaxTextLines(n int) PrintOption { return func(p *PrettyPrinter) { p.MaxTextLines = n } }

func NewPrettyPrinter(opts ...PrintOption) *PrettyPrinter {
	p := &PrettyPrinter{
		IncludeDetails: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FprintTurns prints ts using an ephemeral PrettyPrinter configured via options.
func FprintTurns(w io.Writer, ts []*Turn, opts ...PrintOption) {
	pp := NewPrettyPrinter(opts...)
	for _, t := range ts {
		pp.FprintTurn(w, t)
	}
}

func (p *PrettyPrinter) FprintTurn(w io.Writer, t *Turn) {
	if t == nil || (t.Hidden && !p.IncludeHidden) {
		return
	}
	pad := strings.Repeat(" ", p.IndentSpaces)
	prefix := pad
	if p.IncludeIDs {
		prefix = fmt.Sprintf("%s[%s] ", pad, t.ID)
	}
	label := string(t.Role) + ":"
	if t.Hidden {
		label = string(t.Role) + " (hidden):"
	}
	p.fprintText(w, prefix+label, t.Text)

	if !p.IncludeDetails {
		return
	}
	if t.Mandate != nil {
		fmt.Fprintf(w, "%s  mandate: %s\n", pad, toOneLineJSON(t.Mandate.Message))
	}
	if t.Receipt != nil {
		for _, e := range t.Receipt.Entries {
			if e.Amount != nil {
				fmt.Fprintf(w, "%s  receipt: %s %s (%g)\n", pad, e.Label, e.TxHash, *e.Amount)
			} else {
				fmt.Fprintf(w, "%s  receipt: %s %s\n", pad, e.Label, e.TxHash)
			}
		}
		if t.Receipt.Summary != "" {
			fmt.Fprintf(w, "%s  details: %s\n", pad, t.Receipt.Summary)
		}
	}
}

func (p *PrettyPrinter) fprintText(w io.Writer, head string, text string) {
	if text == "" {
		fmt.Fprintf(w, "%s <no text>\n", head)
		return
	}
	if p.MaxTextLines <= 0 {
		fmt.Fprintf(w, "%s %s\n", head, text)
		return
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= p.MaxTextLines {
		fmt.Fprintf(w, "%s %s\n", head, text)
		return
	}
	trimmed := strings.Join(lines[:p.MaxTextLines], "\n")
	fmt.Fprintf(w, "%s %s\n", head, trimmed)
}

func toOneLineJSON(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
