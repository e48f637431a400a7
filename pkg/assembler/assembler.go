package assembler

import (
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	FenceMarker      = "```json"
	SignMarker       = "Please sign the EIP-712"
	CompletionMarker = "Payment Complete!"
)

// DefaultIngestRules are applied to every fragment, in order.
func DefaultIngestRules() []IngestRule {
	return []IngestRule{
		EchoSuppression{},
		NewRepeatSuppression(),
	}
}

// DefaultProjectionRules compute what a human gets to see of the buffer.
func DefaultProjectionRules() []ProjectionRule {
	return []ProjectionRule{
		NewBlockCollapse(50),
		RoutingPrefixStrip{},
		Truncation{
			Markers:         []string{FenceMarker, SignMarker},
			TerminalMarkers: []string{CompletionMarker},
		},
		SignatureScrub{},
		TrimSpace{},
	}
}

// Assembler accumulates the text fragments of one assistant turn.
//
// The buffer only changes through Append; the display projection is
// recomputed from it and never written back. An Assembler is not safe for
// concurrent use.
type Assembler struct {
	ingest     []IngestRule
	projection []ProjectionRule

	prompt string
	buffer strings.Builder
}

type Option func(*Assembler)

func WithIngestRules(rules ...IngestRule) Option {
	return func(a *Assembler) {
		a.ingest = rules
	}
}

func WithProjectionRules(rules ...ProjectionRule) Option {
	return func(a *Assembler) {
		a.projection = rules
	}
}

func New(options ...Option) *Assembler {
	a := &Assembler{
		ingest:     DefaultIngestRules(),
		projection: DefaultProjectionRules(),
	}
	for _, o := range options {
		o(a)
	}
	return a
}

// Reset starts a new turn. prompt is the user text that triggered it.
func (a *Assembler) Reset(prompt string) {
	a.prompt = prompt
	a.buffer.Reset()
}

// Append runs fragment through the ingest rules and appends what is left.
// It reports whether the buffer changed.
func (a *Assembler) Append(fragment string) bool {
	if fragment == "" {
		return false
	}
	ictx := IngestContext{Buffer: a.buffer.String(), Prompt: a.prompt}
	for _, r := range a.ingest {
		var keep bool
		fragment, keep = r.Ingest(fragment, ictx)
		if !keep {
			log.Trace().Str("rule", r.Name()).Msg("fragment dropped")
			return false
		}
	}
	if fragment == "" {
		return false
	}
	a.buffer.WriteString(fragment)
	return true
}

func (a *Assembler) Buffer() string {
	return a.buffer.String()
}

// Display is the sanitized projection of the current buffer.
func (a *Assembler) Display() string {
	return Project(a.buffer.String(), a.projection...)
}

// Project applies rules in order to a copy of buffer.
func Project(buffer string, rules ...ProjectionRule) string {
	display := buffer
	for _, r := range rules {
		display = r.Project(display, buffer)
	}
	return display
}
