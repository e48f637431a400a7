package assembler

import (
	"regexp"
	"strings"
	"unicode"
)

// IngestContext is what an IngestRule may look at when deciding about a fragment.
type IngestContext struct {
	// Buffer is the cumulative text accepted so far for the current turn.
	Buffer string
	// Prompt is the text of the user turn that started the current stream.
	Prompt string
}

// IngestRule rewrites or drops an incoming fragment before it is appended.
type IngestRule interface {
	Name() string
	Ingest(fragment string, ictx IngestContext) (string, bool)
}

// ProjectionRule rewrites the display projection. buffer is the untouched
// cumulative text, which rules may consult but never modify.
type ProjectionRule interface {
	Name() string
	Project(display string, buffer string) string
}

// EchoSuppression strips the first occurrence of the submitted prompt from a fragment.
type EchoSuppression struct{}

func (EchoSuppression) Name() string { return "echo-suppression" }

func (EchoSuppression) Ingest(fragment string, ictx IngestContext) (string, bool) {
	if ictx.Prompt == "" {
		return fragment, true
	}
	idx := strings.Index(fragment, ictx.Prompt)
	if idx < 0 {
		return fragment, true
	}
	rest := fragment[idx+len(ictx.Prompt):]
	if idx == 0 {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	}
	return fragment[:idx] + rest, true
}

// RepeatSuppression drops re-emitted text. A fragment of at least MinLength
// runes is dropped when its first ProbeLength runes already occur in the
// buffer. A shorter fragment of at least ProbeLength runes is dropped when the
// buffer already contains all of it.
type RepeatSuppression struct {
	MinLength   int
	ProbeLength int
}

func NewRepeatSuppression() RepeatSuppression {
	return RepeatSuppression{MinLength: 31, ProbeLength: 25}
}

func (RepeatSuppression) Name() string { return "repeat-suppression" }

func (r RepeatSuppression) Ingest(fragment string, ictx IngestContext) (string, bool) {
	if ictx.Buffer == "" {
		return fragment, true
	}
	runes := []rune(fragment)
	switch {
	case len(runes) >= r.MinLength:
		probe := string(runes[:min(r.ProbeLength, len(runes))])
		if strings.Contains(ictx.Buffer, probe) {
			return "", false
		}
	case r.ProbeLength > 0 && len(runes) >= r.ProbeLength:
		if strings.Contains(ictx.Buffer, fragment) {
			return "", false
		}
	}
	return fragment, true
}

// BlockCollapse collapses a run of at least MinLength characters that is
// immediately followed by exact copies of itself into one occurrence.
type BlockCollapse struct {
	MinLength int
}

func NewBlockCollapse(minLength int) *BlockCollapse {
	return &BlockCollapse{MinLength: minLength}
}

func (b *BlockCollapse) Name() string { return "block-collapse" }

func (b *BlockCollapse) Project(display string, _ string) string {
	return collapseRepeats(display, b.MinLength)
}

var routingPrefixRegexp = regexp.MustCompile(`For context:\[.*?\] said:\s*`)

// RoutingPrefixStrip removes "For context:[agent] said:" markers that multi-agent
// backends leave in relayed text.
type RoutingPrefixStrip struct{}

func (RoutingPrefixStrip) Name() string { return "routing-prefix-strip" }

func (RoutingPrefixStrip) Project(display string, _ string) string {
	return routingPrefixRegexp.ReplaceAllString(display, "")
}

// Truncation cuts the display at the first marker, unless the buffer already
// contains one of the terminal markers.
type Truncation struct {
	Markers         []string
	TerminalMarkers []string
}

func (Truncation) Name() string { return "truncation" }

func (t Truncation) Project(display string, buffer string) string {
	for _, m := range t.TerminalMarkers {
		if m != "" && strings.Contains(buffer, m) {
			return display
		}
	}
	cut := -1
	for _, m := range t.Markers {
		if m == "" {
			continue
		}
		if idx := strings.Index(display, m); idx >= 0 && (cut < 0 || idx < cut) {
			cut = idx
		}
	}
	if cut < 0 {
		return display
	}
	return display[:cut]
}

var (
	signatureSentenceRegexp = regexp.MustCompile(`(?i)Here is my signature for the CartMandate:\s*0x[a-fA-F0-9]+`)
	bareSignatureRegexp     = regexp.MustCompile(`0x[a-fA-F0-9]{130,}`)
)

// SignatureScrub removes echoed signature submissions and bare signatures.
type SignatureScrub struct{}

func (SignatureScrub) Name() string { return "signature-scrub" }

func (SignatureScrub) Project(display string, _ string) string {
	display = signatureSentenceRegexp.ReplaceAllString(display, "")
	return bareSignatureRegexp.ReplaceAllString(display, "")
}

// TrimSpace trims surrounding whitespace.
type TrimSpace struct{}

func (TrimSpace) Name() string { return "trim-space" }

func (TrimSpace) Project(display string, _ string) string {
	return strings.TrimSpace(display)
}
