package receipt

import (
	"regexp"
	"strings"

	"github.com/go-go-golems/concierge/pkg/parse"
	"github.com/rs/zerolog/log"
)

// Entry is one settled transaction.
type Entry struct {
	Label  string   `json:"label" yaml:"label"`
	TxHash string   `json:"txHash" yaml:"txHash"`
	Amount *float64 `json:"amount,omitempty" yaml:"amount,omitempty"`
}

// Receipt is the settlement confirmation attached to an assistant turn.
type Receipt struct {
	Entries []Entry `json:"entries" yaml:"entries"`
	Summary string  `json:"summary,omitempty" yaml:"summary,omitempty"`
}

const (
	DefaultLabel  = "Item"
	FallbackLabel = "Transaction"
)

var (
	DefaultCompletionMarkers = []string{"Payment Complete!"}
	HashKeys                 = []string{"tx_hash", "txHash", "transaction_hash", "tx_id"}
	BatchKeys                = []string{"receipts", "transactions", "entries"}
	LabelKeys                = []string{"commodity", "label", "item", "merchant", "name"}
	SummaryKeys              = []string{"details", "summary", "message"}
	AmountKeys               = []string{"amount", "total", "price"}
)

var (
	hashRegexp        = regexp.MustCompile(`0x[a-fA-F0-9]{64}`)
	labelledHashRegex = regexp.MustCompile(`(?i)TX Hash:\s*\[?(0x[a-zA-Z0-9]+)`)
)

type Recognizer struct {
	CompletionMarkers []string
}

func NewRecognizer() *Recognizer {
	return &Recognizer{CompletionMarkers: DefaultCompletionMarkers}
}

// Recognize returns the receipt announced in text, or nil when text does not
// report a completed payment.
//
// A structured payload is preferred. Without one, the first transaction hash
// mentioned in the prose becomes a single entry.
func (r *Recognizer) Recognize(text string) *Receipt {
	if !r.completed(text) {
		return nil
	}

	markers := append(append([]string{}, HashKeys...), BatchKeys...)
	if m, ok := parse.FindJSONObject(text, parse.FindOptions{
		MarkerKeys:             markers,
		RequireMarkersInFences: true,
	}); ok {
		if rc := fromObject(m.Object); rc != nil {
			return rc
		}
		log.Debug().Str("source", string(m.Source)).Msg("receipt payload had no transaction hash")
	}

	if hash := hashRegexp.FindString(text); hash != "" {
		return &Receipt{Entries: []Entry{{Label: FallbackLabel, TxHash: hash}}}
	}
	if sm := labelledHashRegex.FindStringSubmatch(text); sm != nil {
		return &Receipt{Entries: []Entry{{Label: FallbackLabel, TxHash: sm[1]}}}
	}
	return nil
}

func (r *Recognizer) completed(text string) bool {
	for _, m := range r.CompletionMarkers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func fromObject(obj parse.Object) *Receipt {
	summary, _ := obj.String(SummaryKeys...)

	if arr, ok := obj.Array(BatchKeys...); ok {
		var entries []Entry
		for _, item := range arr {
			o, ok := parse.AsObject(item)
			if !ok {
				continue
			}
			if e, ok := entryFrom(o); ok {
				entries = append(entries, e)
			}
		}
		if len(entries) == 0 {
			return nil
		}
		return &Receipt{Entries: entries, Summary: summary}
	}

	e, ok := entryFrom(obj)
	if !ok {
		return nil
	}
	if _, hasLabel := obj.String(LabelKeys...); !hasLabel {
		e.Label = FallbackLabel
	}
	return &Receipt{Entries: []Entry{e}, Summary: summary}
}

func entryFrom(o parse.Object) (Entry, bool) {
	hash, ok := o.String(HashKeys...)
	if !ok {
		return Entry{}, false
	}
	e := Entry{Label: DefaultLabel, TxHash: strings.TrimSpace(hash)}
	if label, ok := o.String(LabelKeys...); ok {
		e.Label = label
	}
	if amount, ok := o.Float(AmountKeys...); ok {
		e.Amount = &amount
	}
	return e, true
}
