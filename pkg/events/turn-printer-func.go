package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type PrinterOptions struct {
	// Markdown renders each closed assistant turn with glamour instead of
	// streaming the raw deltas.
	Markdown bool
	// Details prints mandates and signature results as YAML.
	Details bool
}

// TurnPrinterFunc returns a watermill handler that renders conversation
// events to w. Partial updates are printed as they extend what was already
// shown. An update that rewrites earlier text is deferred to the final event.
func TurnPrinterFunc(name string, w io.Writer, opts PrinterOptions) func(msg *message.Message) error {
	printed := ""

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.UUID).Msg("could not decode event")
			return nil
		}

		switch p_ := e.(type) {
		case *EventStart:
			printed = ""
			if name != "" {
				_, err = fmt.Fprintf(w, "\n%s: \n", name)
				if err != nil {
					return err
				}
			}

		case *EventPartial:
			if opts.Markdown || !strings.HasPrefix(p_.Completion, printed) {
				break
			}
			_, err = fmt.Fprint(w, p_.Completion[len(printed):])
			if err != nil {
				return err
			}
			printed = p_.Completion

		case *EventFinal:
			if opts.Markdown {
				styled, err := glamour.Render(p_.Text, "dark")
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(w, styled)
				if err != nil {
					return err
				}
				break
			}
			rest := ""
			if strings.HasPrefix(p_.Text, printed) {
				rest = p_.Text[len(printed):]
			}
			printed = ""
			if _, err = fmt.Fprint(w, rest); err != nil {
				return err
			}
			if !strings.HasSuffix(p_.Text, "\n") {
				_, err = fmt.Fprintf(w, "\n")
				if err != nil {
					return err
				}
			}

		case *EventError:
			if _, err := fmt.Fprintf(w, "\n[error] %s\n", p_.ErrorString); err != nil {
				return err
			}

		case *EventInfo:
			if _, err := fmt.Fprintf(w, "\n%s\n", p_.Message); err != nil {
				return err
			}
			if opts.Details && len(p_.Data) > 0 {
				if err := printYAML(w, p_.Data); err != nil {
					return err
				}
			}

		case *EventMandate:
			if !opts.Details || p_.Mandate == nil {
				break
			}
			if _, err := fmt.Fprintf(w, "\n[mandate] %s\n", p_.Digest); err != nil {
				return err
			}
			if err := printYAML(w, p_.Mandate); err != nil {
				return err
			}

		case *EventSignatureResult:
			if !opts.Details {
				break
			}
			if _, err := fmt.Fprintf(w, "\n[signature] %s %s\n", p_.State, p_.Signature); err != nil {
				return err
			}

		case *EventReceipt:
			if p_.Receipt == nil {
				break
			}
			for _, entry := range p_.Receipt.Entries {
				line := fmt.Sprintf("[receipt] %s %s", entry.Label, entry.TxHash)
				if entry.Amount != nil {
					line += fmt.Sprintf(" (%g)", *entry.Amount)
				}
				if _, err := fmt.Fprintln(w, line); err != nil {
					return err
				}
			}

		case *EventSignatureRequested:
		}

		return nil
	}
}

func printYAML(w io.Writer, v interface{}) error {
	v_, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", v_)
	return err
}
