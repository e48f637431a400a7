package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Kind string

const (
	KindToken     Kind = "token"
	KindEnd       Kind = "end"
	KindMalformed Kind = "malformed"
)

const (
	DefaultPrefix   = "data:"
	DefaultSentinel = "[DONE]"
)

// Event is one decoded unit of the agent's server-sent event stream.
type Event struct {
	Kind Kind
	// Payload is the decoded JSON value for token events.
	Payload any
	// Raw is the line payload after the prefix.
	Raw string
}

// Decoder turns transport chunks into events. Lines may be split across
// chunks; only complete lines are decoded. A Decoder is not safe for
// concurrent use.
type Decoder struct {
	prefix   string
	sentinel string
	pending  []byte
}

type DecoderOption func(*Decoder)

func WithPrefix(prefix string) DecoderOption {
	return func(d *Decoder) {
		d.prefix = prefix
	}
}

func WithSentinel(sentinel string) DecoderOption {
	return func(d *Decoder) {
		d.sentinel = sentinel
	}
}

func NewDecoder(options ...DecoderOption) *Decoder {
	d := &Decoder{
		prefix:   DefaultPrefix,
		sentinel: DefaultSentinel,
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// Reset drops any buffered partial line. Call it before every new turn.
func (d *Decoder) Reset() {
	d.pending = d.pending[:0]
}

// Feed buffers chunk and returns the events of every line it completes.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.pending = append(d.pending, chunk...)

	var ret []Event
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		line := string(d.pending[:idx])
		d.pending = d.pending[idx+1:]
		if ev, ok := d.decodeLine(line); ok {
			ret = append(ret, ev)
		}
	}

	// avoid holding on to a large backing array once everything was consumed
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return ret
}

// Flush decodes a trailing line that was not terminated by a newline.
func (d *Decoder) Flush() []Event {
	if len(d.pending) == 0 {
		return nil
	}
	line := string(d.pending)
	d.pending = nil
	if ev, ok := d.decodeLine(line); ok {
		return []Event{ev}
	}
	return nil
}

func (d *Decoder) decodeLine(line string) (Event, bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, d.prefix) {
		return Event{}, false
	}
	payload := strings.TrimPrefix(line[len(d.prefix):], " ")

	if strings.TrimSpace(payload) == d.sentinel {
		return Event{Kind: KindEnd, Raw: payload}, true
	}

	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return Event{Kind: KindMalformed, Raw: payload}, true
	}
	return Event{Kind: KindToken, Payload: v, Raw: payload}, true
}

// ErrStop can be returned from a Read callback to stop reading without error.
var ErrStop = errors.New("stop reading stream")

// Read pulls chunks from r, decodes them with d and calls fn for every event,
// until EOF, context cancellation or fn returns an error. Returning ErrStop
// from fn ends reading successfully. Trailing data is flushed at EOF.
func Read(ctx context.Context, r io.Reader, d *Decoder, fn func(Event) error) error {
	buf := make([]byte, 4096)
	dispatch := func(evs []Event) error {
		for _, ev := range evs {
			if err := fn(ev); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			if err := dispatch(d.Feed(buf[:n])); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
		if readErr == io.EOF {
			err := dispatch(d.Flush())
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Debug().Err(readErr).Msg("stream read failed")
			return errors.Wrap(readErr, "reading event stream")
		}
	}
}

// TokenText returns the text carried by a token event whose payload has the
// shape {"content": {"parts": [{"text": "..."}]}}. Parts flagged as thoughts
// are skipped.
func TokenText(ev Event) string {
	if ev.Kind != KindToken {
		return ""
	}
	root, ok := ev.Payload.(map[string]any)
	if !ok {
		return ""
	}
	content, ok := root["content"].(map[string]any)
	if !ok {
		return ""
	}
	parts, ok := content["parts"].([]any)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if thought, _ := part["thought"].(bool); thought {
			continue
		}
		if text, ok := part["text"].(string); ok {
			sb.WriteString(text)
		}
	}
	return sb.String()
}
