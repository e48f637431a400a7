package serde

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/concierge/pkg/turns"
)

// Options controls serialization behavior.
type Options struct {
	// OmitHidden drops hidden user turns, such as signature resubmissions.
	OmitHidden bool
}

// Transcript is the on-disk form of a conversation.
type Transcript struct {
	SessionID string        `yaml:"session_id,omitempty" json:"session_id,omitempty"`
	Turns     []*turns.Turn `yaml:"turns" json:"turns"`
}

// ToYAML marshals the turns of a conversation to YAML.
func ToYAML(sessionID string, ts []*turns.Turn, opt Options) ([]byte, error) {
	if opt.OmitHidden {
		ts = turns.Visible(ts)
	}
	if ts == nil {
		ts = []*turns.Turn{}
	}
	return yaml.Marshal(Transcript{SessionID: sessionID, Turns: ts})
}

// FromYAML unmarshals a transcript.
func FromYAML(b []byte) (*Transcript, error) {
	var t Transcript
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTranscriptYAML writes a transcript to a YAML file.
func SaveTranscriptYAML(path string, sessionID string, ts []*turns.Turn, opt Options) error {
	data, err := ToYAML(sessionID, ts, opt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
