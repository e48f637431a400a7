package cmds

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/go-go-golems/concierge/pkg/parse"
	"github.com/go-go-golems/concierge/pkg/signing"
)

type signResult struct {
	Mandate   *mandate.CanonicalMandate `json:"mandate" yaml:"mandate"`
	Digest    string                    `json:"digest" yaml:"digest"`
	State     signing.State             `json:"state" yaml:"state"`
	Signature string                    `json:"signature,omitempty" yaml:"signature,omitempty"`
	Message   string                    `json:"message,omitempty" yaml:"message,omitempty"`
	Recovered string                    `json:"recovered,omitempty" yaml:"recovered,omitempty"`
}

func NewSignCommand() *cobra.Command {
	output := "yaml"
	verify := false

	cmd := &cobra.Command{
		Use:   "sign [file]...",
		Short: "Canonicalize a mandate and sign it with the configured signer",
		Long: "Reads a mandate as a JSON object, or an assistant message embedding one, " +
			"from the files or stdin, and signs the canonical typed data.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			cand, err := candidateFromInput(text)
			if err != nil {
				return err
			}
			registry, err := s.Registry()
			if err != nil {
				return err
			}
			m, err := mandate.NewCanonicalizer(registry).Canonicalize(cand)
			if err != nil {
				return err
			}

			tty := openTTY()
			defer func() {
				_ = tty.Close()
			}()
			signer, err := buildSigner(s, tty)
			if err != nil {
				return err
			}

			outcome, err := signing.NewOrchestrator(signer).Request(cmd.Context(), m, nil)
			if err != nil {
				return err
			}

			ret := signResult{
				Mandate:   m,
				Digest:    m.Digest(),
				State:     outcome.State,
				Signature: outcome.Signature,
				Message:   outcome.Message(),
			}
			if verify && outcome.State == signing.StateSigned {
				addr, err := signing.RecoverAddress(m, outcome.Signature)
				if err != nil {
					return errors.Wrap(err, "verifying signature")
				}
				ret.Recovered = addr.Hex()
			}
			return writeStructured(cmd.OutOrStdout(), output, ret)
		},
	}
	cmd.Flags().StringVar(&output, "output", output, "output format (yaml, json)")
	cmd.Flags().BoolVar(&verify, "verify", false, "recover the signing address from the signature")
	return cmd
}

func candidateFromInput(text string) (*mandate.Candidate, error) {
	if obj, ok := parse.DecodeObject(strings.TrimSpace(text)); ok {
		if inner, ok := obj.Object(mandate.DefaultWrapperKey); ok {
			obj = inner
		}
		return mandate.CandidateFromValue(obj)
	}
	if cand := mandate.NewExtractor().Extract(text); cand != nil {
		return cand, nil
	}
	return nil, mandate.ErrNoMandate
}
