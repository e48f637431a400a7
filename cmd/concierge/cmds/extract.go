package cmds

import (
	"github.com/spf13/cobra"

	"github.com/go-go-golems/concierge/pkg/assembler"
	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/go-go-golems/concierge/pkg/receipt"
)

type extraction struct {
	Display string                    `json:"display" yaml:"display"`
	Mandate *mandate.CanonicalMandate `json:"mandate,omitempty" yaml:"mandate,omitempty"`
	Digest  string                    `json:"digest,omitempty" yaml:"digest,omitempty"`
	Receipt *receipt.Receipt          `json:"receipt,omitempty" yaml:"receipt,omitempty"`
	Miss    string                    `json:"miss,omitempty" yaml:"miss,omitempty"`
}

func NewExtractCommand() *cobra.Command {
	output := "yaml"

	cmd := &cobra.Command{
		Use:   "extract [file]...",
		Short: "Find the payment mandate or receipt in an assistant message",
		Long:  "Reads an assistant message from the files or stdin and prints what a human would see, the canonical mandate and any receipt.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			ret := extraction{
				Display: assembler.Project(text, assembler.DefaultProjectionRules()...),
			}
			if r := receipt.NewRecognizer().Recognize(text); r != nil {
				ret.Receipt = r
				return writeStructured(cmd.OutOrStdout(), output, ret)
			}

			cand := mandate.NewExtractor().Extract(text)
			if cand == nil {
				ret.Miss = "no mandate found"
				return writeStructured(cmd.OutOrStdout(), output, ret)
			}
			registry, err := s.Registry()
			if err != nil {
				return err
			}
			m, err := mandate.NewCanonicalizer(registry).Canonicalize(cand)
			if err != nil {
				ret.Miss = err.Error()
				return writeStructured(cmd.OutOrStdout(), output, ret)
			}
			ret.Mandate = m
			ret.Digest = m.Digest()
			return writeStructured(cmd.OutOrStdout(), output, ret)
		},
	}
	cmd.Flags().StringVar(&output, "output", output, "output format (yaml, json)")
	return cmd
}
