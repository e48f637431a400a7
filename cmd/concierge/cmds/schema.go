package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/go-go-golems/concierge/pkg/receipt"
	"github.com/go-go-golems/concierge/pkg/turns/serde"
)

var schemaTypes = map[string]func() interface{}{
	"mandate":    func() interface{} { return &mandate.CanonicalMandate{} },
	"receipt":    func() interface{} { return &receipt.Receipt{} },
	"transcript": func() interface{} { return &serde.Transcript{} },
}

func NewSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "schema {mandate|receipt|transcript}",
		Short:     "Print the JSON schema of a document concierge reads or writes",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"mandate", "receipt", "transcript"},
		RunE: func(cmd *cobra.Command, args []string) error {
			newValue, ok := schemaTypes[args[0]]
			if !ok {
				return errors.Errorf("unknown schema %q", args[0])
			}
			r := &jsonschema.Reflector{
				DoNotReference: true,
			}
			s := r.Reflect(newValue())
			b, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}
