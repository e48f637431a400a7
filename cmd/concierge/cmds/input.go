package cmds

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// readInput concatenates the named files, or reads stdin when there are none.
func readInput(cmd *cobra.Command, paths []string) (string, error) {
	if len(paths) == 0 || (len(paths) == 1 && paths[0] == "-") {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", errors.Wrap(err, "reading stdin")
		}
		return string(b), nil
	}
	var sb strings.Builder
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", errors.Wrapf(err, "reading %s", p)
		}
		sb.Write(b)
	}
	return sb.String(), nil
}

func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer func() {
			_ = enc.Close()
		}()
		return enc.Encode(v)
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}
