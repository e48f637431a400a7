package cmds

import (
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error { return nil }

// openTTY returns the controlling terminal for signature prompts, so piped
// stdin stays reserved for chat lines. When stdin is the terminal too, the
// chat loop only reads between turns and the prompt owns it during a turn.
// Without a terminal it falls back to stdin and stderr.
func openTTY() io.ReadWriteCloser {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		log.Debug().Err(err).Msg("no controlling terminal, prompting on stdin")
		return stdio{Reader: os.Stdin, Writer: os.Stderr}
	}
	return tty
}
