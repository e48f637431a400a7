package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/concierge/pkg/conversation"
	"github.com/go-go-golems/concierge/pkg/events"
	"github.com/go-go-golems/concierge/pkg/transport"
	"github.com/go-go-golems/concierge/pkg/turns"
	"github.com/go-go-golems/concierge/pkg/turns/serde"
)

func NewChatCommand() *cobra.Command {
	opts := renderOptions{}
	transcript := ""

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the shopping agent on stdin",
		Long: "Chat with the shopping agent. Each line read from stdin is sent as one turn. " +
			"Payment mandates proposed by the agent are signed with the configured signer " +
			"and the signature is sent back to the agent.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
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

			client := transport.NewClient(s.TransportConfig())
			log.Info().Str("session_id", client.SessionID()).Str("agent", s.Agent.BaseURL).Msg("starting chat")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var controller *conversation.Controller
			err = runWithRouter(ctx, cmd.OutOrStdout(), opts, func(ctx context.Context, sink events.EventSink) error {
				c, err := newController(s, client, signer, client.SessionID(), sink)
				if err != nil {
					return err
				}
				controller = c
				return repl(ctx, c, cmd)
			})
			if err != nil {
				return err
			}

			if transcript != "" && controller != nil {
				err = serde.SaveTranscriptYAML(transcript, client.SessionID(), controller.Turns(), serde.Options{})
				if err != nil {
					return errors.Wrap(err, "saving transcript")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Markdown, "markdown", "auto", "render replies as markdown (auto, always, never)")
	cmd.Flags().BoolVar(&opts.Details, "details", false, "print mandates and signature results")
	cmd.Flags().BoolVar(&opts.RawEvents, "raw-events", false, "print the raw event stream instead of the conversation")
	cmd.Flags().StringVar(&transcript, "transcript", "", "write the conversation to this YAML file on exit")

	return cmd
}

// lineReader reads one line per call to Next. Nothing reads from the input
// between calls, so a signature prompt on the same terminal gets the line the
// user types while a turn is being processed.
type lineReader struct {
	requests chan struct{}
	lines    chan string
}

func newLineReader(ctx context.Context, r io.Reader) *lineReader {
	lr := &lineReader{
		requests: make(chan struct{}),
		lines:    make(chan string),
	}
	go func() {
		defer close(lr.lines)
		scanner := bufio.NewScanner(r)
		for {
			select {
			case <-ctx.Done():
				return
			case <-lr.requests:
			}
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					log.Debug().Err(err).Msg("reading input failed")
				}
				return
			}
			select {
			case lr.lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lr
}

// Next returns the next input line. ok is false at the end of the input or
// once ctx is done.
func (lr *lineReader) Next(ctx context.Context) (string, bool) {
	select {
	case lr.requests <- struct{}{}:
	case _, ok := <-lr.lines:
		// lines is only ready here once the reader has stopped
		if !ok {
			return "", false
		}
	case <-ctx.Done():
		return "", false
	}
	select {
	case line, ok := <-lr.lines:
		return line, ok
	case <-ctx.Done():
		return "", false
	}
}

func repl(ctx context.Context, c *conversation.Controller, cmd *cobra.Command) error {
	input := newLineReader(ctx, cmd.InOrStdin())

	for {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), "\n> ")
		line, ok := input.Next(ctx)
		if !ok {
			return nil
		}
		line = strings.TrimSpace(line)
		switch line {
		case "/quit", "/exit":
			return nil
		case "/history":
			turns.FprintTurns(cmd.ErrOrStderr(), c.Turns(), turns.WithDetails(true))
			continue
		}
		err := c.Submit(ctx, line)
		switch {
		case errors.Is(err, conversation.ErrEmptyInput):
			continue
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			return err
		}
	}
}
