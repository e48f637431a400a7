package cmds

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/concierge/pkg/conversation"
	"github.com/go-go-golems/concierge/pkg/events"
	"github.com/go-go-golems/concierge/pkg/transport"
	"github.com/go-go-golems/concierge/pkg/turns"
	"github.com/go-go-golems/concierge/pkg/turns/serde"
)

func NewReplayCommand() *cobra.Command {
	opts := renderOptions{Markdown: "never"}
	prompt := ""
	output := "text"
	showHidden := false

	cmd := &cobra.Command{
		Use:   "replay <stream.sse>...",
		Short: "Run captured agent streams through the conversation controller",
		Long: "Each file holds one captured server-sent event stream. The first file answers " +
			"the prompt; every further file answers the hidden turn sent after a signature.",
		Args: cobra.MinimumNArgs(1),
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

			replay := transport.NewReplayFromFiles(args...)
			sessionID := "replay-" + uuid.NewString()

			var ts []*turns.Turn
			run := func(ctx context.Context, sink events.EventSink) error {
				c, err := newController(s, replay, signer, sessionID, sink)
				if err != nil {
					return err
				}
				if err := c.Submit(ctx, prompt); err != nil {
					return err
				}
				ts = c.Turns()
				return nil
			}

			if output == "turns" {
				if err := run(cmd.Context(), events.SinkFunc(func(events.Event) error { return nil })); err != nil {
					return err
				}
				turns.FprintTurns(cmd.OutOrStdout(), ts,
					turns.WithHidden(showHidden),
					turns.WithDetails(opts.Details),
				)
				return nil
			}

			if output == "yaml" {
				if err := run(cmd.Context(), events.SinkFunc(func(events.Event) error { return nil })); err != nil {
					return err
				}
				b, err := serde.ToYAML(sessionID, ts, serde.Options{OmitHidden: !showHidden})
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}

			if err := runWithRouter(cmd.Context(), cmd.OutOrStdout(), opts, run); err != nil {
				return err
			}
			if len(replay.Prompts()) < len(args) {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "\n%d of %d streams were not used\n", len(args)-len(replay.Prompts()), len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "replay", "user turn answered by the first stream")
	cmd.Flags().StringVar(&output, "output", output, "output format (text, turns, yaml)")
	cmd.Flags().BoolVar(&showHidden, "show-hidden", false, "include hidden turns in turns and yaml output")
	cmd.Flags().BoolVar(&opts.Details, "details", true, "print mandates and signature results")
	cmd.Flags().BoolVar(&opts.RawEvents, "raw-events", false, "print the raw event stream")

	return cmd
}

var _ conversation.Transport = (*transport.Replay)(nil)
