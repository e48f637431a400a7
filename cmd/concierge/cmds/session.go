package cmds

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/concierge/pkg/conversation"
	"github.com/go-go-golems/concierge/pkg/events"
	"github.com/go-go-golems/concierge/pkg/settings"
	"github.com/go-go-golems/concierge/pkg/signing"
)

type renderOptions struct {
	// Markdown is auto, always or never.
	Markdown  string
	Details   bool
	RawEvents bool
}

func (o renderOptions) printerOptions() events.PrinterOptions {
	markdown := false
	switch o.Markdown {
	case "always":
		markdown = true
	case "never":
		markdown = false
	default:
		markdown = isatty.IsTerminal(os.Stdout.Fd())
	}
	return events.PrinterOptions{Markdown: markdown, Details: o.Details}
}

// buildSigner creates the configured signer, prompting on prompt. A missing
// key is not fatal: mandates then fail to sign with a visible message.
func buildSigner(s *settings.Settings, prompt io.ReadWriter) (signing.Signer, error) {
	signer, err := s.NewSigner(prompt, prompt)
	if err != nil {
		if errors.Is(err, signing.ErrNoProvider) {
			log.Warn().Err(err).Msg("no signer available, payment mandates cannot be signed")
			return nil, nil
		}
		return nil, err
	}
	return signer, nil
}

// runWithRouter runs fn while an event router renders the conversation to w.
// The router is closed once fn returns.
func runWithRouter(
	ctx context.Context,
	w io.Writer,
	opts renderOptions,
	fn func(ctx context.Context, sink events.EventSink) error,
) error {
	router, err := events.NewEventRouter(events.WithVerbose(opts.Details))
	if err != nil {
		return errors.Wrap(err, "creating event router")
	}

	if opts.RawEvents {
		router.AddHandler("raw", events.DefaultTopic, router.RawEventDumper(w))
	} else {
		router.AddHandler("printer", events.DefaultTopic, events.TurnPrinterFunc("", w, opts.printerOptions()))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer func() {
			_ = router.Close()
		}()
		defer cancel()

		select {
		case <-router.Running():
		case <-ctx.Done():
			return ctx.Err()
		}
		return fn(ctx, router.Sink(events.DefaultTopic))
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newController(
	s *settings.Settings,
	transport conversation.Transport,
	signer signing.Signer,
	sessionID string,
	sink events.EventSink,
) (*conversation.Controller, error) {
	registry, err := s.Registry()
	if err != nil {
		return nil, err
	}
	return conversation.NewController(transport, signer,
		conversation.WithRegistry(registry),
		conversation.WithSessionID(sessionID),
		conversation.WithEventSinks(sink),
	)
}
