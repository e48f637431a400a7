package transport

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var ErrReplayExhausted = errors.New("no more recorded streams")

// Replay serves recorded event streams in order, one per Run call.
type Replay struct {
	mu      sync.Mutex
	streams []func() (io.ReadCloser, error)
	prompts []string
}

func NewReplay(streams ...string) *Replay {
	r := &Replay{}
	for _, s := range streams {
		s := s
		r.streams = append(r.streams, func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(s)), nil
		})
	}
	return r
}

func NewReplayFromFiles(paths ...string) *Replay {
	r := &Replay{}
	for _, p := range paths {
		p := p
		r.streams = append(r.streams, func() (io.ReadCloser, error) {
			f, err := os.Open(p)
			if err != nil {
				return nil, errors.Wrapf(err, "opening recorded stream %s", p)
			}
			return f, nil
		})
	}
	return r
}

func (r *Replay) CreateSession(context.Context) error {
	return nil
}

func (r *Replay) Run(ctx context.Context, text string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.prompts = append(r.prompts, text)
	if len(r.streams) == 0 {
		r.mu.Unlock()
		return nil, ErrReplayExhausted
	}
	next := r.streams[0]
	r.streams = r.streams[1:]
	r.mu.Unlock()
	return next()
}

// Prompts returns every text passed to Run so far.
func (r *Replay) Prompts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prompts...)
}
