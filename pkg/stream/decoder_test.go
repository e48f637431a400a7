package stream

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "data: {\"content\":{\"parts\":[{\"text\":\"Hello \"}]}}\n\n" +
	"event: message\n" +
	"data: {\"content\":{\"parts\":[{\"text\":\"wörld 🚀\"}]}}\r\n" +
	"data: {not json\n" +
	": keep-alive\n" +
	"data: {\"content\":{\"parts\":[{\"text\":\"thinking\",\"thought\":true},{\"text\":\"!\"}]}}\n" +
	"data: [DONE]\n"

func decodeAll(chunks [][]byte) []Event {
	d := NewDecoder()
	var out []Event
	for _, c := range chunks {
		out = append(out, d.Feed(c)...)
	}
	return append(out, d.Flush()...)
}

func TestDecoder_SingleChunk(t *testing.T) {
	evs := decodeAll([][]byte{[]byte(sampleStream)})
	require.Len(t, evs, 5)
	assert.Equal(t, KindToken, evs[0].Kind)
	assert.Equal(t, "Hello ", TokenText(evs[0]))
	assert.Equal(t, "wörld 🚀", TokenText(evs[1]))
	assert.Equal(t, KindMalformed, evs[2].Kind)
	assert.Equal(t, "{not json", evs[2].Raw)
	assert.Equal(t, "!", TokenText(evs[3]))
	assert.Equal(t, KindEnd, evs[4].Kind)
}

func TestDecoder_ChunkingInvariance(t *testing.T) {
	b := []byte(sampleStream)
	reference := decodeAll([][]byte{b})

	// every single split point
	for i := 0; i <= len(b); i++ {
		got := decodeAll([][]byte{b[:i], b[i:]})
		require.Equal(t, reference, got, "split at %d", i)
	}

	// fixed-size chunkings, including one byte at a time
	for size := 1; size <= 17; size++ {
		var chunks [][]byte
		for i := 0; i < len(b); i += size {
			end := i + size
			if end > len(b) {
				end = len(b)
			}
			chunks = append(chunks, b[i:end])
		}
		require.Equal(t, reference, decodeAll(chunks), "chunk size %d", size)
	}
}

func TestDecoder_FlushTrailingLine(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Feed([]byte("data: [DONE]")))
	evs := d.Flush()
	require.Len(t, evs, 1)
	assert.Equal(t, KindEnd, evs[0].Kind)
	assert.Empty(t, d.Flush())
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Feed([]byte("data: {\"content\":")))
	d.Reset()
	evs := d.Feed([]byte("data: [DONE]\n"))
	require.Len(t, evs, 1)
	assert.Equal(t, KindEnd, evs[0].Kind)
}

func TestDecoder_NoSpaceAfterPrefix(t *testing.T) {
	evs := decodeAll([][]byte{[]byte("data:{\"content\":{\"parts\":[{\"text\":\"x\"}]}}\n")})
	require.Len(t, evs, 1)
	assert.Equal(t, "x", TokenText(evs[0]))
}

type trickleReader struct {
	data []byte
}

func (r *trickleReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := 3
	if n > len(r.data) {
		n = len(r.data)
	}
	n = copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestRead_StopsOnEnd(t *testing.T) {
	var texts []string
	var kinds []Kind
	err := Read(context.Background(), &trickleReader{data: []byte(sampleStream + "data: {\"content\":{\"parts\":[{\"text\":\"after\"}]}}\n")}, NewDecoder(), func(ev Event) error {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == KindEnd {
			return ErrStop
		}
		texts = append(texts, TokenText(ev))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindToken, KindToken, KindMalformed, KindToken, KindEnd}, kinds)
	assert.Equal(t, "Hello wörld 🚀!", strings.Join(texts, ""))
}

func TestRead_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Read(ctx, strings.NewReader(sampleStream), NewDecoder(), func(Event) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
