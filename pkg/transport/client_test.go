package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CreateSession(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", AppName: "shop", UserID: "u1", SessionID: "s1"})
	require.NoError(t, c.CreateSession(context.Background()))
	assert.Equal(t, "/apps/shop/users/u1/sessions/s1", gotPath)
	assert.Equal(t, "{}", gotBody)
}

func TestClient_CreateSessionStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "exists", http.StatusConflict)
	}))
	defer srv.Close()

	err := NewClient(Config{BaseURL: srv.URL}).CreateSession(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.StatusCode)
}

func TestClient_Run(t *testing.T) {
	var req RunRequest
	var accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run_sse", r.URL.Path)
		accept = r.Header.Get("Accept")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, AppName: "shop", UserID: "u1", SessionID: "s1"})
	body, err := c.Run(context.Background(), "buy the helmet")
	require.NoError(t, err)
	defer body.Close()
	b, err := io.ReadAll(body)
	require.NoError(t, err)

	assert.Equal(t, "data: [DONE]\n", string(b))
	assert.Equal(t, "text/event-stream", accept)
	assert.Equal(t, RunRequest{
		AppName:   "shop",
		UserID:    "u1",
		SessionID: "s1",
		NewMessage: Content{
			Role:  "user",
			Parts: []Part{{Text: "buy the helmet"}},
		},
	}, req)
}

func TestClient_RunStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Run(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, "Backend Error 502", err.Error())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Body, "boom")
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{})
	assert.NotEmpty(t, c.SessionID())
	assert.NotEqual(t, c.SessionID(), NewClient(Config{}).SessionID())
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "turn.sse")
	require.NoError(t, os.WriteFile(p, []byte("data: [DONE]\n"), 0o600))

	r := NewReplayFromFiles(p)
	body, err := r.Run(context.Background(), "first")
	require.NoError(t, err)
	b, _ := io.ReadAll(body)
	_ = body.Close()
	assert.Equal(t, "data: [DONE]\n", string(b))

	_, err = r.Run(context.Background(), "second")
	require.ErrorIs(t, err, ErrReplayExhausted)
	assert.Equal(t, []string{"first", "second"}, r.Prompts())

	_, err = NewReplayFromFiles(filepath.Join(dir, "missing")).Run(context.Background(), "x")
	require.Error(t, err)
}
