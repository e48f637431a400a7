package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultAppName = "shopping_concierge"
	DefaultUserID  = "user"
)

// Config addresses one agent session.
type Config struct {
	BaseURL   string
	AppName   string
	UserID    string
	SessionID string
	// Timeout bounds session creation. Streams are bounded by the caller's context only.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// StatusError is returned when the agent answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Backend Error %d", e.StatusCode)
}

type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type RunRequest struct {
	AppName    string  `json:"app_name"`
	UserID     string  `json:"user_id"`
	SessionID  string  `json:"session_id"`
	NewMessage Content `json:"new_message"`
}

// Client talks to the agent's HTTP API.
type Client struct {
	httpClient *http.Client
	config     Config
}

func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.UserID == "" {
		config.UserID = DefaultUserID
	}
	if config.SessionID == "" {
		config.SessionID = "session-" + uuid.NewString()
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		config:     config,
	}
}

func (c *Client) SessionID() string {
	return c.config.SessionID
}

// CreateSession registers the session with the agent. Creating an existing
// session again is harmless.
func (c *Client) CreateSession(ctx context.Context) error {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	u := fmt.Sprintf("%s/apps/%s/users/%s/sessions/%s",
		c.config.BaseURL,
		url.PathEscape(c.config.AppName),
		url.PathEscape(c.config.UserID),
		url.PathEscape(c.config.SessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewBufferString("{}"))
	if err != nil {
		return errors.Wrap(err, "building session request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Run submits text as a user message and returns the event stream body.
// The caller must close it.
func (c *Client) Run(ctx context.Context, text string) (io.ReadCloser, error) {
	body, err := json.Marshal(RunRequest{
		AppName:   c.config.AppName,
		UserID:    c.config.UserID,
		SessionID: c.config.SessionID,
		NewMessage: Content{
			Role:  "user",
			Parts: []Part{{Text: text}},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/run_sse", bytes.NewBuffer(body))
	if err != nil {
		return nil, errors.Wrap(err, "building run request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "running agent")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		return nil, statusError(resp)
	}

	log.Debug().
		Str("session_id", c.config.SessionID).
		Int("status", resp.StatusCode).
		Msg("agent stream opened")
	return resp.Body, nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
}
