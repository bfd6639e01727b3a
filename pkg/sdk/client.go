// Package sdk provides the client-side library for talking to the
// companion chat gateway over HTTP.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-companion/pkg/schema"
)

// ClientKeyHeader mirrors the header the gateway reads the client key from.
const ClientKeyHeader = "X-Client-Key"

const maxAttempts = 3

// Client is a remote client for the chat gateway.
// It implements the Companion interface.
type Client struct {
	base    *url.URL
	http    *http.Client
	backoff time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBackoff sets the base delay between retries.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// Connect returns a client for the gateway at addr. A bare host:port is
// treated as plain HTTP.
func Connect(addr string, opts ...Option) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(strings.TrimRight(addr, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway address %q: %w", addr, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid gateway address %q: missing host", addr)
	}

	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 30 * time.Second},
		backoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do sends one request, retrying transport failures and 5xx responses.
// 4xx responses are returned at once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, clientKey string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	var err error
	for i := 0; i < maxAttempts; i++ {
		var retry bool
		retry, err = c.attempt(ctx, method, u.String(), clientKey, payload, out)
		if err == nil || !retry {
			return err
		}

		fmt.Fprintf(os.Stderr, "[Companion SDK] Attempt %d failed: %v. Retrying...\n", i+1, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * c.backoff):
		}
	}

	return fmt.Errorf("failed after %d attempts. last error: %w", maxAttempts, err)
}

func (c *Client) attempt(ctx context.Context, method, target, clientKey string, payload []byte, out any) (bool, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return false, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if clientKey != "" {
		req.Header.Set(ClientKeyHeader, clientKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return false, fmt.Errorf("%w: %s", ErrRateLimited, errorText(raw))
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, errorText(raw))
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("%w: %s", ErrRejected, errorText(raw))
	}

	if out == nil {
		return false, nil
	}
	return false, json.Unmarshal(raw, out)
}

func errorText(raw []byte) string {
	var e schema.ErrorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) Chat(ctx context.Context, req schema.ChatRequest) (schema.ChatResponse, error) {
	var out schema.ChatResponse
	err := c.do(ctx, http.MethodPost, "/chat", nil, req.ClientKey, req, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context, clientKey, personaID string) (schema.StatusResponse, error) {
	q := url.Values{}
	q.Set("clientKey", clientKey)
	if personaID != "" {
		q.Set("character", personaID)
	}
	var out schema.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", q, clientKey, nil, &out)
	return out, err
}

func (c *Client) Personas(ctx context.Context) ([]schema.PersonaSummary, error) {
	var out []schema.PersonaSummary
	err := c.do(ctx, http.MethodGet, "/api/personas", nil, "", nil, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, "", nil, nil)
}

// --- Session Scope ---

// Session returns a scoped client for one client key and persona.
func (c *Client) Session(clientKey, personaID string) *Session {
	return &Session{client: c, clientKey: clientKey, personaID: personaID}
}

// Session is a scoped client that "remembers" its client key and persona.
// It keeps the conversation locally so the gateway sees recent turns even
// after a restart.
type Session struct {
	client    *Client
	clientKey string
	personaID string
	turns     []schema.Turn
	// Keep bounds the locally kept turns. Zero keeps 20.
	Keep int
}

// Send delivers one message and records the exchange when a reply came back.
func (s *Session) Send(ctx context.Context, message string) (schema.ChatResponse, error) {
	resp, err := s.client.Chat(ctx, schema.ChatRequest{
		Message:   message,
		Character: s.personaID,
		ClientKey: s.clientKey,
		History:   s.History(),
	})
	if err != nil {
		return resp, err
	}
	if resp.Reply != "" {
		s.turns = append(s.turns,
			schema.Turn{Role: "user", Content: message},
			schema.Turn{Role: "assistant", Content: resp.Reply},
		)
		keep := s.Keep
		if keep <= 0 {
			keep = 20
		}
		if len(s.turns) > keep {
			s.turns = s.turns[len(s.turns)-keep:]
		}
	}
	return resp, nil
}

// Status reads the scoped conversation's state.
func (s *Session) Status(ctx context.Context) (schema.StatusResponse, error) {
	return s.client.Status(ctx, s.clientKey, s.personaID)
}

// History returns a copy of the locally kept turns.
func (s *Session) History() []schema.Turn {
	if len(s.turns) == 0 {
		return nil
	}
	out := make([]schema.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}
