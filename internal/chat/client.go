// Package chat is a minimal Google Chat REST client: it can look up a space
// member by email and post a message into a space. Both calls authenticate
// with a bearer token minted per run by googleauth.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bugle/pkg/logx"
)

// DefaultBaseURL is the public Google Chat API endpoint.
const DefaultBaseURL = "https://chat.googleapis.com"

type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

type Option func(*Client)

// WithBaseURL overrides the Chat API endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if strings.TrimSpace(u) != "" {
			c.base = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func New(log logx.Logger, opts ...Option) *Client {
	c := &Client{
		base: DefaultBaseURL,
		http: &http.Client{Timeout: 15 * time.Second},
		// Chat API allows 60 writes/min per space; one message per run
		// stays far below that, the limiter just guards reload storms.
		limiter: rate.NewLimiter(rate.Limit(1), 3),
		log:     log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FindMember resolves an email address to a chat user handle ("users/<id>")
// within the given space (a full resource name like "spaces/AAA").
//
// An empty email returns "" without logging: it means "nothing to resolve",
// not a failure. Lookup failures also return "" so that a single unresolvable
// member never aborts a digest run, but those are logged.
func (c *Client) FindMember(ctx context.Context, token, space, email string) string {
	if email == "" {
		return ""
	}

	u := fmt.Sprintf("%s/v1/%s/members/%s", c.base, space, url.PathEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		c.log.Warn("chat member lookup failed", logx.String("email", email), logx.Err(err))
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("chat member lookup failed", logx.String("email", email), logx.Err(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("chat member lookup returned non-success",
			logx.String("email", email), logx.Int("status", resp.StatusCode))
		return ""
	}

	// Membership resource name: "spaces/{space}/members/{member}".
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.Warn("chat member lookup returned bad body", logx.String("email", email), logx.Err(err))
		return ""
	}
	if body.Name == "" {
		return ""
	}
	parts := strings.Split(body.Name, "/")
	return "users/" + parts[len(parts)-1]
}

// CreateMessage posts a message into the space. Unlike member lookups this
// is not degradable: the caller decides what a failed post means.
func (c *Client) CreateMessage(ctx context.Context, token, space string, msg *Message) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chat: limiter: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chat: marshal message: %w", err)
	}

	u := fmt.Sprintf("%s/v1/%s/messages", c.base, space)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("chat: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat: post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chat: message post returned %d", resp.StatusCode)
	}
	return nil
}
