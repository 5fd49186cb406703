// Package slack posts block-kit messages through chat.postMessage. Only the
// block shapes the weekly digest renders are modeled.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://slack.com/api"

// Block is one block-kit element.
type Block struct {
	Type string `json:"type"`
	Text *Text  `json:"text,omitempty"`
}

type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Section is shorthand for a mrkdwn section block.
func Section(markdown string) Block {
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: markdown}}
}

// Header is shorthand for a plain-text header block.
func Header(text string) Block {
	return Block{Type: "header", Text: &Text{Type: "plain_text", Text: text, Emoji: true}}
}

// Divider is shorthand for a divider block.
func Divider() Block {
	return Block{Type: "divider"}
}

type Client struct {
	token string
	base  string
	http  *http.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if strings.TrimSpace(u) != "" {
			c.base = strings.TrimRight(u, "/")
		}
	}
}

func New(token string, opts ...Option) *Client {
	c := &Client{
		token: token,
		base:  DefaultBaseURL,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PostMessage sends blocks to a channel. Slack reports application errors
// with HTTP 200 and {"ok": false}, so both layers are checked.
func (c *Client) PostMessage(ctx context.Context, channel string, blocks []Block) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"blocks":  blocks,
	})
	if err != nil {
		return fmt.Errorf("slack: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("slack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack: chat.postMessage returned %d", resp.StatusCode)
	}

	var body struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("slack: decode response: %w", err)
	}
	if !body.OK {
		return fmt.Errorf("slack: chat.postMessage failed: %s", body.Error)
	}
	return nil
}
