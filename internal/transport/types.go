// Package transport defines the platform-neutral types for the operator
// alert channel. The digest payloads themselves go straight to the chat and
// Slack sinks; this channel only carries ops-level messages (log forwarding,
// run failures).
package transport

import "context"

// ChatTarget addresses a chat, optionally a specific thread/topic inside it.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// SendOptions tweaks outgoing message rendering.
type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers plain-text messages to a chat target.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}
