// Package telegram implements the transport.Sender port on top of telebot.
//
// The adapter is send-only: bugle never polls for updates, it only pushes
// operator alerts into a group. Construction validates the token with a
// getMe call through telebot.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"bugle/internal/transport"
)

type Config struct {
	Token string
	// Timeout bounds each outgoing API call.
	Timeout time.Duration
}

type Adapter struct {
	bot *tele.Bot
}

var _ transport.Sender = (*Adapter)(nil)

func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{bot: b}, nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	if to.ChatID == 0 {
		return errors.New("telegram: chat id is zero")
	}
	opts := &tele.SendOptions{}
	if opt != nil {
		opts.ParseMode = opt.ParseMode
		opts.DisableWebPagePreview = opt.DisablePreview
	}
	if to.ThreadID != 0 {
		opts.ThreadID = to.ThreadID
	}

	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Send(tele.ChatID(to.ChatID), text, opts)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
