// Package telegram wraps the bot API send path used by the notify sink
// and the logx telegram log sink. This daemon never consumes inbound
// updates, so there is no poller here.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "dropwatch/pkg/logx"
)

type Adapter struct {
	bot *tele.Bot
	log logx.Logger
}

func New(token string, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: nil, // default client
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{bot: b, log: log}, nil
}

// SendText delivers a plain-text message to a chat. Also satisfies
// logx.Sender.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) error {
	if a == nil || a.bot == nil {
		return errors.New("telegram adapter not initialized")
	}
	if chatID == 0 {
		return errors.New("telegram chat id is zero")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// telebot's Send has no context plumbing; honor cancellation around it.
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{DisableWebPagePreview: true})
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	case <-time.After(15 * time.Second):
		return errors.New("telegram send timed out")
	}
}
