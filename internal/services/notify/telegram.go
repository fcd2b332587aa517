package notify

import (
	"context"
	"fmt"
	"sync"

	"dropwatch/internal/drops"
	logx "dropwatch/pkg/logx"
)

// Sender delivers a plain-text message to a chat. Satisfied by the
// telegram adapter.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type TelegramConfig struct {
	Enabled bool
	ChatID  int64
}

// Telegram forwards drop summaries to a single chat.
type Telegram struct {
	mu      sync.Mutex
	sender  Sender
	enabled bool
	chatID  int64
	log     logx.Logger
}

func NewTelegram(cfg TelegramConfig, sender Sender, log logx.Logger) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{
		sender:  sender,
		enabled: cfg.Enabled,
		chatID:  cfg.ChatID,
		log:     log,
	}
}

func (t *Telegram) Apply(cfg TelegramConfig, sender Sender) {
	t.mu.Lock()
	t.enabled = cfg.Enabled
	t.chatID = cfg.ChatID
	if sender != nil {
		t.sender = sender
	}
	t.mu.Unlock()
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Deliver(ctx context.Context, ev drops.Event) error {
	t.mu.Lock()
	enabled := t.enabled && t.sender != nil && t.chatID != 0
	sender := t.sender
	chatID := t.chatID
	t.mu.Unlock()

	if !enabled {
		return nil
	}
	if err := sender.SendText(ctx, chatID, Summary(ev)); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}
