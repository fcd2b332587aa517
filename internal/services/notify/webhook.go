// Package notify implements the best-effort outbound sinks: a webhook
// POST and an optional Telegram chat message. One attempt per event per
// sink; no retry, no queue. Failures are the caller's to log and never
// abort a detection cycle.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"dropwatch/internal/drops"
	logx "dropwatch/pkg/logx"
)

const defaultWebhookTimeout = 8 * time.Second

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// Webhook posts detected drops to a configured endpoint.
// An empty URL disables the sink: Deliver becomes a no-op.
type Webhook struct {
	mu   sync.Mutex
	url  string
	http *http.Client
	log  logx.Logger
}

type webhookPayload struct {
	Text      string      `json:"text"`
	Event     drops.Event `json:"event"`
	DedupeKey string      `json:"dedupe_key"`
}

func NewWebhook(cfg WebhookConfig, log logx.Logger) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Webhook{
		url:  strings.TrimSpace(cfg.URL),
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

func (w *Webhook) Apply(cfg WebhookConfig) {
	w.mu.Lock()
	w.url = strings.TrimSpace(cfg.URL)
	if cfg.Timeout > 0 {
		w.http.Timeout = cfg.Timeout
	}
	w.mu.Unlock()
}

func (w *Webhook) Name() string { return "webhook" }

// Deliver performs the single delivery attempt.
func (w *Webhook) Deliver(ctx context.Context, ev drops.Event) error {
	w.mu.Lock()
	url := w.url
	client := w.http
	w.mu.Unlock()

	if url == "" {
		return nil
	}

	body, err := json.Marshal(webhookPayload{Text: Summary(ev), Event: ev, DedupeKey: ev.DedupeKey()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	w.log.Debug("webhook delivered", logx.String("item", ev.ItemID))
	return nil
}

// Summary renders the human-readable line included with every sink
// delivery.
func Summary(ev drops.Event) string {
	name := ev.ItemName
	if name == "" {
		name = ev.ItemID
	}
	return fmt.Sprintf("🎉 %s looted %s (%s) at %s",
		ev.Character, name, ev.Rarity, ev.OccurredAt.UTC().Format(time.RFC3339))
}
