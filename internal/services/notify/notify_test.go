package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dropwatch/internal/drops"
	logx "dropwatch/pkg/logx"
)

func testEvent() drops.Event {
	return drops.Event{
		Character:  drops.CharacterKey{Server: "luna", Name: "aria"},
		ItemID:     "it-1",
		ItemName:   "Ancient Blade",
		Rarity:     "ancient",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWebhookDeliverPostsOnce(t *testing.T) {
	t.Parallel()

	var calls int
	var body []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		body, _ = io.ReadAll(r.Body)
	}))
	defer ts.Close()

	wh := NewWebhook(WebhookConfig{URL: ts.URL}, logx.Nop())
	if err := wh.Deliver(t.Context(), testEvent()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want exactly one POST", calls)
	}

	var payload struct {
		Text      string      `json:"text"`
		Event     drops.Event `json:"event"`
		DedupeKey string      `json:"dedupe_key"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Event.ItemID != "it-1" || payload.Event.Character.String() != "luna/aria" {
		t.Fatalf("event payload = %+v", payload.Event)
	}
	if want := testEvent().DedupeKey(); payload.DedupeKey != want {
		t.Fatalf("dedupe key = %q, want %q", payload.DedupeKey, want)
	}
	if !strings.Contains(payload.Text, "Ancient Blade") || !strings.Contains(payload.Text, "luna/aria") {
		t.Fatalf("summary = %q", payload.Text)
	}
}

func TestWebhookDeliverNoRetryOnFailure(t *testing.T) {
	t.Parallel()

	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	wh := NewWebhook(WebhookConfig{URL: ts.URL}, logx.Nop())
	if err := wh.Deliver(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error on 500")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry)", calls)
	}
}

func TestWebhookUnconfiguredIsNoop(t *testing.T) {
	t.Parallel()
	wh := NewWebhook(WebhookConfig{}, logx.Nop())
	if err := wh.Deliver(t.Context(), testEvent()); err != nil {
		t.Fatalf("unconfigured Deliver: %v", err)
	}
}

type fakeSender struct {
	chatIDs []int64
	texts   []string
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string) error {
	f.chatIDs = append(f.chatIDs, chatID)
	f.texts = append(f.texts, text)
	return nil
}

func TestTelegramDeliver(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	tg := NewTelegram(TelegramConfig{Enabled: true, ChatID: 42}, sender, logx.Nop())

	if err := tg.Deliver(t.Context(), testEvent()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(sender.texts) != 1 || sender.chatIDs[0] != 42 {
		t.Fatalf("sends = %v to %v", sender.texts, sender.chatIDs)
	}
	if !strings.Contains(sender.texts[0], "Ancient Blade") {
		t.Fatalf("message = %q", sender.texts[0])
	}
}

func TestTelegramDisabledIsNoop(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}

	for _, tg := range []*Telegram{
		NewTelegram(TelegramConfig{Enabled: false, ChatID: 42}, sender, logx.Nop()),
		NewTelegram(TelegramConfig{Enabled: true, ChatID: 0}, sender, logx.Nop()),
		NewTelegram(TelegramConfig{Enabled: true, ChatID: 42}, nil, logx.Nop()),
	} {
		if err := tg.Deliver(t.Context(), testEvent()); err != nil {
			t.Fatalf("disabled Deliver: %v", err)
		}
	}
	if len(sender.texts) != 0 {
		t.Fatalf("sends = %v, want none", sender.texts)
	}
}

func TestSummaryFallsBackToItemID(t *testing.T) {
	t.Parallel()
	ev := testEvent()
	ev.ItemName = ""
	if s := Summary(ev); !strings.Contains(s, "it-1") {
		t.Fatalf("summary = %q, want item id fallback", s)
	}
}
