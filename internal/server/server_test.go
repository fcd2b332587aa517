package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"dropwatch/internal/drops"
	"dropwatch/internal/services/broadcast"
	"dropwatch/internal/upstream"
	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

type fakeResolver struct {
	err error
}

func (f *fakeResolver) ResolveCharacter(_ context.Context, server, name string) (upstream.CharacterProfile, error) {
	if f.err != nil {
		return upstream.CharacterProfile{}, f.err
	}
	return upstream.CharacterProfile{Server: server, Name: name, Level: 70}, nil
}

func newTestServer(t *testing.T, resolver Resolver) (*Server, *watch.Registry, *broadcast.Service) {
	t.Helper()
	registry := watch.NewRegistry(3, nil)
	live := broadcast.New(broadcast.Config{}, nil, logx.Nop())
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	s := New(Config{InitialLookback: 5 * time.Minute}, registry, resolver, live, logx.Nop())
	return s, registry, live
}

func drainEvent() drops.Event {
	return drops.Event{
		Character:  drops.CharacterKey{Server: "luna", Name: "aria"},
		ItemID:     "it-1",
		ItemName:   "Ancient Blade",
		Rarity:     "ancient",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWatchCreateListDelete(t *testing.T) {
	t.Parallel()
	s, registry, _ := newTestServer(t, nil)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/watch", strings.NewReader(`{"server":"luna","name":"aria"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	var created struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || created.Key != "luna/aria" {
		t.Fatalf("create body = %s (err %v)", rec.Body, err)
	}
	if registry.Len() != 1 {
		t.Fatalf("registry len = %d", registry.Len())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/watch", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "luna/aria") {
		t.Fatalf("list = %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/watch/luna/aria", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if registry.Len() != 0 {
		t.Fatal("watch not removed")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/watch/luna/aria", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestWatchCreateRejectsBadInput(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)
	h := s.Handler()

	for _, body := range []string{
		``,
		`{"server":"","name":"aria"}`,
		`{"server":"luna","name":""}`,
		`{"server":"luna","name":"aria","extra":true}`,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/watch", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestWatchCreateUnknownCharacter(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, &fakeResolver{err: upstream.ErrNotFound})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/watch", strings.NewReader(`{"server":"luna","name":"ghost"}`)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestWatchCreateUpstreamDown(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, &fakeResolver{err: errors.New("connection refused")})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/watch", strings.NewReader(`{"server":"luna","name":"aria"}`)))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestWatchCreateCapacity(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)
	h := s.Handler()

	for _, name := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/watch", strings.NewReader(`{"server":"luna","name":"`+name+`"}`)))
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %s = %d", name, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/watch", strings.NewReader(`{"server":"luna","name":"d"}`)))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body)
	}
}

func TestLiveStreamReceivesDrops(t *testing.T) {
	t.Parallel()
	s, _, live := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The hub registers synchronously during the upgrade handler, but give
	// the dial roundtrip a moment to settle.
	deadline := time.Now().Add(2 * time.Second)
	for live.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if live.Count() != 1 {
		t.Fatalf("consumers = %d, want 1", live.Count())
	}

	live.Publish(drainEvent())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string `json:"type"`
		Drop *struct {
			ItemID string `json:"item_id"`
		} `json:"drop"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "drop" || msg.Drop == nil || msg.Drop.ItemID != "it-1" {
		t.Fatalf("frame = %+v", msg)
	}
}

func TestCheckOrigin(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)

	mk := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/live", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	if !s.checkOrigin(mk("https://anywhere.example")) {
		t.Fatal("empty allow-list must accept any origin")
	}

	s.Apply(Config{AllowedOrigins: []string{"app.example.com"}})
	if !s.checkOrigin(mk("https://app.example.com")) {
		t.Fatal("allowed origin rejected")
	}
	if s.checkOrigin(mk("https://evil.example.net")) {
		t.Fatal("foreign origin accepted")
	}
	if !s.checkOrigin(mk("")) {
		t.Fatal("non-browser clients (no Origin) must be accepted")
	}
}
