// Package server exposes the management API and the live websocket
// endpoint. The surface is intentionally small: subscribe, list,
// unsubscribe, stream, health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dropwatch/internal/drops"
	"dropwatch/internal/services/broadcast"
	"dropwatch/internal/upstream"
	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

const (
	defaultAddr     = ":8080"
	shutdownTimeout = 5 * time.Second
)

type Config struct {
	Addr            string
	InitialLookback time.Duration
	AllowedOrigins  []string
}

// Resolver verifies a character exists upstream before a watch is
// accepted.
type Resolver interface {
	ResolveCharacter(ctx context.Context, server, name string) (upstream.CharacterProfile, error)
}

type Server struct {
	mu sync.Mutex

	cfg      Config
	registry *watch.Registry
	resolver Resolver
	live     *broadcast.Service
	log      logx.Logger

	upgrader websocket.Upgrader
	srv      *http.Server
}

func New(cfg Config, registry *watch.Registry, resolver Resolver, live *broadcast.Service, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		resolver: resolver,
		live:     live,
		log:      log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Apply(cfg Config) {
	s.mu.Lock()
	if cfg.InitialLookback > 0 {
		s.cfg.InitialLookback = cfg.InitialLookback
	}
	s.cfg.AllowedOrigins = cfg.AllowedOrigins
	s.mu.Unlock()
}

// Handler builds the route table. Split out from Start so tests can
// exercise the routes without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/watch", s.handleWatchCreate)
	mux.HandleFunc("GET /api/watch", s.handleWatchList)
	mux.HandleFunc("DELETE /api/watch/{server}/{name}", s.handleWatchDelete)
	mux.HandleFunc("GET /api/live", s.handleLive)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server exited", logx.Err(err))
		}
	}()
	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if s.srv == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		_ = s.srv.Close()
	}
}

type watchRequest struct {
	Server string `json:"server"`
	Name   string `json:"name"`
}

type watchResponse struct {
	Key         string    `json:"key"`
	LastChecked time.Time `json:"last_checked"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) handleWatchCreate(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Server = strings.TrimSpace(req.Server)
	req.Name = strings.TrimSpace(req.Name)
	if req.Server == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "server and name are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	profile, err := s.resolver.ResolveCharacter(ctx, req.Server, req.Name)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			writeError(w, http.StatusNotFound, "character not found")
			return
		}
		s.log.Warn("character resolve failed", logx.String("name", req.Name), logx.Err(err))
		writeError(w, http.StatusBadGateway, "upstream lookup failed")
		return
	}

	key := drops.CharacterKey{Server: profile.Server, Name: profile.Name}
	s.mu.Lock()
	lookback := s.cfg.InitialLookback
	s.mu.Unlock()

	sub, err := s.registry.Upsert(key, lookback)
	if err != nil {
		if errors.Is(err, watch.ErrRegistryFull) {
			writeError(w, http.StatusTooManyRequests, "subscription limit reached")
			return
		}
		writeError(w, http.StatusInternalServerError, "subscription failed")
		return
	}
	writeJSON(w, http.StatusCreated, toWatchResponse(sub))
}

func (s *Server) handleWatchList(w http.ResponseWriter, r *http.Request) {
	subs := s.registry.List()
	out := make([]watchResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toWatchResponse(sub))
	}
	writeJSON(w, http.StatusOK, map[string]any{"watches": out})
}

func (s *Server) handleWatchDelete(w http.ResponseWriter, r *http.Request) {
	key := drops.CharacterKey{
		Server: strings.TrimSpace(r.PathValue("server")),
		Name:   strings.TrimSpace(r.PathValue("name")),
	}
	if key.Server == "" || key.Name == "" {
		writeError(w, http.StatusBadRequest, "server and name are required")
		return
	}
	if !s.registry.Remove(key) {
		writeError(w, http.StatusNotFound, "watch not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", logx.Err(err))
		return
	}
	id := s.live.Register(conn)
	s.log.Debug("live consumer connected", logx.String("consumer", id))

	// Read pump: we never expect client frames, but reading is what
	// surfaces close and error states.
	go func() {
		defer s.live.Unregister(id)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"watches":   s.registry.Len(),
		"consumers": s.live.Count(),
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	s.mu.Lock()
	allowed := s.cfg.AllowedOrigins
	s.mu.Unlock()

	origin := r.Header.Get("Origin")
	if origin == "" || len(allowed) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, u.Host) || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func toWatchResponse(sub watch.Subscription) watchResponse {
	return watchResponse{
		Key:         sub.Key.String(),
		LastChecked: sub.LastChecked,
		CreatedAt:   sub.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
