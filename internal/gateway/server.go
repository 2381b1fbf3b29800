package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/anna0613/linebot-control-plane/internal/config"
	"github.com/anna0613/linebot-control-plane/internal/orchestrator"
	"github.com/anna0613/linebot-control-plane/internal/store"
)

// TokenVerifier validates the short-lived query-param token presented at
// WebSocket handshake and returns the authenticated user id (spec §4.9
// "Authentication"). Out of core scope (user account management) —
// implementations live in the external collaborator described in §6.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// Server is the gateway's HTTP + WebSocket entrypoint. It owns the
// WebSocket registry (C9) and wires the webhook handler (C10) onto the
// same mux.
type Server struct {
	cfg      *config.Config
	registry *Registry
	bots     store.BotStore
	tokens   TokenVerifier
	orch     *orchestrator.Orchestrator
	checker  LineInfoChecker

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux
	admin      http.Handler
}

// SetAdminHandler wires the optional operator REST surface (gin-based,
// see internal/adminapi) onto "/admin/".
func (s *Server) SetAdminHandler(h http.Handler) { s.admin = h }

// NewServer builds a Server.
func NewServer(cfg *config.Config, registry *Registry, bots store.BotStore, tokens TokenVerifier, orch *orchestrator.Orchestrator) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		bots:     bots,
		tokens:   tokens,
		orch:     orch,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetLineInfoChecker wires the LINE reachability checker used by the
// webhook status endpoint.
func (s *Server) SetLineInfoChecker(c LineInfoChecker) { s.checker = c }

// checkOrigin validates the WebSocket handshake Origin header against the
// allowlist. No config = allow all (dev mode); empty Origin (non-browser
// clients) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// BuildMux wires all HTTP routes onto a fresh mux.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/ws/bot/", s.handleBotSocket)
	mux.HandleFunc("/ws/dashboard/", s.handleDashboardSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/webhooks/", s.handleWebhookRoute)
	if s.admin != nil {
		mux.Handle("/admin/", s.admin)
	}

	s.mux = mux
	return mux
}

// Start begins listening. It returns once the listener is closed.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleWebhookRoute dispatches /api/v1/webhooks/{bot_id} and
// /api/v1/webhooks/{bot_id}/status onto the orchestrator/status handlers.
func (s *Server) handleWebhookRoute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/webhooks/")
	if strings.HasSuffix(rest, "/status") {
		botID := strings.TrimSuffix(rest, "/status")
		s.handleWebhookStatus(w, r, botID)
		return
	}
	botID := rest
	s.handleWebhookPost(w, r, botID)
}

func (s *Server) handleWebhookPost(w http.ResponseWriter, r *http.Request, botID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sig := r.Header.Get("X-Line-Signature")
	status := s.orch.HandleWebhook(r.Context(), botID, r.Body, sig)
	w.WriteHeader(status)
}

// handleBotSocket upgrades /ws/bot/{bot_id} connections (spec §4.9).
func (s *Server) handleBotSocket(w http.ResponseWriter, r *http.Request) {
	botID := strings.TrimPrefix(r.URL.Path, "/ws/bot/")
	if botID == "" {
		http.Error(w, "missing bot id", http.StatusBadRequest)
		return
	}

	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if s.bots != nil {
		owns, err := s.bots.OwnedBy(r.Context(), botID, userID)
		if err != nil || !owns {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	s.upgradeAndServe(w, r, kindBot, botID, userID)
}

// handleDashboardSocket upgrades /ws/dashboard/{user_id} connections.
func (s *Server) handleDashboardSocket(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/ws/dashboard/")
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}
	authedUser, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if authedUser != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	s.upgradeAndServe(w, r, kindDashboard, "", userID)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.tokens == nil {
		return "", true // dev mode: no token verifier wired
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return "", false
	}
	userID, err := s.tokens.Verify(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func (s *Server) upgradeAndServe(w http.ResponseWriter, r *http.Request, kind socketKind, botID, userID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(uuid.NewString(), kind, botID, userID, conn, s.registry)
	s.registry.Register(c)
	defer func() {
		s.registry.Unregister(c)
		conn.Close()
	}()
	c.run()
}
