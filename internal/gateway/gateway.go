// ABOUTME: Gateway orchestrator wiring the store, session manager, bot, and HTTP server
// ABOUTME: Owns server lifecycle: boot-time session restore, serving, graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/deliverymaster/delivery-gateway/internal/auth"
	"github.com/deliverymaster/delivery-gateway/internal/bot"
	"github.com/deliverymaster/delivery-gateway/internal/chat"
	"github.com/deliverymaster/delivery-gateway/internal/config"
	"github.com/deliverymaster/delivery-gateway/internal/dedupe"
	"github.com/deliverymaster/delivery-gateway/internal/session"
	"github.com/deliverymaster/delivery-gateway/internal/store"
)

// Gateway orchestrates the delivery-gateway server components.
type Gateway struct {
	config   *config.Config
	store    store.Store
	sessions *session.Manager
	chat     *chat.Service
	verifier *auth.JWTVerifier
	seen     *dedupe.Cache

	httpServer *http.Server
	logger     *slog.Logger
}

// New wires the full component graph from config and an opened store.
// The session manager sends bot replies, and the bot handles the manager's
// inbound messages, so the handler is attached after both exist.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	seen := dedupe.New(cfg.WhatsApp.DedupeTTL, cfg.WhatsApp.DedupeMax)
	dialer := session.NewProviderDialer(cfg.WhatsApp.ProviderURL, cfg.WhatsApp.CredentialsDir, logger)
	sessions := session.NewManager(dialer.Factory(), st, seen, logger)

	engine := bot.New(st, sessions, cfg.WhatsApp.PublicBaseURL, cfg.WhatsApp.HoursText, logger)
	sessions.SetHandler(engine)

	g := &Gateway{
		config:   cfg,
		store:    st,
		sessions: sessions,
		chat:     chat.New(st, sessions, logger),
		verifier: auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		seen:     seen,
		logger:   logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// routes builds the HTTP mux: public health and login endpoints, and the
// JWT-protected WhatsApp API.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("POST /api/auth/login", g.handleLogin)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/whatsapp/status", g.handleStatus)
	api.HandleFunc("POST /api/whatsapp/reset", g.handleReset)
	api.HandleFunc("GET /api/whatsapp/chats", g.handleListChats)
	api.HandleFunc("GET /api/whatsapp/chats/{id}/messages", g.handleListMessages)
	api.HandleFunc("POST /api/whatsapp/chats/{id}/messages", g.handleSendMessage)
	api.HandleFunc("PUT /api/whatsapp/chats/{id}/bot", g.handleSetBotState)
	api.HandleFunc("DELETE /api/whatsapp/messages/{id}", g.handleDeleteMessage)

	mux.Handle("/api/whatsapp/", auth.Middleware(g.verifier)(api))
	return mux
}

// Start restores persisted sessions and serves HTTP until the listener fails
// or Shutdown is called.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.sessions.RestoreAll(ctx); err != nil {
		// Restore is best-effort: tenants can still pair from scratch.
		g.logger.Error("restoring sessions", "error", err)
	}

	g.logger.Info("HTTP server listening", "addr", g.config.Server.HTTPAddr)
	if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and tears down all sessions.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down")

	err := g.httpServer.Shutdown(ctx)
	g.sessions.Close()
	g.seen.Close()
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
