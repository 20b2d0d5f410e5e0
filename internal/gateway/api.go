// ABOUTME: HTTP API handlers for operator login and the WhatsApp chat UI
// ABOUTME: JSON endpoints for status polling, reset, conversations, and messages

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/deliverymaster/delivery-gateway/internal/auth"
	"github.com/deliverymaster/delivery-gateway/internal/chat"
	"github.com/deliverymaster/delivery-gateway/internal/session"
	"github.com/deliverymaster/delivery-gateway/internal/store"
)

// LoginRequest is the JSON request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	Token  string         `json:"token"`
	Tenant TenantResponse `json:"tenant"`
}

// TenantResponse is the public view of a tenant record.
type TenantResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// StatusResponse is the JSON response for GET /api/whatsapp/status.
// The qrCode field carries the pairing image as a data URL while pairing.
type StatusResponse struct {
	Status string  `json:"status"`
	QRCode *string `json:"qrCode"`
}

// ConversationResponse is the JSON view of a conversation.
type ConversationResponse struct {
	ID            string `json:"id"`
	RemoteJID     string `json:"remoteJid"`
	ContactName   string `json:"contactName"`
	BotStatus     string `json:"botStatus"`
	LastMessageAt string `json:"lastMessageAt"`
}

// MessageResponse is the JSON view of a message.
type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"chatId"`
	Body           string `json:"body"`
	FromMe         bool   `json:"fromMe"`
	Timestamp      string `json:"timestamp"`
}

// SendMessageRequest is the JSON request body for posting an operator message.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// SetBotStateRequest is the JSON request body for updating a conversation's bot state.
type SetBotStateRequest struct {
	State string `json:"state"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	tenant, err := g.store.GetTenantByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response as a wrong password so accounts can't be enumerated
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := auth.CheckPassword(tenant.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := g.verifier.Generate(tenant.ID, g.config.Auth.TokenTTL)
	if err != nil {
		g.logger.Error("generating token", "tenant_id", tenant.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token: token,
		Tenant: TenantResponse{
			ID:    tenant.ID,
			Name:  tenant.Name,
			Email: tenant.Email,
		},
	})
}

// handleStatus reports the tenant's connection state. Per the dashboard's
// polling contract it also ensures a session exists, so the first poll after
// login kicks off the pairing flow.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	g.sessions.Initialize(r.Context(), tenantID)

	st := g.sessions.Status(tenantID)
	resp := StatusResponse{Status: st.State}
	if st.PairingArtifact != "" {
		resp.QRCode = &st.PairingArtifact
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleReset(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	g.logger.Info("session reset requested", "tenant_id", tenantID)

	g.sessions.Reset(r.Context(), tenantID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Session reset initiated",
	})
}

func (g *Gateway) handleListChats(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	convs, err := g.chat.ListConversations(r.Context(), tenantID)
	if err != nil {
		g.logger.Error("listing conversations", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch chats")
		return
	}

	resp := make([]ConversationResponse, 0, len(convs))
	for _, c := range convs {
		resp = append(resp, ConversationResponse{
			ID:            c.ID,
			RemoteJID:     c.RemoteJID,
			ContactName:   c.ContactName,
			BotStatus:     c.BotState,
			LastMessageAt: c.LastMessageAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	conversationID := r.PathValue("id")

	msgs, err := g.chat.ListMessages(r.Context(), tenantID, conversationID)
	if err != nil {
		writeChatError(w, g.logger, "listing messages", err)
		return
	}

	resp := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	conversationID := r.PathValue("id")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	msg, err := g.chat.SendMessage(r.Context(), tenantID, conversationID, req.Message)
	if err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			writeError(w, http.StatusInternalServerError, "whatsapp session not connected")
			return
		}
		writeChatError(w, g.logger, "sending message", err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse(msg))
}

func (g *Gateway) handleSetBotState(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	conversationID := r.PathValue("id")

	var req SetBotStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.State {
	case store.BotStateActive, store.BotStatePaused, store.BotStateCompleted:
	default:
		writeError(w, http.StatusBadRequest, "invalid bot state")
		return
	}

	if err := g.chat.SetBotState(r.Context(), tenantID, conversationID, req.State); err != nil {
		writeChatError(w, g.logger, "setting bot state", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (g *Gateway) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	messageID := r.PathValue("id")

	if err := g.chat.DeleteMessage(r.Context(), tenantID, messageID); err != nil {
		writeChatError(w, g.logger, "deleting message", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Body:           m.Body,
		FromMe:         m.FromMe,
		Timestamp:      m.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// writeChatError maps chat service errors to HTTP responses.
func writeChatError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrConversationNotOwned):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
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
