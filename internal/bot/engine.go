// ABOUTME: Dialogue engine running the per-conversation bot state machine
// ABOUTME: Persists inbound messages and auto-responds while the conversation is ACTIVE

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deliverymaster/delivery-gateway/internal/session"
	"github.com/deliverymaster/delivery-gateway/internal/store"
)

// ConversationStore defines what the engine needs from persistence.
type ConversationStore interface {
	GetConversationByRemoteJID(ctx context.Context, tenantID, remoteJID string) (*store.Conversation, error)
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	TouchConversation(ctx context.Context, id string, at time.Time) error
	SetBotState(ctx context.Context, id, state string) error
	AppendMessage(ctx context.Context, msg *store.Message) error
}

// Sender delivers outbound messages through a tenant's connection.
type Sender interface {
	Send(ctx context.Context, tenantID, remoteJID, body string) error
}

// Engine is the per-conversation dialogue state machine. Conversations start
// ACTIVE (bot replies), move to PAUSED when a human takes over, and may be
// marked COMPLETED by an operator; the engine itself never sets COMPLETED.
type Engine struct {
	store         ConversationStore
	sender        Sender
	publicBaseURL string
	hoursText     string
	logger        *slog.Logger
}

// New creates a dialogue engine.
func New(store ConversationStore, sender Sender, publicBaseURL, hoursText string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:         store,
		sender:        sender,
		publicBaseURL: publicBaseURL,
		hoursText:     hoursText,
		logger:        logger.With("component", "bot"),
	}
}

// HandleInbound runs the state machine once for an inbound message.
// The message is always persisted, whatever the bot state; a reply is
// produced only while the conversation is ACTIVE.
func (e *Engine) HandleInbound(ctx context.Context, tenantID string, msg *session.InboundMessage) error {
	conv, err := e.ensureConversation(ctx, tenantID, msg)
	if err != nil {
		return fmt.Errorf("resolving conversation: %w", err)
	}

	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	inbound := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Body:           msg.Body,
		FromMe:         false,
		Timestamp:      at,
	}
	if err := e.store.AppendMessage(ctx, inbound); err != nil {
		return fmt.Errorf("recording inbound message: %w", err)
	}
	if err := e.store.TouchConversation(ctx, conv.ID, at); err != nil {
		e.logger.Error("touching conversation", "conversation_id", conv.ID, "error", err)
	}

	if conv.BotState != store.BotStateActive {
		// Human operator has the conversation; persist only.
		return nil
	}

	intent := Classify(msg.Body)
	response := e.respond(intent, conv)

	if intent == IntentHandoff {
		if err := e.store.SetBotState(ctx, conv.ID, store.BotStatePaused); err != nil {
			e.logger.Error("pausing conversation", "conversation_id", conv.ID, "error", err)
		}
	}

	if err := e.sender.Send(ctx, tenantID, conv.RemoteJID, response); err != nil {
		return fmt.Errorf("sending bot reply: %w", err)
	}

	outbound := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Body:           response,
		FromMe:         true,
		Timestamp:      time.Now(),
	}
	if err := e.store.AppendMessage(ctx, outbound); err != nil {
		return fmt.Errorf("recording bot reply: %w", err)
	}

	e.logger.Debug("bot replied",
		"tenant_id", tenantID,
		"conversation_id", conv.ID,
		"intent", intent,
	)
	return nil
}

// ensureConversation resolves or creates the conversation for the contact.
// New conversations start ACTIVE with the contact's display name, falling back
// to the local part of the messaging address.
func (e *Engine) ensureConversation(ctx context.Context, tenantID string, msg *session.InboundMessage) (*store.Conversation, error) {
	conv, err := e.store.GetConversationByRemoteJID(ctx, tenantID, msg.RemoteJID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	name := msg.SenderName
	if name == "" {
		name = contactLabel(msg.RemoteJID)
	}

	now := time.Now()
	conv = &store.Conversation{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		RemoteJID:     msg.RemoteJID,
		ContactName:   name,
		BotState:      store.BotStateActive,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := e.store.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, store.ErrDuplicateConversation) {
			// Lost the race to a concurrent message from the same contact
			return e.store.GetConversationByRemoteJID(ctx, tenantID, msg.RemoteJID)
		}
		return nil, err
	}
	return conv, nil
}

// respond builds the reply text for a classified intent.
func (e *Engine) respond(intent Intent, conv *store.Conversation) string {
	switch intent {
	case IntentGreeting:
		return fmt.Sprintf("👋 Olá, *%s*! Bem-vindo(a) ao atendimento automático.\n\n"+
			"Escolha uma opção:\n\n"+
			"1️⃣ *Ver Cardápio Digital*\n"+
			"2️⃣ *Falar com Atendente*\n"+
			"3️⃣ *Saber Horários*", conv.ContactName)
	case IntentCatalog:
		return fmt.Sprintf("🍔 *Nosso Cardápio*: %s/menu?store=%s\n\nFaça seu pedido por lá!",
			e.publicBaseURL, conv.TenantID)
	case IntentHandoff:
		return "🔔 Chamei um atendente para falar com você. Aguarde um instante!"
	case IntentHours:
		return e.hoursText
	default:
		return "Desculpe, não entendi.\nDigite *Oi* para ver as opções."
	}
}

// contactLabel derives a fallback display name from a messaging address.
func contactLabel(remoteJID string) string {
	if i := strings.Index(remoteJID, "@"); i > 0 {
		return remoteJID[:i]
	}
	return remoteJID
}
