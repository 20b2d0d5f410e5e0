// ABOUTME: Operator-facing conversation service for the live chat UI
// ABOUTME: Manual sends reuse the same append+send path the bot uses

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/deliverymaster/delivery-gateway/internal/store"
)

// ErrConversationNotOwned is returned when a conversation does not belong to
// the requesting tenant.
var ErrConversationNotOwned = errors.New("conversation does not belong to tenant")

// ConversationStore defines what the service needs from persistence.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, tenantID string) ([]*store.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	SetBotState(ctx context.Context, id, state string) error
	AppendMessage(ctx context.Context, msg *store.Message) error
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)
	DeleteMessage(ctx context.Context, id string) error
}

// Sender delivers outbound messages through a tenant's connection.
type Sender interface {
	Send(ctx context.Context, tenantID, remoteJID, body string) error
}

// Service exposes conversation reads and manual operator sends.
// Outbound delivery goes through the same connection handle the bot uses,
// keeping a single source of truth for sends.
type Service struct {
	store  ConversationStore
	sender Sender
	logger *slog.Logger
}

// New creates a chat service.
func New(store ConversationStore, sender Sender, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		sender: sender,
		logger: logger.With("component", "chat"),
	}
}

// ListConversations returns the tenant's conversations, most recent first.
func (s *Service) ListConversations(ctx context.Context, tenantID string) ([]*store.Conversation, error) {
	return s.store.ListConversations(ctx, tenantID)
}

// ListMessages returns a conversation's messages oldest-first, after checking
// the conversation belongs to the tenant.
func (s *Service) ListMessages(ctx context.Context, tenantID, conversationID string) ([]*store.Message, error) {
	if _, err := s.ownedConversation(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// SendMessage delivers an operator message to the conversation's contact and
// persists it. A send failure surfaces to the caller and nothing is persisted.
func (s *Service) SendMessage(ctx context.Context, tenantID, conversationID, body string) (*store.Message, error) {
	conv, err := s.ownedConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	if err := s.sender.Send(ctx, tenantID, conv.RemoteJID, body); err != nil {
		return nil, fmt.Errorf("sending operator message: %w", err)
	}

	now := time.Now()
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Body:           body,
		FromMe:         true,
		Timestamp:      now,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("recording operator message: %w", err)
	}
	if err := s.store.TouchConversation(ctx, conv.ID, now); err != nil {
		s.logger.Error("touching conversation", "conversation_id", conv.ID, "error", err)
	}

	return msg, nil
}

// SetBotState updates the conversation's bot state on behalf of an operator
// (manual pause/resume, or marking a conversation completed).
func (s *Service) SetBotState(ctx context.Context, tenantID, conversationID, state string) error {
	if _, err := s.ownedConversation(ctx, tenantID, conversationID); err != nil {
		return err
	}
	return s.store.SetBotState(ctx, conversationID, state)
}

// DeleteMessage removes a message after checking its conversation belongs to
// the tenant.
func (s *Service) DeleteMessage(ctx context.Context, tenantID, messageID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := s.ownedConversation(ctx, tenantID, msg.ConversationID); err != nil {
		return err
	}
	return s.store.DeleteMessage(ctx, messageID)
}

func (s *Service) ownedConversation(ctx context.Context, tenantID, conversationID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.TenantID != tenantID {
		return nil, ErrConversationNotOwned
	}
	return conv, nil
}
