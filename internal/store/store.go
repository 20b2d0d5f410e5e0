// ABOUTME: Store interface and data types for delivery-gateway persistence
// ABOUTME: Defines Tenant, Conversation, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when a conversation already exists
// for the same (tenant, remote contact) pair
var ErrDuplicateConversation = errors.New("conversation already exists")

// WhatsApp connection status values persisted on the tenant record.
// The persisted value is only a boot-time hint for session restore;
// the in-memory session registry is authoritative at runtime.
const (
	WhatsAppStatusDisconnected = "DISCONNECTED"
	WhatsAppStatusQRReady      = "QR_READY"
	WhatsAppStatusConnected    = "CONNECTED"
)

// Bot state values for a conversation.
const (
	BotStateActive    = "ACTIVE"    // bot auto-responds
	BotStatePaused    = "PAUSED"    // human operator has taken over
	BotStateCompleted = "COMPLETED" // reserved; never set by the dialogue engine
)

// Tenant represents one store/restaurant account
type Tenant struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   string
	WhatsAppStatus string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Conversation represents one chat with a remote contact, scoped to a tenant.
// At most one conversation exists per (tenant_id, remote_jid) pair.
type Conversation struct {
	ID            string
	TenantID      string
	RemoteJID     string
	ContactName   string
	BotState      string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// Message is a single message within a conversation. Messages are append-only
// and ordered by timestamp ascending.
type Message struct {
	ID             string
	ConversationID string
	Body           string
	FromMe         bool // true for operator/bot messages, false for contact messages
	Timestamp      time.Time
}

// Store defines the interface for tenant, conversation, and message persistence
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantByEmail(ctx context.Context, email string) (*Tenant, error)
	UpdateTenantWhatsAppStatus(ctx context.Context, tenantID, status string) error
	ListTenantIDsByWhatsAppStatus(ctx context.Context, status string) ([]string, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByRemoteJID(ctx context.Context, tenantID, remoteJID string) (*Conversation, error)
	ListConversations(ctx context.Context, tenantID string) ([]*Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	SetBotState(ctx context.Context, id, state string) error

	// Messages
	AppendMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	DeleteMessage(ctx context.Context, id string) error

	Close() error
}
