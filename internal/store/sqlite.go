// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides tenant/conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			whatsapp_status TEXT NOT NULL DEFAULT 'DISCONNECTED',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,

			CHECK (whatsapp_status IN ('DISCONNECTED', 'QR_READY', 'CONNECTED'))
		);

		CREATE INDEX IF NOT EXISTS idx_tenants_whatsapp_status
			ON tenants(whatsapp_status);

		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			remote_jid TEXT NOT NULL,
			contact_name TEXT NOT NULL,
			bot_state TEXT NOT NULL DEFAULT 'ACTIVE',
			last_message_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE,

			CHECK (bot_state IN ('ACTIVE', 'PAUSED', 'COMPLETED'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_tenant_remote
			ON conversations(tenant_id, remote_jid);

		CREATE INDEX IF NOT EXISTS idx_conversations_tenant_last_message
			ON conversations(tenant_id, last_message_at);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			body TEXT NOT NULL,
			from_me INTEGER NOT NULL DEFAULT 0,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_timestamp
			ON messages(conversation_id, timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateTenant inserts a new tenant record.
func (s *SQLiteStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	query := `
		INSERT INTO tenants (id, name, email, password_hash, whatsapp_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	status := tenant.WhatsAppStatus
	if status == "" {
		status = WhatsAppStatusDisconnected
	}

	_, err := s.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Email,
		tenant.PasswordHash,
		status,
		tenant.CreatedAt.UTC().Format(time.RFC3339),
		tenant.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting tenant: %w", err)
	}

	s.logger.Debug("created tenant", "id", tenant.ID, "name", tenant.Name)
	return nil
}

// GetTenant retrieves a tenant by ID.
// Returns ErrNotFound if the tenant doesn't exist.
func (s *SQLiteStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	query := `
		SELECT id, name, email, password_hash, whatsapp_status, created_at, updated_at
		FROM tenants
		WHERE id = ?
	`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, id))
}

// GetTenantByEmail retrieves a tenant by operator email.
// Returns ErrNotFound if no tenant uses the given email.
func (s *SQLiteStore) GetTenantByEmail(ctx context.Context, email string) (*Tenant, error) {
	query := `
		SELECT id, name, email, password_hash, whatsapp_status, created_at, updated_at
		FROM tenants
		WHERE email = ?
	`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStore) scanTenant(row *sql.Row) (*Tenant, error) {
	var tenant Tenant
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Email,
		&tenant.PasswordHash,
		&tenant.WhatsAppStatus,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying tenant: %w", err)
	}

	tenant.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	tenant.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &tenant, nil
}

// UpdateTenantWhatsAppStatus persists the durable connection status for a tenant.
// Returns ErrNotFound if the tenant doesn't exist.
func (s *SQLiteStore) UpdateTenantWhatsAppStatus(ctx context.Context, tenantID, status string) error {
	query := `
		UPDATE tenants
		SET whatsapp_status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC().Format(time.RFC3339), tenantID)
	if err != nil {
		return fmt.Errorf("updating tenant status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated tenant whatsapp status", "tenant_id", tenantID, "status", status)
	return nil
}

// ListTenantIDsByWhatsAppStatus returns the IDs of all tenants whose persisted
// connection status matches. Used by session restore on boot.
func (s *SQLiteStore) ListTenantIDsByWhatsAppStatus(ctx context.Context, status string) ([]string, error) {
	query := `SELECT id FROM tenants WHERE whatsapp_status = ?`

	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("querying tenants by status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tenants: %w", err)
	}

	return ids, nil
}

// CreateConversation inserts a new conversation.
// Returns ErrDuplicateConversation if one already exists for the same
// (tenant_id, remote_jid) pair.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, tenant_id, remote_jid, contact_name, bot_state, last_message_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	state := conv.BotState
	if state == "" {
		state = BotStateActive
	}

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.TenantID,
		conv.RemoteJID,
		conv.ContactName,
		state,
		conv.LastMessageAt.UTC().Format(time.RFC3339),
		conv.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "tenant_id", conv.TenantID, "remote_jid", conv.RemoteJID)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, tenant_id, remote_jid, contact_name, bot_state, last_message_at, created_at
		FROM conversations
		WHERE id = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// GetConversationByRemoteJID retrieves a conversation by tenant and remote contact.
// This uses the idx_conversations_tenant_remote index for efficient lookups.
// Returns ErrNotFound if no conversation exists for the pair.
func (s *SQLiteStore) GetConversationByRemoteJID(ctx context.Context, tenantID, remoteJID string) (*Conversation, error) {
	query := `
		SELECT id, tenant_id, remote_jid, contact_name, bot_state, last_message_at, created_at
		FROM conversations
		WHERE tenant_id = ? AND remote_jid = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, tenantID, remoteJID))
}

func (s *SQLiteStore) scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var lastMessageAtStr, createdAtStr string

	err := row.Scan(
		&conv.ID,
		&conv.TenantID,
		&conv.RemoteJID,
		&conv.ContactName,
		&conv.BotState,
		&lastMessageAtStr,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.LastMessageAt, err = time.Parse(time.RFC3339, lastMessageAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_message_at: %w", err)
	}
	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &conv, nil
}

// ListConversations returns all conversations for a tenant, most recent
// message first.
func (s *SQLiteStore) ListConversations(ctx context.Context, tenantID string) ([]*Conversation, error) {
	query := `
		SELECT id, tenant_id, remote_jid, contact_name, bot_state, last_message_at, created_at
		FROM conversations
		WHERE tenant_id = ?
		ORDER BY last_message_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var conv Conversation
		var lastMessageAtStr, createdAtStr string

		if err := rows.Scan(
			&conv.ID,
			&conv.TenantID,
			&conv.RemoteJID,
			&conv.ContactName,
			&conv.BotState,
			&lastMessageAtStr,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}

		conv.LastMessageAt, err = time.Parse(time.RFC3339, lastMessageAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing last_message_at: %w", err)
		}
		conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		convs = append(convs, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return convs, nil
}

// TouchConversation updates a conversation's last_message_at timestamp.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE conversations SET last_message_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBotState updates a conversation's bot state.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) SetBotState(ctx context.Context, id, state string) error {
	query := `UPDATE conversations SET bot_state = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, state, id)
	if err != nil {
		return fmt.Errorf("setting bot state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("bot state changed", "conversation_id", id, "state", state)
	return nil
}

// AppendMessage inserts a message. Messages are append-only; there is no
// update operation.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, body, from_me, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	fromMe := 0
	if msg.FromMe {
		fromMe = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.Body,
		fromMe,
		msg.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	return nil
}

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `
		SELECT id, conversation_id, body, from_me, timestamp
		FROM messages
		WHERE id = ?
	`

	var msg Message
	var fromMe int
	var timestampStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Body,
		&fromMe,
		&timestampStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	msg.FromMe = fromMe != 0
	msg.Timestamp, err = time.Parse(time.RFC3339Nano, timestampStr)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}

	return &msg, nil
}

// ListMessages returns all messages in a conversation, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, body, from_me, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		var fromMe int
		var timestampStr string

		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Body,
			&fromMe,
			&timestampStr,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		msg.FromMe = fromMe != 0
		msg.Timestamp, err = time.Parse(time.RFC3339Nano, timestampStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}

		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return msgs, nil
}

// DeleteMessage removes a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
