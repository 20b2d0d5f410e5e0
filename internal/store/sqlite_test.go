// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Verifies tenant, conversation, and message persistence and ordering

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *SQLiteStore {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestTenant(t *testing.T, s *SQLiteStore) *Tenant {
	tenant := &Tenant{
		ID:           uuid.New().String(),
		Name:         "Pizzaria Central",
		Email:        uuid.New().String() + "@example.com",
		PasswordHash: "$2a$10$fakehash",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return tenant
}

func TestSQLiteStore_TenantRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tenant := createTestTenant(t, s)

	got, err := s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.Name, got.Name)
	assert.Equal(t, tenant.Email, got.Email)
	assert.Equal(t, WhatsAppStatusDisconnected, got.WhatsAppStatus)

	byEmail, err := s.GetTenantByEmail(ctx, tenant.Email)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, byEmail.ID)
}

func TestSQLiteStore_GetTenant_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetTenant(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpdateTenantWhatsAppStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tenant := createTestTenant(t, s)

	err := s.UpdateTenantWhatsAppStatus(ctx, tenant.ID, WhatsAppStatusConnected)
	require.NoError(t, err)

	got, err := s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, WhatsAppStatusConnected, got.WhatsAppStatus)

	err = s.UpdateTenantWhatsAppStatus(ctx, "nonexistent", WhatsAppStatusConnected)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListTenantIDsByWhatsAppStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := createTestTenant(t, s)
	b := createTestTenant(t, s)
	c := createTestTenant(t, s)

	require.NoError(t, s.UpdateTenantWhatsAppStatus(ctx, a.ID, WhatsAppStatusConnected))
	require.NoError(t, s.UpdateTenantWhatsAppStatus(ctx, c.ID, WhatsAppStatusConnected))

	ids, err := s.ListTenantIDsByWhatsAppStatus(ctx, WhatsAppStatusConnected)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, ids)
	assert.NotContains(t, ids, b.ID)
}

func TestSQLiteStore_CreateConversation_Duplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tenant := createTestTenant(t, s)

	conv := &Conversation{
		ID:            uuid.New().String(),
		TenantID:      tenant.ID,
		RemoteJID:     "5511999999999@c.us",
		ContactName:   "Maria",
		BotState:      BotStateActive,
		LastMessageAt: time.Now(),
		CreatedAt:     time.Now(),
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	dup := &Conversation{
		ID:            uuid.New().String(),
		TenantID:      tenant.ID,
		RemoteJID:     "5511999999999@c.us",
		ContactName:   "Maria",
		LastMessageAt: time.Now(),
		CreatedAt:     time.Now(),
	}
	err := s.CreateConversation(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateConversation)

	got, err := s.GetConversationByRemoteJID(ctx, tenant.ID, "5511999999999@c.us")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
}

func TestSQLiteStore_ListConversations_OrderedByLastMessage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tenant := createTestTenant(t, s)
	base := time.Now().Add(-time.Hour)

	for i, jid := range []string{"a@c.us", "b@c.us", "c@c.us"} {
		conv := &Conversation{
			ID:            uuid.New().String(),
			TenantID:      tenant.ID,
			RemoteJID:     jid,
			ContactName:   jid,
			LastMessageAt: base.Add(time.Duration(i) * time.Minute),
			CreatedAt:     base,
		}
		require.NoError(t, s.CreateConversation(ctx, conv))
	}

	convs, err := s.ListConversations(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, "c@c.us", convs[0].RemoteJID)
	assert.Equal(t, "a@c.us", convs[2].RemoteJID)
}

func TestSQLiteStore_SetBotState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tenant := createTestTenant(t, s)
	conv := &Conversation{
		ID:            uuid.New().String(),
		TenantID:      tenant.ID,
		RemoteJID:     "x@c.us",
		ContactName:   "X",
		LastMessageAt: time.Now(),
		CreatedAt:     time.Now(),
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	require.NoError(t, s.SetBotState(ctx, conv.ID, BotStatePaused))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, BotStatePaused, got.BotState)

	err = s.SetBotState(ctx, "nonexistent", BotStatePaused)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_MessageOrdering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tenant := createTestTenant(t, s)
	conv := &Conversation{
		ID:            uuid.New().String(),
		TenantID:      tenant.ID,
		RemoteJID:     "x@c.us",
		ContactName:   "X",
		LastMessageAt: time.Now(),
		CreatedAt:     time.Now(),
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	now := time.Now()
	bodies := []string{"m1", "m2", "m3"}
	for i, body := range bodies {
		msg := &Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			Body:           body,
			FromMe:         i%2 == 0,
			Timestamp:      now.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, s.AppendMessage(ctx, msg))
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, body := range bodies {
		assert.Equal(t, body, msgs[i].Body)
	}
}

func TestSQLiteStore_TouchConversation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tenant := createTestTenant(t, s)
	created := time.Now().Add(-time.Hour)
	conv := &Conversation{
		ID:            uuid.New().String(),
		TenantID:      tenant.ID,
		RemoteJID:     "x@c.us",
		ContactName:   "X",
		LastMessageAt: created,
		CreatedAt:     created,
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	now := time.Now()
	require.NoError(t, s.TouchConversation(ctx, conv.ID, now))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, now, got.LastMessageAt, time.Second)
}

func TestSQLiteStore_DeleteMessage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tenant := createTestTenant(t, s)
	conv := &Conversation{
		ID:            uuid.New().String(),
		TenantID:      tenant.ID,
		RemoteJID:     "x@c.us",
		ContactName:   "X",
		LastMessageAt: time.Now(),
		CreatedAt:     time.Now(),
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Body:           "hello",
		Timestamp:      time.Now(),
	}
	require.NoError(t, s.AppendMessage(ctx, msg))

	require.NoError(t, s.DeleteMessage(ctx, msg.ID))

	_, err := s.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.DeleteMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
