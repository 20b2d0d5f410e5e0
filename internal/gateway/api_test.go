// ABOUTME: HTTP API tests exercising login, auth enforcement, and the chat endpoints
// ABOUTME: Drives a scripted provider transport through the full pairing and send flow

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliverymaster/delivery-gateway/internal/auth"
	"github.com/deliverymaster/delivery-gateway/internal/bot"
	"github.com/deliverymaster/delivery-gateway/internal/chat"
	"github.com/deliverymaster/delivery-gateway/internal/config"
	"github.com/deliverymaster/delivery-gateway/internal/dedupe"
	"github.com/deliverymaster/delivery-gateway/internal/session"
	"github.com/deliverymaster/delivery-gateway/internal/store"
)

// scriptedTransport is a provider connection the test drives by hand.
type scriptedTransport struct {
	events chan session.Event

	mu        sync.Mutex
	sent      []string
	destroyed bool
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{events: make(chan session.Event, 16)}
}

func (t *scriptedTransport) Start(ctx context.Context) error { return nil }

func (t *scriptedTransport) Events() <-chan session.Event { return t.events }

func (t *scriptedTransport) Send(ctx context.Context, remoteJID, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, remoteJID+"|"+body)
	return nil
}

func (t *scriptedTransport) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.destroyed {
		t.destroyed = true
		close(t.events)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	gateway   *Gateway
	handler   http.Handler
	store     *store.SQLiteStore
	transport *scriptedTransport
	token     string
	tenantID  string
}

// newTestEnv builds a gateway around an in-memory store and a scripted
// transport, with one provisioned tenant and a valid token for it.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	hash, err := auth.HashPassword("s3cret-pw")
	require.NoError(t, err)

	tenant := &store.Tenant{
		ID:             "tenant-1",
		Name:           "Pizzaria Central",
		Email:          "owner@example.com",
		PasswordHash:   hash,
		WhatsAppStatus: store.WhatsAppStatusDisconnected,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour
	cfg.WhatsApp.PublicBaseURL = "https://delivery-master-v2.vercel.app"
	cfg.WhatsApp.HoursText = "🕒 Funcionamos todos os dias das 18h às 23h!"
	cfg.WhatsApp.DedupeTTL = time.Minute
	cfg.WhatsApp.DedupeMax = 100

	transport := newScriptedTransport()
	factory := func(tenantID string) session.Transport { return transport }

	seen := dedupe.New(cfg.WhatsApp.DedupeTTL, cfg.WhatsApp.DedupeMax)
	t.Cleanup(seen.Close)
	sessions := session.NewManager(factory, s, seen, nil)
	t.Cleanup(sessions.Close)
	sessions.SetHandler(bot.New(s, sessions, cfg.WhatsApp.PublicBaseURL, cfg.WhatsApp.HoursText, nil))

	g := &Gateway{
		config:   cfg,
		store:    s,
		sessions: sessions,
		chat:     chat.New(s, sessions, nil),
		verifier: auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		seen:     seen,
		logger:   testLogger(),
	}

	token, err := g.verifier.Generate(tenant.ID, time.Hour)
	require.NoError(t, err)

	return &testEnv{
		gateway:   g,
		handler:   g.routes(),
		store:     s,
		transport: transport,
		token:     token,
		tenantID:  tenant.ID,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// connect drives the tenant's session to CONNECTED through the status endpoint.
func (e *testEnv) connect(t *testing.T) {
	t.Helper()

	rec := e.request(t, http.MethodGet, "/api/whatsapp/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	e.transport.events <- session.Event{Type: session.EventConnected}
	require.Eventually(t, func() bool {
		rec := e.request(t, http.MethodGet, "/api/whatsapp/status", nil)
		return decodeBody[StatusResponse](t, rec).Status == store.WhatsAppStatusConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func (e *testEnv) seedConversation(t *testing.T) *store.Conversation {
	t.Helper()

	conv := &store.Conversation{
		ID:            uuid.New().String(),
		TenantID:      e.tenantID,
		RemoteJID:     "5511999999999@c.us",
		ContactName:   "Maria",
		BotState:      store.BotStateActive,
		LastMessageAt: time.Now(),
		CreatedAt:     time.Now(),
	}
	require.NoError(t, e.store.CreateConversation(context.Background(), conv))
	return conv
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	rec := env.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	rec := env.request(t, http.MethodPost, "/api/auth/login", LoginRequest{
		Email:    "owner@example.com",
		Password: "s3cret-pw",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[LoginResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "tenant-1", resp.Tenant.ID)
	assert.Equal(t, "owner@example.com", resp.Tenant.Email)
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	tests := []struct {
		name string
		req  LoginRequest
		code int
	}{
		{"wrong password", LoginRequest{Email: "owner@example.com", Password: "nope"}, http.StatusUnauthorized},
		{"unknown email", LoginRequest{Email: "ghost@example.com", Password: "s3cret-pw"}, http.StatusUnauthorized},
		{"missing fields", LoginRequest{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, http.MethodPost, "/api/auth/login", tt.req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	rec := env.request(t, http.MethodGet, "/api/whatsapp/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	env.token = "not-a-token"
	rec = env.request(t, http.MethodGet, "/api/whatsapp/chats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatus_PairingFlow(t *testing.T) {
	env := newTestEnv(t)

	// First poll initializes the session and reports disconnected.
	rec := env.request(t, http.MethodGet, "/api/whatsapp/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[StatusResponse](t, rec)
	assert.Equal(t, store.WhatsAppStatusDisconnected, resp.Status)
	assert.Nil(t, resp.QRCode)

	env.transport.events <- session.Event{Type: session.EventPairing, PairingCode: "pair-me"}

	require.Eventually(t, func() bool {
		rec := env.request(t, http.MethodGet, "/api/whatsapp/status", nil)
		resp := decodeBody[StatusResponse](t, rec)
		return resp.Status == store.WhatsAppStatusQRReady && resp.QRCode != nil
	}, 2*time.Second, 10*time.Millisecond)

	rec = env.request(t, http.MethodGet, "/api/whatsapp/status", nil)
	resp = decodeBody[StatusResponse](t, rec)
	require.NotNil(t, resp.QRCode)
	assert.True(t, strings.HasPrefix(*resp.QRCode, "data:image/png;base64,"))
}

func TestReset(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	rec := env.request(t, http.MethodPost, "/api/whatsapp/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, resp["success"])

	rec = env.request(t, http.MethodGet, "/api/whatsapp/status", nil)
	status := decodeBody[StatusResponse](t, rec)
	assert.Equal(t, store.WhatsAppStatusDisconnected, status.Status)
}

func TestListChats(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t)

	rec := env.request(t, http.MethodGet, "/api/whatsapp/chats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[[]ConversationResponse](t, rec)
	require.Len(t, resp, 1)
	assert.Equal(t, conv.ID, resp[0].ID)
	assert.Equal(t, "5511999999999@c.us", resp[0].RemoteJID)
	assert.Equal(t, "Maria", resp[0].ContactName)
	assert.Equal(t, store.BotStateActive, resp[0].BotStatus)
}

func TestListMessages(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t)

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Body:           "oi",
		FromMe:         false,
		Timestamp:      time.Now(),
	}
	require.NoError(t, env.store.AppendMessage(context.Background(), msg))

	rec := env.request(t, http.MethodGet, "/api/whatsapp/chats/"+conv.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[[]MessageResponse](t, rec)
	require.Len(t, resp, 1)
	assert.Equal(t, "oi", resp[0].Body)
	assert.False(t, resp[0].FromMe)
}

func TestListMessages_UnknownConversation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/whatsapp/chats/no-such-id/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMessages_ForeignConversation(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t)

	other := &store.Tenant{
		ID:           "tenant-2",
		Name:         "Sushi Norte",
		Email:        "sushi@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, env.store.CreateTenant(context.Background(), other))

	otherToken, err := env.gateway.verifier.Generate(other.ID, time.Hour)
	require.NoError(t, err)
	env.token = otherToken

	rec := env.request(t, http.MethodGet, "/api/whatsapp/chats/"+conv.ID+"/messages", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t)
	env.connect(t)

	rec := env.request(t, http.MethodPost, "/api/whatsapp/chats/"+conv.ID+"/messages",
		SendMessageRequest{Message: "pedido saiu para entrega"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[MessageResponse](t, rec)
	assert.True(t, resp.FromMe)
	assert.Equal(t, "pedido saiu para entrega", resp.Body)

	env.transport.mu.Lock()
	sent := append([]string(nil), env.transport.sent...)
	env.transport.mu.Unlock()
	require.Len(t, sent, 1)
	assert.Equal(t, "5511999999999@c.us|pedido saiu para entrega", sent[0])

	msgs, err := env.store.ListMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestSendMessage_NotConnected(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t)

	rec := env.request(t, http.MethodPost, "/api/whatsapp/chats/"+conv.ID+"/messages",
		SendMessageRequest{Message: "hello"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	msgs, err := env.store.ListMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "failed sends must not be recorded")
}

func TestSendMessage_EmptyBody(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t)

	rec := env.request(t, http.MethodPost, "/api/whatsapp/chats/"+conv.ID+"/messages",
		SendMessageRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetBotState(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t)

	rec := env.request(t, http.MethodPut, "/api/whatsapp/chats/"+conv.ID+"/bot",
		SetBotStateRequest{State: store.BotStatePaused})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := env.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, store.BotStatePaused, got.BotState)
}

func TestSetBotState_InvalidState(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t)

	rec := env.request(t, http.MethodPut, "/api/whatsapp/chats/"+conv.ID+"/bot",
		SetBotStateRequest{State: "SLEEPING"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t)

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Body:           "typo",
		FromMe:         true,
		Timestamp:      time.Now(),
	}
	require.NoError(t, env.store.AppendMessage(context.Background(), msg))

	rec := env.request(t, http.MethodDelete, "/api/whatsapp/messages/"+msg.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodDelete, "/api/whatsapp/messages/"+msg.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInboundMessageReachesChatAPI(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	env.transport.events <- session.Event{Type: session.EventMessage, Message: &session.InboundMessage{
		ProviderMessageID: "prov-1",
		RemoteJID:         "5511888888888@c.us",
		SenderName:        "João",
		Body:              "oi",
		Timestamp:         time.Now(),
	}}

	require.Eventually(t, func() bool {
		rec := env.request(t, http.MethodGet, "/api/whatsapp/chats", nil)
		return len(decodeBody[[]ConversationResponse](t, rec)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec := env.request(t, http.MethodGet, "/api/whatsapp/chats", nil)
	convs := decodeBody[[]ConversationResponse](t, rec)
	require.Len(t, convs, 1)
	assert.Equal(t, "João", convs[0].ContactName)

	rec = env.request(t, http.MethodGet, "/api/whatsapp/chats/"+convs[0].ID+"/messages", nil)
	msgs := decodeBody[[]MessageResponse](t, rec)
	require.Len(t, msgs, 2, "inbound plus the bot's welcome reply")
	assert.False(t, msgs[0].FromMe)
	assert.True(t, msgs[1].FromMe)
}
