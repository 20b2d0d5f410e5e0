// ABOUTME: Manages per-tenant WhatsApp sessions, their lifecycle, and event dispatch.
// ABOUTME: Central registry guaranteeing at most one live connection per tenant.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/deliverymaster/delivery-gateway/internal/dedupe"
)

// ErrNotConnected is returned when sending through a tenant whose session
// is not in the connected state.
var ErrNotConnected = errors.New("whatsapp session not connected")

// Connection states for a tenant session. The same values are persisted on
// the tenant record, where they serve only as a boot-time restore hint.
const (
	StatusDisconnected = "DISCONNECTED"
	StatusQRReady      = "QR_READY"
	StatusConnected    = "CONNECTED"
)

// Status is the queryable state of one tenant's session.
type Status struct {
	State string
	// PairingArtifact is a data-URL QR image, present only while QR_READY.
	PairingArtifact string
}

// StatusStore defines what the manager needs from tenant persistence.
type StatusStore interface {
	UpdateTenantWhatsAppStatus(ctx context.Context, tenantID, status string) error
	ListTenantIDsByWhatsAppStatus(ctx context.Context, status string) ([]string, error)
}

// InboundHandler receives chat messages after lifecycle filtering and dedupe.
type InboundHandler interface {
	HandleInbound(ctx context.Context, tenantID string, msg *InboundMessage) error
}

// entry is the registry record for one tenant's live session.
type entry struct {
	transport  Transport
	state      string
	pairing    string
	generation uint64
	cancel     context.CancelFunc
}

// Manager owns all tenant sessions. Each session gets a generation number on
// registration; events from a transport whose generation no longer matches
// the registry are discarded, which makes Reset safe against in-flight
// connection attempts.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	nextGen  uint64

	factory TransportFactory
	store   StatusStore
	handler InboundHandler
	seen    *dedupe.Cache
	logger  *slog.Logger
}

// NewManager creates a session manager. The inbound handler is attached
// separately via SetHandler because the dialogue engine sends replies back
// through the manager.
func NewManager(factory TransportFactory, store StatusStore, seen *dedupe.Cache, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*entry),
		factory:  factory,
		store:    store,
		seen:     seen,
		logger:   logger.With("component", "session"),
	}
}

// SetHandler attaches the inbound message handler. Must be called before any
// session is initialized.
func (m *Manager) SetHandler(h InboundHandler) {
	m.handler = h
}

// Initialize registers and starts a session for the tenant. Idempotent: if a
// session already exists the call is a no-op. The connection handshake runs
// asynchronously; this never blocks the caller on it.
func (m *Manager) Initialize(ctx context.Context, tenantID string) {
	m.mu.Lock()
	if _, exists := m.sessions[tenantID]; exists {
		m.mu.Unlock()
		return
	}

	m.nextGen++
	gen := m.nextGen
	tr := m.factory(tenantID)
	runCtx, cancel := context.WithCancel(context.Background())
	m.sessions[tenantID] = &entry{
		transport:  tr,
		state:      StatusDisconnected,
		generation: gen,
		cancel:     cancel,
	}
	m.mu.Unlock()

	m.logger.Info("initializing whatsapp session", "tenant_id", tenantID)
	go m.run(runCtx, tenantID, gen, tr)
}

// Status returns the in-memory state for a tenant. Unknown tenants report
// DISCONNECTED. Status never triggers initialization.
func (m *Manager) Status(tenantID string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[tenantID]
	if !ok {
		return Status{State: StatusDisconnected}
	}
	return Status{State: e.state, PairingArtifact: e.pairing}
}

// Send delivers a message through the tenant's connection.
// Returns ErrNotConnected unless the session is in the connected state.
// Send failures never mutate session status.
func (m *Manager) Send(ctx context.Context, tenantID, remoteJID, body string) error {
	m.mu.RLock()
	e, ok := m.sessions[tenantID]
	var tr Transport
	if ok && e.state == StatusConnected {
		tr = e.transport
	}
	m.mu.RUnlock()

	if tr == nil {
		return ErrNotConnected
	}
	return tr.Send(ctx, remoteJID, body)
}

// Reset tears down any existing session and immediately starts a fresh one,
// generating a new pairing flow. Destroy errors are logged and swallowed.
func (m *Manager) Reset(ctx context.Context, tenantID string) {
	m.mu.Lock()
	e, ok := m.sessions[tenantID]
	delete(m.sessions, tenantID)
	m.mu.Unlock()

	if ok {
		e.cancel()
		if err := e.transport.Destroy(); err != nil {
			m.logger.Error("destroying session", "tenant_id", tenantID, "error", err)
		}
	}

	m.logger.Info("session reset", "tenant_id", tenantID)
	m.persistStatus(ctx, tenantID, StatusDisconnected)
	m.Initialize(ctx, tenantID)
}

// RestoreAll initializes a session for every tenant whose persisted status is
// CONNECTED. Startup failures are isolated per tenant by the asynchronous
// initialization; one tenant's failure never blocks another.
func (m *Manager) RestoreAll(ctx context.Context) error {
	ids, err := m.store.ListTenantIDsByWhatsAppStatus(ctx, StatusConnected)
	if err != nil {
		return fmt.Errorf("listing connected tenants: %w", err)
	}

	for _, id := range ids {
		m.logger.Info("restoring whatsapp session", "tenant_id", id)
		m.Initialize(ctx, id)
	}
	return nil
}

// Close destroys all sessions. Used at process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := make(map[string]*entry, len(m.sessions))
	for id, e := range m.sessions {
		entries[id] = e
	}
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for id, e := range entries {
		e.cancel()
		if err := e.transport.Destroy(); err != nil {
			m.logger.Error("destroying session", "tenant_id", id, "error", err)
		}
	}
}

// run starts the transport and dispatches its events until the stream closes.
// Events for a generation no longer in the registry are drained and dropped.
func (m *Manager) run(ctx context.Context, tenantID string, gen uint64, tr Transport) {
	if err := tr.Start(ctx); err != nil {
		// Tear the dead handle down so a later Initialize starts clean.
		m.logger.Error("session start failed", "tenant_id", tenantID, "error", err)
		m.teardownIfCurrent(tenantID, gen)
		return
	}

	for ev := range tr.Events() {
		if !m.isCurrent(tenantID, gen) {
			continue
		}

		switch ev.Type {
		case EventPairing:
			m.handlePairing(tenantID, gen, ev.PairingCode)
		case EventConnected:
			m.handleConnected(ctx, tenantID, gen)
		case EventDisconnected:
			m.handleDisconnected(ctx, tenantID, gen, ev.Reason)
		case EventMessage:
			m.handleMessage(ctx, tenantID, ev.Message)
		}
	}
}

func (m *Manager) handlePairing(tenantID string, gen uint64, code string) {
	artifact, err := renderPairingArtifact(code)
	if err != nil {
		m.logger.Error("rendering pairing code", "tenant_id", tenantID, "error", err)
		return
	}

	m.mu.Lock()
	if e, ok := m.sessions[tenantID]; ok && e.generation == gen {
		e.state = StatusQRReady
		e.pairing = artifact
	}
	m.mu.Unlock()

	m.logger.Info("pairing code ready", "tenant_id", tenantID)
}

func (m *Manager) handleConnected(ctx context.Context, tenantID string, gen uint64) {
	m.mu.Lock()
	if e, ok := m.sessions[tenantID]; ok && e.generation == gen {
		e.state = StatusConnected
		e.pairing = ""
	}
	m.mu.Unlock()

	m.logger.Info("session connected", "tenant_id", tenantID)
	m.persistStatus(ctx, tenantID, StatusConnected)
}

func (m *Manager) handleDisconnected(ctx context.Context, tenantID string, gen uint64, reason string) {
	if !m.teardownIfCurrent(tenantID, gen) {
		return
	}

	m.logger.Info("session disconnected", "tenant_id", tenantID, "reason", reason)
	m.persistStatus(ctx, tenantID, StatusDisconnected)
}

// handleMessage filters self-sent and broadcast traffic, deduplicates by
// provider message ID, and hands the message to the dialogue engine.
func (m *Manager) handleMessage(ctx context.Context, tenantID string, msg *InboundMessage) {
	if msg == nil || msg.FromMe {
		return
	}
	if msg.RemoteJID == "status@broadcast" || strings.HasSuffix(msg.RemoteJID, "@broadcast") {
		return
	}

	if m.seen != nil && msg.ProviderMessageID != "" {
		key := "msg:" + tenantID + ":" + msg.ProviderMessageID
		if m.seen.SeenOrMark(key) {
			m.logger.Debug("duplicate message ignored",
				"tenant_id", tenantID,
				"provider_message_id", msg.ProviderMessageID,
			)
			return
		}
	}

	if m.handler == nil {
		m.logger.Warn("inbound message dropped, no handler attached", "tenant_id", tenantID)
		return
	}

	if err := m.handler.HandleInbound(ctx, tenantID, msg); err != nil {
		m.logger.Error("handling inbound message",
			"tenant_id", tenantID,
			"remote_jid", msg.RemoteJID,
			"error", err,
		)
	}
}

// persistStatus writes the durable status best-effort. A failure is logged
// and not retried; the in-memory state stays authoritative.
func (m *Manager) persistStatus(ctx context.Context, tenantID, status string) {
	if err := m.store.UpdateTenantWhatsAppStatus(ctx, tenantID, status); err != nil {
		m.logger.Error("persisting session status",
			"tenant_id", tenantID,
			"status", status,
			"error", err,
		)
	}
}

// isCurrent reports whether the generation still owns the registry slot.
func (m *Manager) isCurrent(tenantID string, gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[tenantID]
	return ok && e.generation == gen
}

// teardownIfCurrent removes the registry entry if the generation still owns
// it, then cancels its run context and destroys the transport so the
// underlying connection is released. Returns true if an entry was torn down.
func (m *Manager) teardownIfCurrent(tenantID string, gen uint64) bool {
	m.mu.Lock()
	e, ok := m.sessions[tenantID]
	if !ok || e.generation != gen {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, tenantID)
	m.mu.Unlock()

	e.cancel()
	if err := e.transport.Destroy(); err != nil {
		m.logger.Error("destroying session", "tenant_id", tenantID, "error", err)
	}
	return true
}
