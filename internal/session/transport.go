// ABOUTME: Transport abstraction for a tenant's messaging provider connection
// ABOUTME: Websocket implementation speaking the provider bridge's JSON frame protocol

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrTransportClosed is returned by Send after the connection has been destroyed.
var ErrTransportClosed = errors.New("transport closed")

// Transport is one tenant's connection to the messaging provider.
// A transport is single-use: once destroyed or disconnected it cannot be
// restarted, a new one must be created.
type Transport interface {
	// Start dials the provider and begins the pairing/login handshake.
	// It returns once the connection is dialed; lifecycle progress arrives
	// as events. A dial failure is returned directly.
	Start(ctx context.Context) error

	// Events returns the stream of lifecycle and message events.
	// The channel is closed when the connection terminates.
	Events() <-chan Event

	// Send delivers a text message to the given remote address.
	Send(ctx context.Context, remoteJID, body string) error

	// Destroy tears the connection down. Best-effort; safe to call more than once.
	Destroy() error
}

// TransportFactory creates a transport for a tenant. The factory must give
// each tenant isolated credential storage so logins persist independently.
type TransportFactory func(tenantID string) Transport

// ProviderDialer creates websocket transports against the provider bridge.
type ProviderDialer struct {
	providerURL    string
	credentialsDir string
	logger         *slog.Logger
}

// NewProviderDialer returns a dialer for the given bridge endpoint.
// Per-tenant credentials are stored under credentialsDir/<tenantID>.
func NewProviderDialer(providerURL, credentialsDir string, logger *slog.Logger) *ProviderDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderDialer{
		providerURL:    providerURL,
		credentialsDir: credentialsDir,
		logger:         logger.With("component", "transport"),
	}
}

// Factory returns a TransportFactory backed by this dialer.
func (d *ProviderDialer) Factory() TransportFactory {
	return func(tenantID string) Transport {
		return &wsTransport{
			url:            d.providerURL,
			tenantID:       tenantID,
			credentialsDir: filepath.Join(d.credentialsDir, tenantID),
			events:         make(chan Event, 32),
			logger:         d.logger.With("tenant_id", tenantID),
		}
	}
}

// wireFrame is the provider bridge's JSON frame format, both directions.
type wireFrame struct {
	Type    string       `json:"type"` // "pairing", "connected", "disconnected", "message", "send"
	Code    string       `json:"code,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Message *wireMessage `json:"message,omitempty"`
	To      string       `json:"to,omitempty"`
	Body    string       `json:"body,omitempty"`
}

type wireMessage struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	SenderName string `json:"sender_name,omitempty"`
	Body       string `json:"body"`
	FromMe     bool   `json:"from_me,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// wsTransport implements Transport over a websocket to the provider bridge.
type wsTransport struct {
	url            string
	tenantID       string
	credentialsDir string
	events         chan Event
	logger         *slog.Logger

	mu     sync.Mutex // guards conn writes and closed flag
	conn   *websocket.Conn
	closed bool
}

const (
	dialTimeout  = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Start dials the bridge and launches the read loop. The credential directory
// is created first so the bridge can persist the tenant's login state.
func (t *wsTransport) Start(ctx context.Context) error {
	if err := os.MkdirAll(t.credentialsDir, 0700); err != nil {
		return fmt.Errorf("creating credentials dir: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	header := http.Header{}
	header.Set("X-Tenant-ID", t.tenantID)
	header.Set("X-Credentials-Dir", t.credentialsDir)

	conn, resp, err := dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("dialing provider: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return ErrTransportClosed
	}
	t.conn = conn
	t.mu.Unlock()

	t.logger.Debug("provider connection dialed", "url", t.url)
	go t.readLoop()
	return nil
}

// Events returns the event stream for this connection.
func (t *wsTransport) Events() <-chan Event {
	return t.events
}

// readLoop reads frames until the connection dies, translating them into events.
// A terminating read always produces a final EventDisconnected before the
// channel closes, so the dispatch loop sees an explicit drop.
func (t *wsTransport) readLoop() {
	defer close(t.events)

	for {
		var frame wireFrame
		if err := t.conn.ReadJSON(&frame); err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				t.logger.Debug("provider connection read failed", "error", err)
				t.events <- Event{Type: EventDisconnected, Reason: err.Error()}
			}
			return
		}

		switch frame.Type {
		case "pairing":
			t.events <- Event{Type: EventPairing, PairingCode: frame.Code}
		case "connected":
			t.events <- Event{Type: EventConnected}
		case "disconnected":
			t.events <- Event{Type: EventDisconnected, Reason: frame.Reason}
			return
		case "message":
			if frame.Message == nil {
				t.logger.Warn("message frame without payload")
				continue
			}
			t.events <- Event{Type: EventMessage, Message: &InboundMessage{
				ProviderMessageID: frame.Message.ID,
				RemoteJID:         frame.Message.From,
				SenderName:        frame.Message.SenderName,
				Body:              frame.Message.Body,
				FromMe:            frame.Message.FromMe,
				Timestamp:         time.Unix(frame.Message.Timestamp, 0),
			}}
		default:
			t.logger.Warn("unknown frame type from provider", "type", frame.Type)
		}
	}
}

// Send writes a send frame to the bridge.
func (t *wsTransport) Send(ctx context.Context, remoteJID, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.conn == nil {
		return ErrTransportClosed
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}

	frame := wireFrame{Type: "send", To: remoteJID, Body: body}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding send frame: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing send frame: %w", err)
	}
	return nil
}

// Destroy closes the connection. Safe to call before Start or more than once.
func (t *wsTransport) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
