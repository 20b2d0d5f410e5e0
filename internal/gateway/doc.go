// Package gateway orchestrates the delivery-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the delivery-gateway
// server. It owns and manages all major components: the HTTP server, the
// per-tenant WhatsApp session manager, the dialogue engine, the operator
// chat service, and the data store.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	type Gateway struct {
//	    config     *config.Config
//	    store      store.Store
//	    sessions   *session.Manager
//	    chat       *chat.Service
//	    verifier   *auth.JWTVerifier
//	    httpServer *http.Server
//	}
//
// New wires the component graph; Start restores persisted sessions and
// serves HTTP; Shutdown stops the server and tears down all live sessions.
//
// # HTTP API
//
// Public endpoints:
//
//   - GET  /health           - liveness check
//   - POST /api/auth/login   - operator login, returns a JWT
//
// Authenticated endpoints (Bearer token, tenant scoped):
//
//   - GET    /api/whatsapp/status              - session state and pairing QR
//   - POST   /api/whatsapp/reset               - tear down and re-pair
//   - GET    /api/whatsapp/chats               - conversations, newest first
//   - GET    /api/whatsapp/chats/{id}/messages - message history
//   - POST   /api/whatsapp/chats/{id}/messages - manual operator send
//   - PUT    /api/whatsapp/chats/{id}/bot      - pause/resume/complete the bot
//   - DELETE /api/whatsapp/messages/{id}       - remove a message record
//
// Every authenticated endpoint resolves the tenant from the JWT subject;
// conversations and messages belonging to other tenants return 403.
package gateway
