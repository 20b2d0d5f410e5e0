// Package auth provides operator authentication for delivery-gateway.
//
// # Authentication Flow
//
// Operators log in with email and password. Passwords are stored as bcrypt
// hashes on the tenant record. A successful login yields a JWT signed with
// HS256 using the configured jwt_secret; the "sub" claim carries the
// tenant ID.
//
// # HTTP Middleware
//
// Middleware wraps authenticated endpoints:
//
//	mux.Handle("/api/whatsapp/", auth.Middleware(verifier)(api))
//
// It extracts the bearer token from the Authorization header, verifies it,
// and puts the tenant ID into the request context. Handlers read it back
// with TenantFromContext.
//
// # Token Management
//
//	token, err := verifier.Generate(tenantID, ttl)
//	tenantID, err := verifier.Verify(token)
//
// Expired tokens return ErrExpiredToken; anything else malformed returns
// ErrInvalidToken.
package auth
