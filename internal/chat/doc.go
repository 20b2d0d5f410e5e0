// Package chat exposes conversations to the operator dashboard.
//
// The service wraps the store with tenant ownership checks and routes
// manual operator sends through the same connection handle the bot uses.
// A send that fails at the provider is surfaced to the caller and leaves
// no message record behind.
package chat
