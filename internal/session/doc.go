// Package session manages per-tenant WhatsApp connections.
//
// # Overview
//
// The Manager is the session registry: an in-memory map from tenant ID to a
// live connection entry (transport handle, status, pairing artifact). It
// guarantees at most one live connection per tenant and keeps the reported
// status consistent with the underlying connection's lifecycle events.
//
// # Lifecycle
//
//	Initialize -> (pairing issued) QR_READY -> (scan) CONNECTED
//	                                        -> (drop)  DISCONNECTED, handle destroyed
//
// Initialize is idempotent and never blocks on the connection handshake.
// Reset destroys the current handle (best-effort) and immediately starts a
// fresh pairing flow. RestoreAll re-establishes sessions on boot for every
// tenant whose persisted status is CONNECTED.
//
// # Generations
//
// Every registry entry carries a generation counter. Events arriving from a
// transport whose generation no longer matches the registry entry are
// discarded, so a Reset during an in-flight connection attempt can never
// resurrect a stale handle or overwrite fresh status.
//
// # Status persistence
//
// In-memory status is the source of truth at runtime. The status persisted on
// the tenant record is written best-effort (logged, never retried) and is read
// exactly once, by RestoreAll at boot. It is never re-read during normal
// operation.
package session
