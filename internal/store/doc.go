// Package store provides persistent storage for delivery-gateway using SQLite.
//
// # Data Models
//
//   - Tenant: one store/restaurant account, including the durable WhatsApp
//     connection status used for session restore on boot
//   - Conversation: one chat per (tenant, remote contact) pair with a
//     per-conversation bot state (ACTIVE, PAUSED, COMPLETED)
//   - Message: append-only messages ordered by timestamp within a conversation
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateConversation: conversation already exists for the
//     (tenant, remote contact) pair
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore(":memory:") for tests with real SQLite.
package store
