// Package bot implements the conversational auto-responder.
//
// # State Machine
//
// Each conversation carries a bot state:
//
//   - ACTIVE: the bot classifies every inbound message and auto-responds
//   - PAUSED: a human operator has the conversation; messages are persisted
//     but never answered
//   - COMPLETED: terminal state set by an operator; behaves like PAUSED
//
// The engine moves a conversation from ACTIVE to PAUSED itself when the
// contact asks for a human. All other transitions are operator actions.
//
// # Intent Classification
//
// Classification is keyword based, case-insensitive, with fixed precedence:
// greeting, then catalog, then handoff, then hours, then fallback. Numeric
// shortcuts ("1", "2", "3") select catalog, handoff, and hours by exact
// match. The first matching group wins, so a message containing both a
// greeting word and an option number is treated as a greeting.
package bot
