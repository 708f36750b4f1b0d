// Package eventprocessor validates incoming events and routes them to handlers.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│      eventstream.Listener               │
//	└─────────────────┬───────────────────────┘
//	                  │
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   eventprocessor                        │  ← Event routing
//	│   - Validates and attributes events     │
//	│   - Routes by event kind                │
//	└─────────┬───────────────────────────────┘
//	          │
//	          ├──→ Start ─────────→ procmeta.Manager
//	          │                      - Tracks running invocations
//	          │
//	          ├──→ Exit ──────────→ procmeta.Manager
//	          │                      - Retires the invocation
//	          │
//	          └──→ Start/Signal/Exit → ProcessEventHandler
//	                                 - Records the event (collector)
//
// Events that fail validation or belong to another session are rejected
// with an error wrapping event.ErrMalformedEvent and never reach a handler.
package eventprocessor
