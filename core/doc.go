// Package core provides the foundational domain types and contracts used by
// agentloop. It defines:
//
//   - Messages (user, assistant and tool entries of a conversation)
//   - The message ledger merge rule (identity based replace-or-append)
//   - ConversationState and Checkpoint snapshots
//   - PendingCommand patches produced by tools
//   - ToolContext (scoped execution surface handed to tools)
//   - The StateStore contract for checkpoint persistence
//   - The error kinds surfaced by a turn
//
// Implementation concerns (persistence backends, model providers, the turn
// state machine) live in sibling packages and depend on these small types.
package core
