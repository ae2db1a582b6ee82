// Package session houses concrete implementations of core.StateStore.
// The interface itself (and the ConversationState / Checkpoint types) live in
// the core package to centralize domain contracts. Keeping only
// implementations here prevents the orchestrator from depending on concrete
// storage.
//
// Two backends are provided:
//
//   - InMemoryStore: process-local map, suited to tests and single runs
//   - SQLiteStore: durable single-file store that survives restarts
//
// Both share the same per-conversation lock table so that load/save pairs for
// one conversation id are mutually exclusive while different ids proceed
// independently.
package session
