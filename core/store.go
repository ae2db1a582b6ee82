package core

import "context"

// StateStore persists conversation checkpoints keyed by conversation id.
//
// Semantics:
//   - Load never fails for unknown ids; it returns an empty state instead
//   - Save is last-writer-wins and overwrites the previous checkpoint
//   - Returned states are copies; mutating them does not affect the store
//   - Lock serializes whole load/save sequences for one id while leaving
//     other ids unaffected. The returned unlock func is idempotent.
type StateStore interface {
	Load(ctx context.Context, conversationID string) (*ConversationState, error)
	Save(ctx context.Context, conversationID string, state *ConversationState) error
	Lock(ctx context.Context, conversationID string) (func(), error)
}
