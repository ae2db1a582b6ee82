package core

import (
	"maps"
	"time"
)

// ConversationState is the full mutable state of one conversation: the
// message ledger plus auxiliary fields (e.g. a verified name or birthday).
//
// Contract:
//   - Messages change only through Merge (append or identity replacement)
//   - ExtraFields change only through ApplyCommand
//   - Clone performs deep copies of the ledger and a shallow copy of the map
type ConversationState struct {
	Messages    []Message      `json:"messages"`
	ExtraFields map[string]any `json:"extra_fields"`
}

// NewConversationState returns an empty state.
func NewConversationState() *ConversationState {
	return &ConversationState{Messages: []Message{}, ExtraFields: map[string]any{}}
}

// Merge folds messages into the ledger using the identity merge rule.
func (s *ConversationState) Merge(msgs ...Message) {
	s.Messages = Merge(s.Messages, msgs)
}

// ApplyCommand applies the command's field patch. A nil or empty command is a
// no-op. The patch is applied as a whole.
func (s *ConversationState) ApplyCommand(cmd *PendingCommand) {
	if cmd == nil || len(cmd.Update) == 0 {
		return
	}
	if s.ExtraFields == nil {
		s.ExtraFields = make(map[string]any, len(cmd.Update))
	}
	maps.Copy(s.ExtraFields, cmd.Update)
}

// Field returns the value and existence flag for an auxiliary field.
func (s *ConversationState) Field(key string) (any, bool) {
	v, ok := s.ExtraFields[key]
	return v, ok
}

// Last returns the most recent message and false when the ledger is empty.
func (s *ConversationState) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Clone returns a copy safe for independent mutation.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return NewConversationState()
	}
	clone := &ConversationState{
		Messages:    make([]Message, len(s.Messages)),
		ExtraFields: make(map[string]any, len(s.ExtraFields)),
	}
	for i, m := range s.Messages {
		clone.Messages[i] = m.Clone()
	}
	maps.Copy(clone.ExtraFields, s.ExtraFields)
	return clone
}

// PendingCommand is a patch of ExtraFields produced by a tool execution. It is
// consumed by the orchestrator at merge time and never persisted on its own.
type PendingCommand struct {
	Update map[string]any `json:"update"`
}

// Checkpoint is the persisted snapshot of a conversation after its last
// completed step. Stores overwrite it on every save.
type Checkpoint struct {
	ConversationID string             `json:"conversation_id"`
	State          *ConversationState `json:"state"`
	Step           int                `json:"step"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
