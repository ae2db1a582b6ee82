package testutil

import (
	"github.com/hupe1980/agentloop/core"
)

// StateBuilder helps construct conversation states with fluent chaining.
// Example:
//
//	st := NewStateBuilder().User("hi").Assistant("hello").Field("name", "Ada").Build()
type StateBuilder struct {
	msgs   []core.Message
	fields map[string]any
}

// NewStateBuilder creates an empty builder.
func NewStateBuilder() *StateBuilder {
	return &StateBuilder{fields: map[string]any{}}
}

// User appends a user message (chainable).
func (b *StateBuilder) User(content string) *StateBuilder {
	b.msgs = append(b.msgs, core.NewUserMessage(content))
	return b
}

// Assistant appends an assistant message (chainable).
func (b *StateBuilder) Assistant(content string, calls ...core.ToolCall) *StateBuilder {
	b.msgs = append(b.msgs, core.NewAssistantMessage(content, calls...))
	return b
}

// Tool appends a tool message answering callID (chainable).
func (b *StateBuilder) Tool(callID, name, content string) *StateBuilder {
	b.msgs = append(b.msgs, core.NewToolMessage(callID, name, content))
	return b
}

// Message appends an arbitrary message (chainable).
func (b *StateBuilder) Message(m core.Message) *StateBuilder {
	b.msgs = append(b.msgs, m)
	return b
}

// Field sets an auxiliary field (chainable).
func (b *StateBuilder) Field(key string, val any) *StateBuilder {
	b.fields[key] = val
	return b
}

// Build returns the assembled state.
func (b *StateBuilder) Build() *core.ConversationState {
	st := core.NewConversationState()
	st.Merge(b.msgs...)
	for k, v := range b.fields {
		st.ExtraFields[k] = v
	}
	return st
}

// Call builds a tool call with the given id, name and raw JSON arguments.
func Call(id, name, args string) core.ToolCall {
	return core.ToolCall{ID: id, Name: name, Arguments: args}
}

// Roles returns the role sequence of msgs.
func Roles(msgs []core.Message) []core.Role {
	out := make([]core.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}
