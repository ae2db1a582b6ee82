package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author class of a message.
type Role string

const (
	// RoleUser marks input supplied by the human driving the conversation.
	RoleUser Role = "user"
	// RoleAssistant marks output produced by the model backend.
	RoleAssistant Role = "assistant"
	// RoleTool marks the result of a tool execution.
	RoleTool Role = "tool"
)

// ToolCall describes a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`                  // Correlates the call with its tool message
	Name      string `json:"name"`                // Tool name as advertised to the model
	Arguments string `json:"arguments,omitempty"` // JSON object with the call arguments
}

// Message is a single conversation entry. After it has been merged into a
// ledger it should be treated as immutable; updates are expressed by merging
// a new message carrying the same ID.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`     // Tool name on tool messages
	IsError    bool       `json:"is_error,omitempty"` // Tool message reports a failure
	Timestamp  time.Time  `json:"timestamp"`
}

// NewID generates a new unique identifier for messages and requests.
func NewID() string { return uuid.NewString() }

// NewUserMessage creates a user-authored text message.
func NewUserMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage creates an assistant message optionally carrying tool calls.
func NewAssistantMessage(content string, calls ...ToolCall) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Content: content, ToolCalls: calls, Timestamp: time.Now().UTC()}
}

// NewToolMessage records the outcome of the tool call identified by callID.
func NewToolMessage(callID, toolName, content string) Message {
	return Message{
		ID:         NewID(),
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		Name:       toolName,
		Timestamp:  time.Now().UTC(),
	}
}

// NewToolErrorMessage records a failed tool call. The content describes the
// failure so the model can react to it.
func NewToolErrorMessage(callID, toolName string, err error) Message {
	m := NewToolMessage(callID, toolName, "Error: "+err.Error())
	m.IsError = true
	return m
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Clone returns a copy that shares no slices with the receiver.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		copy(calls, m.ToolCalls)
		m.ToolCalls = calls
	}
	return m
}
