package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// ToolSpec declaratively exposes a callable tool to the model. InputSchema is
// a JSON Schema object (minimal subset expected).
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request captures the model input assembled by the orchestrator.
type Request struct {
	Instructions string         `json:"instructions,omitempty"` // System prompt
	Messages     []core.Message `json:"messages"`               // Full conversation ledger
	Tools        []ToolSpec     `json:"tools,omitempty"`
	Stream       bool           `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) assistant message emitted by a model.
// All responses of one generation carry the same Message.ID; partial
// responses hold the content accumulated so far, so merging them into the
// ledger replaces the previous snapshot in place.
type Response struct {
	Partial      bool         `json:"partial"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "ollama", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the orchestrator to drive
// generation. Implementations close both channels when done; a failure is
// reported on the error channel and is distinct from a response without
// tool calls.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockTurn scripts one Generate call of a MockModel.
type MockTurn struct {
	Content   string
	ToolCalls []core.ToolCall
	Err       error // reported instead of a response
	Block     bool  // wait for ctx cancellation
}

// MockModel is a scripted in-memory Model for tests and examples. Each
// Generate call consumes the next scripted turn; once the script is exhausted
// it echoes the latest user message.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	turns    []MockTurn
	requests []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: provider, SupportsTools: true}}
}

// AddTurn appends a scripted turn.
func (m *MockModel) AddTurn(t MockTurn) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return m
}

// AddResponse scripts an assistant reply, optionally requesting tool calls.
func (m *MockModel) AddResponse(content string, calls ...core.ToolCall) *MockModel {
	return m.AddTurn(MockTurn{Content: content, ToolCalls: calls})
}

// AddError scripts a backend failure.
func (m *MockModel) AddError(err error) *MockModel {
	return m.AddTurn(MockTurn{Err: err})
}

// Requests returns copies of the requests seen so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockModel) next(req Request) MockTurn {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]core.Message, len(req.Messages))
	for i, msg := range req.Messages {
		msgs[i] = msg.Clone()
	}
	req.Messages = msgs
	m.requests = append(m.requests, req)

	if len(m.turns) > 0 {
		t := m.turns[0]
		m.turns = m.turns[1:]
		return t
	}

	var input string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			input = req.Messages[i].Content
			break
		}
	}
	return MockTurn{Content: fmt.Sprintf("Mock response to: %s", input)}
}

// Generate implements Model. With req.Stream set, the content is first
// emitted word by word as partial snapshots sharing the final message id.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 16)
	errCh := make(chan error, 1)

	turn := m.next(req)

	go func() {
		defer close(out)
		defer close(errCh)

		if turn.Block {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}
		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		final := core.NewAssistantMessage(turn.Content, turn.ToolCalls...)

		if req.Stream {
			var sb strings.Builder
			for _, word := range strings.SplitAfter(turn.Content, " ") {
				if word == "" {
					continue
				}
				sb.WriteString(word)
				partial := final
				partial.Content = sb.String()
				partial.ToolCalls = nil
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- Response{Partial: true, Message: partial}:
				}
			}
		}

		reason := "stop"
		if final.HasToolCalls() {
			reason = "tool_calls"
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- Response{Message: final, FinishReason: reason}:
		}
	}()

	return out, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
