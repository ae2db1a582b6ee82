package core

import (
	"context"
	"maps"

	"github.com/hupe1980/agentloop/logging"
)

// ToolContext provides a constrained surface for tool implementations. It
// exposes a read view of the conversation's auxiliary fields and accumulates
// field writes into a PendingCommand instead of mutating the conversation
// directly. The orchestrator applies the command only if the tool succeeds.
type ToolContext struct {
	ctx            context.Context
	conversationID string
	call           ToolCall
	fields         map[string]any
	update         map[string]any
	onHuman        func(waiting bool)
	logger         logging.Logger
}

// NewToolContext constructs a tool context for one call. state may be nil.
func NewToolContext(
	ctx context.Context,
	conversationID string,
	call ToolCall,
	state *ConversationState,
	logger logging.Logger,
) *ToolContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	fields := map[string]any{}
	if state != nil {
		maps.Copy(fields, state.ExtraFields)
	}
	return &ToolContext{
		ctx:            ctx,
		conversationID: conversationID,
		call:           call,
		fields:         fields,
		update:         map[string]any{},
		logger:         logger,
	}
}

// WithHumanHook registers fn to be notified when the tool starts and stops
// waiting for a human.
func (tc *ToolContext) WithHumanHook(fn func(waiting bool)) *ToolContext {
	tc.onHuman = fn
	return tc
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// ConversationID returns the conversation the call belongs to.
func (tc *ToolContext) ConversationID() string { return tc.conversationID }

// FunctionCallID returns the id of the tool call being executed.
func (tc *ToolContext) FunctionCallID() string { return tc.call.ID }

// ToolName returns the name of the tool being executed.
func (tc *ToolContext) ToolName() string { return tc.call.Name }

// Logger returns the logger associated with the tool invocation. It is never nil.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// LogDebug, LogInfo, LogWarn and LogError log with the conversation, tool and
// call id attached.
func (tc *ToolContext) LogDebug(msg string, args ...any) { tc.logger.Debug(msg, tc.attrs(args)...) }

func (tc *ToolContext) LogInfo(msg string, args ...any) { tc.logger.Info(msg, tc.attrs(args)...) }

func (tc *ToolContext) LogWarn(msg string, args ...any) { tc.logger.Warn(msg, tc.attrs(args)...) }

func (tc *ToolContext) LogError(msg string, args ...any) { tc.logger.Error(msg, tc.attrs(args)...) }

func (tc *ToolContext) attrs(args []any) []any {
	return append([]any{
		"conversation_id", tc.conversationID,
		"tool", tc.call.Name,
		"function_call_id", tc.call.ID,
	}, args...)
}

// GetState returns a field value, preferring writes staged by this call.
func (tc *ToolContext) GetState(k string) (any, bool) {
	if v, ok := tc.update[k]; ok {
		return v, true
	}
	v, ok := tc.fields[k]
	return v, ok
}

// SetState stages a field write in the call's pending command.
func (tc *ToolContext) SetState(k string, v any) {
	tc.update[k] = v
}

// Command returns the staged field patch or nil when nothing was written.
func (tc *ToolContext) Command() *PendingCommand {
	if len(tc.update) == 0 {
		return nil
	}
	return &PendingCommand{Update: maps.Clone(tc.update)}
}

// Discard drops all staged writes.
func (tc *ToolContext) Discard() { clear(tc.update) }

// AwaitHuman runs fn while the conversation is marked as waiting for human
// input.
func (tc *ToolContext) AwaitHuman(fn func() error) error {
	if tc.onHuman != nil {
		tc.onHuman(true)
		defer tc.onHuman(false)
	}
	tc.LogInfo("tool.human.wait")
	return fn()
}
