package flow

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
	internalutil "github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
)

// RequestProcessor shapes the model request before each model call.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies req using the current conversation state.
	ProcessRequest(state *core.ConversationState, req *model.Request) error
}

// InstructionsProcessor sets the system prompt, rendering it as a template
// over the conversation's auxiliary fields (e.g. {{.name}}).
type InstructionsProcessor struct {
	instructions string
}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor(instructions string) *InstructionsProcessor {
	return &InstructionsProcessor{instructions: instructions}
}

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest renders the instructions into req.
func (p *InstructionsProcessor) ProcessRequest(state *core.ConversationState, req *model.Request) error {
	rendered, err := internalutil.RenderTemplate(p.instructions, state.ExtraFields)
	if err != nil {
		return fmt.Errorf("failed to render instructions: %w", err)
	}
	req.Instructions = rendered
	return nil
}

// HistoryProcessor copies the ledger into the request. With MaxMessages > 0
// only the most recent messages are sent; a window never starts with a tool
// message whose call was cut off.
type HistoryProcessor struct {
	MaxMessages int
}

// NewHistoryProcessor creates a history processor. Zero sends the full ledger.
func NewHistoryProcessor(maxMessages int) *HistoryProcessor {
	return &HistoryProcessor{MaxMessages: maxMessages}
}

// Name returns the processor's identifier.
func (p *HistoryProcessor) Name() string { return "history" }

// ProcessRequest sets req.Messages.
func (p *HistoryProcessor) ProcessRequest(state *core.ConversationState, req *model.Request) error {
	msgs := state.Messages
	if p.MaxMessages > 0 && len(msgs) > p.MaxMessages {
		msgs = msgs[len(msgs)-p.MaxMessages:]
		for len(msgs) > 0 && msgs[0].Role == core.RoleTool {
			msgs = msgs[1:]
		}
	}

	req.Messages = make([]core.Message, len(msgs))
	for i, m := range msgs {
		req.Messages[i] = m.Clone()
	}
	return nil
}
