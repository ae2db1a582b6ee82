// Package flow drives a conversation turn: it calls the model, routes on the
// latest assistant message, executes requested tools, merges their results
// into the ledger and persists the conversation after every completed step.
//
// The turn is an explicit state machine:
//
//	Idle -> AwaitingModel -> (AwaitingTools [-> AwaitingHuman] -> AwaitingModel)* -> Done
//
// Route decides after every model response whether the turn continues with
// tools or ends.
package flow

import (
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// Phase is the orchestrator's position within a turn.
type Phase string

const (
	// PhaseIdle is the position before a turn starts.
	PhaseIdle Phase = "idle"
	// PhaseAwaitingModel waits for the model's response.
	PhaseAwaitingModel Phase = "awaiting_model"
	// PhaseAwaitingTools waits for the requested tool calls.
	PhaseAwaitingTools Phase = "awaiting_tools"
	// PhaseAwaitingHuman waits for a person inside a tool call.
	PhaseAwaitingHuman Phase = "awaiting_human"
	// PhaseDone marks a finished (or aborted) turn.
	PhaseDone Phase = "done"
)

// Decision is the router's verdict on the latest message.
type Decision int

const (
	// EndTurn finishes the turn with the latest message as the reply.
	EndTurn Decision = iota
	// ContinueToTools executes the latest message's tool calls.
	ContinueToTools
)

func (d Decision) String() string {
	if d == ContinueToTools {
		return "continue_to_tools"
	}
	return "end_turn"
}

// Route continues to tools iff latest is an assistant message requesting at
// least one tool call.
func Route(latest core.Message) Decision {
	if latest.Role == core.RoleAssistant && latest.HasToolCalls() {
		return ContinueToTools
	}
	return EndTurn
}

// StopReason tells why a turn ended.
type StopReason string

const (
	// StopEndTurn is a regular end: the model answered without tool calls.
	StopEndTurn StopReason = "end_turn"
	// StopCycleLimit means the model/tool loop hit its bound.
	StopCycleLimit StopReason = "cycle_limit"
)

// TurnResult summarizes a completed turn.
type TurnResult struct {
	ConversationID string
	Reply          core.Message // final assistant message; zero on StopCycleLimit
	State          *core.ConversationState
	Cycles         int
	StopReason     StopReason
	Usage          model.TokenUsage
}
