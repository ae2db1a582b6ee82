// Package agentloop provides a high-level façade over the flow orchestrator.
// Most applications interact with this package by:
//  1. Creating an Agent via New() with a model backend (optionally overriding
//     the default in-memory state store)
//  2. Registering tools
//  3. Running turns per conversation id with RunTurn
//
// The façade tracks the active turns so a caller (e.g. a signal handler or an
// HTTP handler) can abandon a running turn with Cancel; the last checkpoint of
// that conversation stays untouched.
package agentloop

import (
	"context"
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/session"
	"github.com/hupe1980/agentloop/tool"
)

// Options configures the Agent.
type Options struct {
	// Store persists checkpoints (defaults to an in-memory store).
	Store core.StateStore
	// Tools offered to the model.
	Tools []tool.Tool

	// Instructions is the system prompt. It may reference conversation
	// fields, e.g. "The user's name is {{.name}}".
	Instructions string
	// MaxCycles bounds the model calls per turn (0 => flow.DefaultMaxCycles).
	MaxCycles          int
	MaxHistoryMessages int

	// Parallel executes the tool calls of one round concurrently.
	Parallel    bool
	MaxParallel int
	Stream      bool

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	OnTransition func(conversationID string, from, to flow.Phase)
	OnMessage    func(conversationID string, msg core.Message, partial bool)
}

// Agent runs conversation turns and keeps track of the turns in flight.
type Agent struct {
	opts         Options
	orchestrator *flow.Orchestrator

	mu     sync.Mutex
	seq    uint64
	active map[string]map[uint64]context.CancelFunc
	phases map[string]flow.Phase
}

// New creates an Agent for model m.
func New(m model.Model, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Store:  session.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &Agent{
		opts:   opts,
		active: make(map[string]map[uint64]context.CancelFunc),
		phases: make(map[string]flow.Phase),
	}

	a.orchestrator = flow.NewOrchestrator(m, tool.NewRegistry(opts.Tools...), opts.Store, func(o *flow.Options) {
		o.Instructions = opts.Instructions
		o.MaxCycles = opts.MaxCycles
		o.MaxHistoryMessages = opts.MaxHistoryMessages
		o.Parallel = opts.Parallel
		o.MaxParallel = opts.MaxParallel
		o.Stream = opts.Stream
		o.Logger = opts.Logger
		o.OnTransition = a.observe
		o.OnMessage = opts.OnMessage
	})

	return a
}

// RunTurn sends input as the next user message of the conversation and
// returns once the model has produced its final reply. See
// flow.Orchestrator.RunTurn for the error semantics.
func (a *Agent) RunTurn(ctx context.Context, conversationID, input string) (*flow.TurnResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	id := a.track(conversationID, cancel)
	defer a.untrack(conversationID, id)

	return a.orchestrator.RunTurn(ctx, conversationID, input)
}

// Cancel abandons every running turn of the conversation. It reports whether
// a turn was running.
func (a *Agent) Cancel(conversationID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	turns := a.active[conversationID]
	for _, cancel := range turns {
		cancel()
	}
	return len(turns) > 0
}

// Phase returns the most recent phase of the conversation. Conversations
// without a turn in this process report flow.PhaseIdle.
func (a *Agent) Phase(conversationID string) flow.Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.phases[conversationID]; ok {
		return p
	}
	return flow.PhaseIdle
}

// State loads the persisted state of the conversation.
func (a *Agent) State(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	return a.opts.Store.Load(ctx, conversationID)
}

func (a *Agent) observe(conversationID string, from, to flow.Phase) {
	a.mu.Lock()
	a.phases[conversationID] = to
	a.mu.Unlock()

	if a.opts.OnTransition != nil {
		a.opts.OnTransition(conversationID, from, to)
	}
}

func (a *Agent) track(conversationID string, cancel context.CancelFunc) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	turns, ok := a.active[conversationID]
	if !ok {
		turns = make(map[uint64]context.CancelFunc)
		a.active[conversationID] = turns
	}
	turns[a.seq] = cancel
	return a.seq
}

func (a *Agent) untrack(conversationID string, id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	turns := a.active[conversationID]
	if cancel, ok := turns[id]; ok {
		cancel()
		delete(turns, id)
	}
	if len(turns) == 0 {
		delete(a.active, conversationID)
	}
}
