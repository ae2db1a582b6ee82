package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// DefaultMaxCycles bounds the model/tool loop of one turn.
const DefaultMaxCycles = 10

// Options configure an Orchestrator.
type Options struct {
	// Instructions is the system prompt; it may reference auxiliary fields
	// as template variables.
	Instructions string
	// MaxCycles is the maximum number of model calls per turn. Zero means
	// DefaultMaxCycles; negative means unlimited.
	MaxCycles int
	// MaxHistoryMessages limits the ledger window sent to the model. Zero
	// sends everything.
	MaxHistoryMessages int
	// Stream requests partial responses from the model.
	Stream bool
	// Parallel executes the calls of one round concurrently; results are
	// still merged in call order.
	Parallel    bool
	MaxParallel int
	// Executor overrides the executor derived from Parallel/MaxParallel.
	Executor FunctionExecutor
	// RequestProcessors run after the built-in instructions and history
	// processors.
	RequestProcessors []RequestProcessor
	Logger            logging.Logger
	// OnTransition observes phase changes.
	OnTransition func(conversationID string, from, to Phase)
	// OnMessage observes assistant (partial and final) and tool messages as
	// they are merged.
	OnMessage func(conversationID string, msg core.Message, partial bool)
}

// Orchestrator runs conversation turns against a model, a tool registry and
// a state store. It holds no per-conversation state; turns for different
// conversation ids run concurrently while turns for the same id are
// serialized by the store's lock.
type Orchestrator struct {
	model      model.Model
	tools      *tool.Registry
	store      core.StateStore
	opts       Options
	executor   FunctionExecutor
	processors []RequestProcessor
	logger     logging.Logger
}

// NewOrchestrator creates an orchestrator. tools may be nil.
func NewOrchestrator(m model.Model, tools *tool.Registry, store core.StateStore, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{MaxCycles: DefaultMaxCycles}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxCycles == 0 {
		opts.MaxCycles = DefaultMaxCycles
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if tools == nil {
		tools = tool.NewRegistry()
	}

	executor := opts.Executor
	if executor == nil {
		maxPar := 1
		if opts.Parallel {
			maxPar = opts.MaxParallel
		}
		executor = NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: maxPar, Logger: opts.Logger})
	}

	processors := append([]RequestProcessor{
		NewInstructionsProcessor(opts.Instructions),
		NewHistoryProcessor(opts.MaxHistoryMessages),
	}, opts.RequestProcessors...)

	return &Orchestrator{
		model:      m,
		tools:      tools,
		store:      store,
		opts:       opts,
		executor:   executor,
		processors: processors,
		logger:     opts.Logger,
	}
}

// phaseTracker reports transitions; tool goroutines may move it concurrently.
type phaseTracker struct {
	mu             sync.Mutex
	conversationID string
	current        Phase
	observe        func(conversationID string, from, to Phase)
	logger         logging.Logger
}

func (t *phaseTracker) to(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == p {
		return
	}
	from := t.current
	t.current = p
	t.logger.Debug("flow.phase", "conversation_id", t.conversationID, "from", string(from), "to", string(p))
	if t.observe != nil {
		t.observe(t.conversationID, from, p)
	}
}

// RunTurn appends input as a user message and drives the conversation until
// the model answers without tool calls.
//
// Errors:
//   - wrapping core.ErrBackendUnavailable: the model failed; nothing from this
//     model call is persisted
//   - wrapping core.ErrCycleLimitExceeded: returned together with a non-nil
//     result; the state is persisted
//   - ctx.Err(): the turn was abandoned; the last checkpoint is unchanged
func (o *Orchestrator) RunTurn(ctx context.Context, conversationID, input string) (*TurnResult, error) {
	start := time.Now()
	tracker := &phaseTracker{
		conversationID: conversationID,
		current:        PhaseIdle,
		observe:        o.opts.OnTransition,
		logger:         o.logger,
	}
	defer tracker.to(PhaseDone)

	o.logger.Info("flow.turn.start", "conversation_id", conversationID, "input_len", len(input))

	unlock, err := o.store.Lock(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("lock conversation %s: %w", conversationID, err)
	}
	defer unlock()

	state, err := o.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	state.Merge(core.NewUserMessage(input))

	result := &TurnResult{ConversationID: conversationID, StopReason: StopEndTurn}
	limiter := core.NewCycleLimiter(max(o.opts.MaxCycles, 0))

	for {
		if err := limiter.Increment(); err != nil {
			if saveErr := o.save(ctx, conversationID, state); saveErr != nil {
				return nil, saveErr
			}
			result.StopReason = StopCycleLimit
			result.Cycles = limiter.Count() - 1
			result.State = state.Clone()
			o.logger.Warn("flow.turn.cycle_limit", "conversation_id", conversationID, "max_cycles", o.opts.MaxCycles)
			return result, err
		}

		tracker.to(PhaseAwaitingModel)
		reply, err := o.callModel(ctx, conversationID, state, result)
		if err != nil {
			o.logger.Error("flow.turn.failed", "conversation_id", conversationID, "error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds())
			return nil, err
		}

		if Route(reply) == EndTurn {
			if err := o.save(ctx, conversationID, state); err != nil {
				return nil, err
			}
			result.Reply = reply
			result.Cycles = limiter.Count()
			result.State = state.Clone()
			o.logger.Info("flow.turn.completed", "conversation_id", conversationID, "cycles", result.Cycles,
				"duration_ms", time.Since(start).Milliseconds())
			return result, nil
		}

		tracker.to(PhaseAwaitingTools)
		if err := o.runTools(ctx, conversationID, state, reply.ToolCalls, tracker); err != nil {
			return nil, err
		}
		if err := o.save(ctx, conversationID, state); err != nil {
			return nil, err
		}
	}
}

// save persists state unless the turn was abandoned.
func (o *Orchestrator) save(ctx context.Context, conversationID string, state *core.ConversationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.store.Save(ctx, conversationID, state); err != nil {
		return fmt.Errorf("save conversation %s: %w", conversationID, err)
	}
	return nil
}

// callModel performs one model call, merging streamed snapshots and the
// final message into state. It returns the final assistant message.
func (o *Orchestrator) callModel(
	ctx context.Context,
	conversationID string,
	state *core.ConversationState,
	result *TurnResult,
) (core.Message, error) {
	req := model.Request{Tools: o.tools.Specs(), Stream: o.opts.Stream}
	for _, p := range o.processors {
		if err := p.ProcessRequest(state, &req); err != nil {
			return core.Message{}, fmt.Errorf("request processor %s failed: %w", p.Name(), err)
		}
	}

	info := o.model.Info()
	start := time.Now()
	respCh, errCh := o.model.Generate(ctx, req)

	var (
		final    *core.Message
		streamID string
		genErr   error
	)

	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			msg := normalizeAssistant(resp.Message, &streamID)
			if resp.Partial {
				state.Merge(msg)
				o.notify(conversationID, msg, true)
				continue
			}
			if final != nil {
				genErr = errors.New("model returned more than one final response")
				continue
			}
			final = &msg
			if resp.Usage != nil {
				result.Usage.PromptTokens += resp.Usage.PromptTokens
				result.Usage.CompletionTokens += resp.Usage.CompletionTokens
				result.Usage.TotalTokens += resp.Usage.TotalTokens
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil && genErr == nil {
				genErr = err
			}
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return core.Message{}, ctxErr
	}
	if genErr == nil && final == nil {
		genErr = errors.New("model returned no final response")
	}
	if genErr != nil {
		o.logger.Error("model.call.failed", "model", info.Name, "provider", info.Provider,
			"duration_ms", time.Since(start).Milliseconds(), "error", genErr.Error())
		return core.Message{}, fmt.Errorf("%w: %s: %w", core.ErrBackendUnavailable, info.Provider, genErr)
	}

	o.logger.Info("model.call.completed", "model", info.Name, "provider", info.Provider,
		"duration_ms", time.Since(start).Milliseconds(), "tool_calls", len(final.ToolCalls))

	state.Merge(*final)
	o.notify(conversationID, *final, false)
	return *final, nil
}

// normalizeAssistant forces the assistant role and makes sure the message and
// its tool calls carry ids. Snapshots of one stream share streamID.
func normalizeAssistant(msg core.Message, streamID *string) core.Message {
	msg = msg.Clone()
	msg.Role = core.RoleAssistant
	switch {
	case msg.ID != "":
		*streamID = msg.ID
	case *streamID != "":
		msg.ID = *streamID
	default:
		*streamID = core.NewID()
		msg.ID = *streamID
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = core.NewID()
		}
	}
	return msg
}

// runTools executes one round of tool calls. Every call sees the fields as
// they were before the round; results and commands are applied in call
// order once the whole round has finished.
func (o *Orchestrator) runTools(
	ctx context.Context,
	conversationID string,
	state *core.ConversationState,
	calls []core.ToolCall,
	tracker *phaseTracker,
) error {
	snapshot := state.Clone()

	var (
		waitMu  sync.Mutex
		waiting int
	)
	humanHook := func(w bool) {
		waitMu.Lock()
		defer waitMu.Unlock()
		if w {
			waiting++
		} else {
			waiting--
		}
		if waiting > 0 {
			tracker.to(PhaseAwaitingHuman)
		} else {
			tracker.to(PhaseAwaitingTools)
		}
	}

	outcomes := o.executor.Execute(ctx, calls, func(call core.ToolCall) tool.Outcome {
		tc := core.NewToolContext(ctx, conversationID, call, snapshot, o.logger).WithHumanHook(humanHook)
		return o.tools.Invoke(tc, call)
	})

	if err := ctx.Err(); err != nil {
		return err
	}

	for i, out := range outcomes {
		if out.Message.ID == "" { // skipped call
			err := fmt.Errorf("%w: call was not executed", core.ErrToolExecution)
			out = tool.Outcome{Message: core.NewToolErrorMessage(calls[i].ID, calls[i].Name, err), Err: err}
		}
		if out.Err != nil {
			o.logger.Warn("tool.call.error", "conversation_id", conversationID, "tool", calls[i].Name,
				"function_call_id", calls[i].ID, "error", out.Err.Error())
		}
		state.Merge(out.Message)
		state.ApplyCommand(out.Command)
		o.notify(conversationID, out.Message, false)
	}

	return nil
}

func (o *Orchestrator) notify(conversationID string, msg core.Message, partial bool) {
	if o.opts.OnMessage != nil {
		o.opts.OnMessage(conversationID, msg, partial)
	}
}
