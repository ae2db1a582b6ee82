package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
)

// Outcome is the result of executing one tool call: the tool message to
// merge and the field patch to apply. Command is nil whenever Err is set.
type Outcome struct {
	Message core.Message
	Command *core.PendingCommand
	Err     error
}

// Registry maps tool names to tools and executes model requested calls.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry holding tools. Duplicate names panic.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs describes the registered tools to the model, in registration order.
func (r *Registry) Specs() []model.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]model.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, model.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}
	return specs
}

// Invoke executes call and never fails: unknown tools, malformed arguments,
// tool errors and panics all become an error tool message without a
// command, so the model can react and the turn continues.
func (r *Registry) Invoke(tc *core.ToolContext, call core.ToolCall) Outcome {
	logger := tc.Logger()
	start := time.Now()

	t, ok := r.Get(call.Name)
	if !ok {
		err := fmt.Errorf("%w: %s", core.ErrUnknownTool, call.Name)
		logger.Warn("tool.invoke.unknown", "tool", call.Name, "fc_id", call.ID)
		return failed(call, err)
	}

	args, err := util.ParseArguments(call.Arguments)
	if err != nil {
		logger.Warn("tool.invoke.bad_arguments", "tool", call.Name, "fc_id", call.ID, "error", err.Error())
		return failed(call, fmt.Errorf("%w: %v", core.ErrToolExecution, err))
	}

	result, err := safeCall(t, tc, args)
	if err != nil {
		tc.Discard()
		logger.Error("tool.invoke.failed", "tool", call.Name, "fc_id", call.ID, "error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds())
		return failed(call, err)
	}

	content, err := render(result)
	if err != nil {
		tc.Discard()
		return failed(call, fmt.Errorf("%w: render result: %v", core.ErrToolExecution, err))
	}

	logger.Debug("tool.invoke.completed", "tool", call.Name, "fc_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds())

	return Outcome{
		Message: core.NewToolMessage(call.ID, call.Name, content),
		Command: tc.Command(),
	}
}

func failed(call core.ToolCall, err error) Outcome {
	return Outcome{Message: core.NewToolErrorMessage(call.ID, call.Name, err), Err: err}
}

func safeCall(t Tool, tc *core.ToolContext, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic in %s: %v", core.ErrToolExecution, t.Name(), rec)
		}
	}()
	result, err = t.Call(tc, args)
	if err != nil && !isToolErr(err) {
		err = fmt.Errorf("%w: %w", core.ErrToolExecution, err)
	}
	return result, err
}

func isToolErr(err error) bool {
	var toolErr *ToolError
	return errors.As(err, &toolErr)
}

// render turns a tool result into message content: strings verbatim,
// everything else as JSON.
func render(v any) (string, error) {
	switch r := v.(type) {
	case nil:
		return "", nil
	case string:
		return r, nil
	case []byte:
		return string(r), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
