package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/tool"
)

// FunctionExecutor executes one round of tool calls. Implementations must:
//   - Respect ctx cancellation (calls not yet started are skipped)
//   - Never panic (recover and report an error outcome)
//   - Return one outcome per call, indexed like calls
type FunctionExecutor interface {
	Execute(ctx context.Context, calls []core.ToolCall, invoke func(core.ToolCall) tool.Outcome) []tool.Outcome
}

// FunctionExecutorConfig configures the default executor.
type FunctionExecutorConfig struct {
	MaxParallel    int  // 1 => sequential; 0 or <1 => one goroutine per call
	LogStartEvents bool // log a start line per call
	Logger         logging.Logger
}

type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs an executor bounded by
// cfg.MaxParallel. Outcomes always come back in call order regardless of
// completion order.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &parallelFunctionExecutor{cfg: cfg}
}

func (e *parallelFunctionExecutor) Execute(
	ctx context.Context,
	calls []core.ToolCall,
	invoke func(core.ToolCall) tool.Outcome,
) []tool.Outcome {
	n := len(calls)
	results := make([]tool.Outcome, n)
	if n == 0 {
		return results
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	batchStart := time.Now()

	// Sequential path: no goroutines.
	if maxPar == 1 {
		for i, call := range calls {
			if ctx.Err() != nil {
				break
			}
			results[i] = e.run(call, invoke)
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, maxPar)

		for i := range calls {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, call core.ToolCall) {
				defer wg.Done()
				defer func() { <-sem }()
				if ctx.Err() != nil {
					return
				}
				results[idx] = e.run(call, invoke)
			}(i, calls[i])
		}

		wg.Wait()
	}

	e.cfg.Logger.Debug(
		"flow.tools.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func (e *parallelFunctionExecutor) run(call core.ToolCall, invoke func(core.ToolCall) tool.Outcome) (out tool.Outcome) {
	if e.cfg.LogStartEvents {
		e.cfg.Logger.Info("flow.tool.start", "tool", call.Name, "function_call_id", call.ID)
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: panic recovered: %v", core.ErrToolExecution, r)
			e.cfg.Logger.Error("flow.tool.panic", "tool", call.Name, "recover", r)
			out = tool.Outcome{Message: core.NewToolErrorMessage(call.ID, call.Name, err), Err: err}
		}
		e.cfg.Logger.Info(
			"flow.tool.executed",
			"tool", call.Name,
			"function_call_id", call.ID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", out.Err != nil,
		)
	}()

	return invoke(call)
}
