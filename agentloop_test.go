package agentloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/internal/testutil"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/session"
	"github.com/hupe1980/agentloop/tool"
)

func TestAgent_RunTurnWithDefaults(t *testing.T) {
	ctx := context.Background()
	a := New(model.NewMockModel("echo", "mock"))

	assert.Equal(t, flow.PhaseIdle, a.Phase("c1"))

	res, err := a.RunTurn(ctx, "c1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello", res.Reply.Content)
	assert.Equal(t, flow.PhaseDone, a.Phase("c1"))

	state, err := a.State(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, state.Messages, 2)

	assert.False(t, a.Cancel("c1"), "no turn is running")
}

func TestAgent_ToolsAndStore(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	m := model.NewMockModel("mock", "mock").
		AddResponse("", testutil.Call("c1", "remember", `{}`)).
		AddResponse("saved")
	remember := tool.NewFunctionTool("remember", "stores a flag", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		tc.SetState("flag", true)
		return "ok", nil
	})

	a := New(m, func(o *Options) {
		o.Store = store
		o.Tools = []tool.Tool{remember}
	})

	_, err := a.RunTurn(ctx, "c2", "remember this")
	require.NoError(t, err)

	cp, ok := store.Checkpoint("c2")
	require.True(t, ok)
	assert.Equal(t, true, cp.State.ExtraFields["flag"])
}

func TestAgent_CancelAbandonsTurn(t *testing.T) {
	store := session.NewInMemoryStore()
	m := model.NewMockModel("mock", "mock").AddTurn(model.MockTurn{Block: true})

	var phases []flow.Phase
	entered := make(chan struct{})
	a := New(m, func(o *Options) {
		o.Store = store
		o.OnTransition = func(_ string, _, to flow.Phase) {
			phases = append(phases, to)
			if to == flow.PhaseAwaitingModel {
				close(entered)
			}
		}
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := a.RunTurn(context.Background(), "c3", "hello")
		errCh <- err
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("turn did not start")
	}
	assert.Equal(t, flow.PhaseAwaitingModel, a.Phase("c3"))
	assert.True(t, a.Cancel("c3"))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("turn was not cancelled")
	}

	_, ok := store.Checkpoint("c3")
	assert.False(t, ok)
	assert.Equal(t, flow.PhaseDone, a.Phase("c3"))
	assert.Equal(t, []flow.Phase{flow.PhaseAwaitingModel, flow.PhaseDone}, phases)
}
