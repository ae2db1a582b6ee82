package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/human"
	"github.com/hupe1980/agentloop/internal/testutil"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/session"
	"github.com/hupe1980/agentloop/tool"
)

func weatherTool() tool.Tool {
	return tool.NewFunctionTool("get_weather", "Current weather for a city",
		util.ObjectSchema(map[string]util.Property{
			"city": {Type: "string", Description: "City name"},
		}, "city"),
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return fmt.Sprintf("sunny, 21C in %s", args["city"]), nil
		})
}

type transitions struct {
	mu    sync.Mutex
	steps []Phase
}

func (tr *transitions) observe(_ string, from, to Phase) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.steps) == 0 {
		tr.steps = append(tr.steps, from)
	}
	tr.steps = append(tr.steps, to)
}

func (tr *transitions) list() []Phase {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]Phase(nil), tr.steps...)
}

func TestRunTurn_WeatherScenario(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	m := model.NewMockModel("mock", "mock").
		AddResponse("", testutil.Call("call_1", "get_weather", `{"city":"Berlin"}`)).
		AddResponse("It is sunny in Berlin.")
	tr := &transitions{}

	o := NewOrchestrator(m, tool.NewRegistry(weatherTool()), store, func(o *Options) {
		o.OnTransition = tr.observe
	})

	res, err := o.RunTurn(ctx, "thread-1", "What's the weather in Berlin?")
	require.NoError(t, err)

	assert.Equal(t, StopEndTurn, res.StopReason)
	assert.Equal(t, 2, res.Cycles)
	assert.Equal(t, "It is sunny in Berlin.", res.Reply.Content)

	cp, ok := store.Checkpoint("thread-1")
	require.True(t, ok)
	msgs := cp.State.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, []core.Role{core.RoleUser, core.RoleAssistant, core.RoleTool, core.RoleAssistant}, testutil.Roles(msgs))
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Equal(t, "sunny, 21C in Berlin", msgs[2].Content)
	assert.False(t, msgs[2].IsError)

	assert.Equal(t, []Phase{PhaseIdle, PhaseAwaitingModel, PhaseAwaitingTools, PhaseAwaitingModel, PhaseDone}, tr.list())

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "get_weather", reqs[0].Tools[0].Name)
	assert.Len(t, reqs[1].Messages, 3)
}

func TestRunTurn_HumanCorrection(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	var asked human.Request
	channel := human.ChannelFunc(func(_ context.Context, req human.Request) (human.Decision, error) {
		asked = req
		return human.Decision{Corrections: map[string]string{
			"name":     "Ada Lovelace",
			"birthday": "Dec 1815",
		}}, nil
	})
	m := model.NewMockModel("mock", "mock").
		AddResponse("", testutil.Call("call_h", "human_assistance", `{"name":"Ada","birthday":"1815"}`)).
		AddResponse("Thanks, noted.")
	tr := &transitions{}

	o := NewOrchestrator(m, tool.NewRegistry(tool.NewHumanAssistanceTool(channel)), store, func(o *Options) {
		o.OnTransition = tr.observe
	})

	_, err := o.RunTurn(ctx, "thread-h", "Look up when Ada was born.")
	require.NoError(t, err)

	assert.Equal(t, "thread-h", asked.ConversationID)
	assert.Equal(t, "call_h", asked.ToolCallID)
	require.Len(t, asked.Fields, 2)
	assert.Equal(t, "Ada", asked.Fields[0].Value)

	cp, ok := store.Checkpoint("thread-h")
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", cp.State.ExtraFields["name"])
	assert.Equal(t, "Dec 1815", cp.State.ExtraFields["birthday"])
	assert.Equal(t, tool.HumanCorrected, cp.State.Messages[2].Content)

	assert.Contains(t, tr.list(), PhaseAwaitingHuman)
}

func TestRunTurn_HumanFailureLeavesFieldsUntouched(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	seed := testutil.NewStateBuilder().Field("name", "Grace").Build()
	require.NoError(t, store.Save(ctx, "thread-x", seed))

	channel := human.ChannelFunc(func(context.Context, human.Request) (human.Decision, error) {
		return human.Decision{}, errors.New("operator went home")
	})
	m := model.NewMockModel("mock", "mock").
		AddResponse("", testutil.Call("c1", "human_assistance", `{"name":"Ada","birthday":"1815"}`)).
		AddResponse("Could not verify.")

	o := NewOrchestrator(m, tool.NewRegistry(tool.NewHumanAssistanceTool(channel)), store)
	_, err := o.RunTurn(ctx, "thread-x", "hi")
	require.NoError(t, err)

	cp, _ := store.Checkpoint("thread-x")
	assert.Equal(t, "Grace", cp.State.ExtraFields["name"])
	_, hasBirthday := cp.State.ExtraFields["birthday"]
	assert.False(t, hasBirthday)
	assert.True(t, cp.State.Messages[2].IsError)
}

func TestRunTurn_ToolFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	failing := tool.NewFunctionTool("flaky", "always fails", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, errors.New("upstream timeout")
	})
	m := model.NewMockModel("mock", "mock").
		AddResponse("",
			testutil.Call("c1", "flaky", `{}`),
			testutil.Call("c2", "does_not_exist", `{}`),
			testutil.Call("c3", "get_weather", `not json`),
		).
		AddResponse("Sorry, tools are broken.")

	o := NewOrchestrator(m, tool.NewRegistry(failing, weatherTool()), store)
	res, err := o.RunTurn(ctx, "thread-f", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, tools are broken.", res.Reply.Content)

	msgs := res.State.Messages
	require.Len(t, msgs, 6)
	for i, id := range []string{"c1", "c2", "c3"} {
		tm := msgs[2+i]
		assert.Equal(t, core.RoleTool, tm.Role)
		assert.Equal(t, id, tm.ToolCallID)
		assert.True(t, tm.IsError)
		assert.Contains(t, tm.Content, "Error: ")
	}
	assert.Contains(t, msgs[3].Content, "unknown tool")
}

func TestRunTurn_CycleLimit(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	m := model.NewMockModel("mock", "mock")
	for i := 0; i < 3; i++ {
		m.AddResponse("", testutil.Call(fmt.Sprintf("c%d", i), "get_weather", `{"city":"Oslo"}`))
	}

	o := NewOrchestrator(m, tool.NewRegistry(weatherTool()), store, func(o *Options) {
		o.MaxCycles = 2
	})

	res, err := o.RunTurn(ctx, "thread-c", "loop")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCycleLimitExceeded)
	require.NotNil(t, res)
	assert.Equal(t, StopCycleLimit, res.StopReason)
	assert.Equal(t, 2, res.Cycles)
	assert.Len(t, m.Requests(), 2)

	cp, ok := store.Checkpoint("thread-c")
	require.True(t, ok)
	assert.Len(t, cp.State.Messages, 5)
}

func TestRunTurn_BackendUnavailablePersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	m := model.NewMockModel("mock", "ollama").AddError(errors.New("connection refused"))

	o := NewOrchestrator(m, nil, store)
	res, err := o.RunTurn(ctx, "thread-b", "hello")

	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	_, ok := store.Checkpoint("thread-b")
	assert.False(t, ok)
}

func TestRunTurn_BackendFailureKeepsEarlierCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	m := model.NewMockModel("mock", "mock").
		AddResponse("first answer").
		AddError(errors.New("boom"))

	o := NewOrchestrator(m, nil, store)
	_, err := o.RunTurn(ctx, "thread-k", "one")
	require.NoError(t, err)

	_, err = o.RunTurn(ctx, "thread-k", "two")
	require.ErrorIs(t, err, core.ErrBackendUnavailable)

	cp, _ := store.Checkpoint("thread-k")
	assert.Equal(t, 1, cp.Step)
	assert.Len(t, cp.State.Messages, 2)
}

func TestRunTurn_CancellationPersistsNothing(t *testing.T) {
	store := session.NewInMemoryStore()
	m := model.NewMockModel("mock", "mock").AddTurn(model.MockTurn{Block: true})
	o := NewOrchestrator(m, nil, store)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	res, err := o.RunTurn(ctx, "thread-z", "hello")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrBackendUnavailable)
	assert.Nil(t, res)
	_, ok := store.Checkpoint("thread-z")
	assert.False(t, ok)
}

func TestRunTurn_CancelledDuringToolsPersistsNothing(t *testing.T) {
	store := session.NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	stuck := tool.NewFunctionTool("stuck", "", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		cancel()
		<-tc.Context().Done()
		return nil, tc.Context().Err()
	})
	m := model.NewMockModel("mock", "mock").AddResponse("", testutil.Call("c1", "stuck", ""))

	o := NewOrchestrator(m, tool.NewRegistry(stuck), store)
	_, err := o.RunTurn(ctx, "thread-t", "hello")

	require.ErrorIs(t, err, context.Canceled)
	_, ok := store.Checkpoint("thread-t")
	assert.False(t, ok)
}

func TestRunTurn_ConversationsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	o := NewOrchestrator(model.NewMockModel("echo", "mock"), nil, store)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conv-%d", i)
			for j := 0; j < 3; j++ {
				_, err := o.RunTurn(ctx, id, fmt.Sprintf("%s-msg-%d", id, j))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("conv-%d", i)
		cp, ok := store.Checkpoint(id)
		require.True(t, ok)
		require.Len(t, cp.State.Messages, 6)
		for j := 0; j < 3; j++ {
			input := fmt.Sprintf("%s-msg-%d", id, j)
			assert.Equal(t, input, cp.State.Messages[2*j].Content)
			assert.Equal(t, "Mock response to: "+input, cp.State.Messages[2*j+1].Content)
		}
	}
}

func TestRunTurn_SameConversationIsSerialized(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	o := NewOrchestrator(model.NewMockModel("echo", "mock"), nil, store)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := o.RunTurn(ctx, "shared", fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	cp, ok := store.Checkpoint("shared")
	require.True(t, ok)
	require.Len(t, cp.State.Messages, 10)
	for j := 0; j < 5; j++ {
		user, reply := cp.State.Messages[2*j], cp.State.Messages[2*j+1]
		assert.Equal(t, core.RoleUser, user.Role)
		assert.Equal(t, "Mock response to: "+user.Content, reply.Content)
	}
}

func TestRunTurn_StreamingMergesPartialsInPlace(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	m := model.NewMockModel("mock", "mock").AddResponse("one two three four")

	var (
		mu       sync.Mutex
		partials []string
	)
	o := NewOrchestrator(m, nil, store, func(o *Options) {
		o.Stream = true
		o.OnMessage = func(_ string, msg core.Message, partial bool) {
			if partial {
				mu.Lock()
				partials = append(partials, msg.Content)
				mu.Unlock()
			}
		}
	})

	res, err := o.RunTurn(ctx, "thread-s", "count")
	require.NoError(t, err)

	assert.Equal(t, []string{"one ", "one two ", "one two three ", "one two three four"}, partials)
	require.Len(t, res.State.Messages, 2)
	assert.Equal(t, "one two three four", res.State.Messages[1].Content)
	assert.Equal(t, res.Reply.ID, res.State.Messages[1].ID)
	assert.True(t, m.Requests()[0].Stream)
}

func TestRunTurn_ParallelToolsKeepCallOrder(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	sleeper := func(name string, d time.Duration) tool.Tool {
		return tool.NewFunctionTool(name, "", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
			time.Sleep(d)
			tc.SetState(name, "done")
			return name, nil
		})
	}
	m := model.NewMockModel("mock", "mock").
		AddResponse("",
			testutil.Call("c1", "slow", ""),
			testutil.Call("c2", "medium", ""),
			testutil.Call("c3", "fast", ""),
		).
		AddResponse("all done")

	o := NewOrchestrator(m,
		tool.NewRegistry(sleeper("slow", 40*time.Millisecond), sleeper("medium", 20*time.Millisecond), sleeper("fast", 0)),
		store,
		func(o *Options) {
			o.Parallel = true
			o.MaxParallel = 3
		})

	res, err := o.RunTurn(ctx, "thread-p", "go")
	require.NoError(t, err)

	msgs := res.State.Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, []string{"slow", "medium", "fast"}, []string{msgs[2].Content, msgs[3].Content, msgs[4].Content})
	assert.Equal(t, "done", res.State.ExtraFields["slow"])
	assert.Equal(t, "done", res.State.ExtraFields["fast"])
}

func TestRunTurn_ToolsSeeFieldsFromBeforeTheRound(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	writer := tool.NewFunctionTool("writer", "", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		tc.SetState("color", "blue")
		return "ok", nil
	})
	var seen any
	reader := tool.NewFunctionTool("reader", "", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		seen, _ = tc.GetState("color")
		tc.SetState("color", "red")
		return "ok", nil
	})
	m := model.NewMockModel("mock", "mock").
		AddResponse("", testutil.Call("c1", "writer", ""), testutil.Call("c2", "reader", "")).
		AddResponse("done")

	o := NewOrchestrator(m, tool.NewRegistry(writer, reader), store)
	res, err := o.RunTurn(ctx, "thread-r", "go")
	require.NoError(t, err)

	assert.Nil(t, seen)
	assert.Equal(t, "red", res.State.ExtraFields["color"])
}

func TestRunTurn_InstructionsRenderFields(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	require.NoError(t, store.Save(ctx, "thread-i", testutil.NewStateBuilder().Field("name", "Ada Lovelace").Build()))
	m := model.NewMockModel("mock", "mock")

	o := NewOrchestrator(m, nil, store, func(o *Options) {
		o.Instructions = "You are a helpful assistant. The user is {{.name}}."
	})
	_, err := o.RunTurn(ctx, "thread-i", "hi")
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are a helpful assistant. The user is Ada Lovelace.", reqs[0].Instructions)
}

func TestRunTurn_ResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	m := model.NewMockModel("mock", "mock")
	o := NewOrchestrator(m, nil, store)

	_, err := o.RunTurn(ctx, "thread-1", "first")
	require.NoError(t, err)

	// a fresh orchestrator over the same store continues the dialogue
	o2 := NewOrchestrator(m, nil, store, func(o *Options) { o.MaxHistoryMessages = 2 })
	res, err := o2.RunTurn(ctx, "thread-1", "second")
	require.NoError(t, err)

	assert.Len(t, res.State.Messages, 4)
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 2)
	assert.Equal(t, "second", reqs[1].Messages[1].Content)
}
