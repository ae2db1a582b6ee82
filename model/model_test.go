package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
)

func drain(t *testing.T, respCh <-chan Response, errCh <-chan error) ([]Response, error) {
	t.Helper()
	var out []Response
	for r := range respCh {
		out = append(out, r)
	}
	return out, <-errCh
}

func TestMockModel_StreamsSnapshotsWithSharedID(t *testing.T) {
	m := NewMockModel("mock", "mock").AddResponse("hello brave world")

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []core.Message{core.NewUserMessage("hi")},
		Stream:   true,
	})
	resps, err := drain(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, resps, 4)

	id := resps[0].Message.ID
	assert.Equal(t, "hello ", resps[0].Message.Content)
	assert.Equal(t, "hello brave ", resps[1].Message.Content)
	for _, r := range resps {
		assert.Equal(t, id, r.Message.ID)
	}
	last := resps[len(resps)-1]
	assert.False(t, last.Partial)
	assert.Equal(t, "hello brave world", last.Message.Content)
	assert.Equal(t, "stop", last.FinishReason)
}

func TestMockModel_ScriptedToolCallAndError(t *testing.T) {
	boom := errors.New("connection refused")
	m := NewMockModel("mock", "mock").
		AddResponse("", core.ToolCall{ID: "c1", Name: "search", Arguments: `{"query":"q"}`}).
		AddError(boom)

	respCh, errCh := m.Generate(context.Background(), Request{})
	resps, err := drain(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.True(t, resps[0].Message.HasToolCalls())
	assert.Equal(t, "tool_calls", resps[0].FinishReason)

	respCh, errCh = m.Generate(context.Background(), Request{})
	resps, err = drain(t, respCh, errCh)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, resps)
	assert.Len(t, m.Requests(), 2)
}

func TestMockModel_EchoFallback(t *testing.T) {
	m := NewMockModel("mock", "mock")

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []core.Message{core.NewUserMessage("ping")},
	})
	resps, err := drain(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, "Mock response to: ping", resps[0].Message.Content)
}

func TestMockModel_BlockHonoursCancellation(t *testing.T) {
	m := NewMockModel("mock", "mock").AddTurn(MockTurn{Block: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	respCh, errCh := m.Generate(ctx, Request{})
	_, err := drain(t, respCh, errCh)
	assert.ErrorIs(t, err, context.Canceled)
}
