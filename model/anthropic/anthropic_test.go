package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

func TestBuildMessages_GroupsToolResultsIntoUserMessage(t *testing.T) {
	msgs := []core.Message{
		core.NewUserMessage("weather in SF and NYC?"),
		core.NewAssistantMessage("",
			core.ToolCall{ID: "a", Name: "search", Arguments: `{"query":"SF"}`},
			core.ToolCall{ID: "b", Name: "search", Arguments: `{"query":"NYC"}`},
		),
		core.NewToolMessage("a", "search", "sunny"),
		core.NewToolMessage("b", "search", "rainy"),
		core.NewAssistantMessage("SF sunny, NYC rainy"),
	}

	out := buildMessages(msgs)

	require.Len(t, out, 4)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
	assert.Len(t, out[1].Content, 2)
	assert.Equal(t, "user", string(out[2].Role))
	assert.Len(t, out[2].Content, 2)
	assert.Equal(t, "assistant", string(out[3].Role))
}

func TestBuildTools_SetsDescriptionAndRequired(t *testing.T) {
	tools := buildTools([]model.ToolSpec{{
		Name:        "search",
		Description: "Search the web",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []any{"query"},
		},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "search", tools[0].OfTool.Name)
	assert.Equal(t, []string{"query"}, tools[0].OfTool.InputSchema.Required)
}
