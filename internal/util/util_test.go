package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type humanArgs struct {
	Name     string  `json:"name" description:"Full name"`
	Birthday string  `json:"birthday" description:"Date of birth"`
	Note     *string `json:"note" description:"Optional note"`
	Extra    int     `json:"extra,omitempty"`
	Skip     string  `json:"-"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(humanArgs{})

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "note")
	assert.NotContains(t, props, "Skip")
	assert.ElementsMatch(t, []string{"name", "birthday"}, schema["required"])
}

func TestValidateParameters(t *testing.T) {
	schema := ObjectSchema(map[string]Property{
		"query": {Type: "string"},
		"limit": {Type: "integer"},
		"mode":  {Type: "string", Enum: []string{"fast", "deep"}},
	}, "query")

	tests := []struct {
		name  string
		args  map[string]any
		field string
	}{
		{name: "ok", args: map[string]any{"query": "x", "limit": 2.0}},
		{name: "missing required", args: map[string]any{}, field: "query"},
		{name: "wrong type", args: map[string]any{"query": 1}, field: "query"},
		{name: "non integral", args: map[string]any{"query": "x", "limit": 2.5}, field: "limit"},
		{name: "enum", args: map[string]any{"query": "x", "mode": "slow"}, field: "mode"},
		{name: "extra allowed", args: map[string]any{"query": "x", "other": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.args, schema)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestValidateParameters_JSONDecodedRequired(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "integer"}},
		"required":   []any{"x"},
	}
	assert.Error(t, ValidateParameters(map[string]any{}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"x": 5}, schema))
}

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments(`{"query":"weather in SF"}`)
	require.NoError(t, err)
	assert.Equal(t, "weather in SF", args["query"])

	args, err = ParseArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = ParseArguments("null")
	require.NoError(t, err)
	assert.NotNil(t, args)

	_, err = ParseArguments("{not json")
	assert.Error(t, err)
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = RenderTemplate("User: {{default \"unknown\" .name}} {{.birthday}}", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "User: Ada ", out)

	_, err = RenderTemplate("{{", nil)
	assert.Error(t, err)
}
