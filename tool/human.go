package tool

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/human"
	"github.com/hupe1980/agentloop/internal/util"
)

// Response texts of the human assistance tool.
const (
	HumanVerified  = "Information verified as correct."
	HumanCorrected = "Information updated with user corrections."
)

// HumanField names a conversation field confirmed by a person.
type HumanField struct {
	Name  string // argument and conversation field key
	Label string // shown to the person
}

// HumanAssistanceOptions configure a HumanAssistanceTool.
type HumanAssistanceOptions struct {
	Name        string
	Description string
	Fields      []HumanField
}

// HumanAssistanceTool asks a person to confirm values proposed by the model
// and stores the confirmed (or corrected) values as conversation fields.
// All fields are written together or not at all.
type HumanAssistanceTool struct {
	channel human.Channel
	opts    HumanAssistanceOptions
}

// NewHumanAssistanceTool creates the tool. By default it confirms a name and
// a birthday.
func NewHumanAssistanceTool(ch human.Channel, optFns ...func(o *HumanAssistanceOptions)) *HumanAssistanceTool {
	opts := HumanAssistanceOptions{
		Name:        "human_assistance",
		Description: "Request assistance from a human to verify information before it is recorded.",
		Fields: []HumanField{
			{Name: "name", Label: "Name"},
			{Name: "birthday", Label: "Birthday"},
		},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &HumanAssistanceTool{channel: ch, opts: opts}
}

// Name implements Tool.
func (t *HumanAssistanceTool) Name() string { return t.opts.Name }

// Description implements Tool.
func (t *HumanAssistanceTool) Description() string { return t.opts.Description }

// Parameters implements Tool.
func (t *HumanAssistanceTool) Parameters() map[string]any {
	props := make(map[string]util.Property, len(t.opts.Fields))
	required := make([]string, 0, len(t.opts.Fields))
	for _, f := range t.opts.Fields {
		props[f.Name] = util.Property{Type: "string", Description: f.Label}
		required = append(required, f.Name)
	}
	return util.ObjectSchema(props, required...)
}

// Call implements Tool. Blank corrections keep the proposed value.
func (t *HumanAssistanceTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	req := human.Request{
		ID:             core.NewID(),
		ConversationID: tc.ConversationID(),
		ToolCallID:     tc.FunctionCallID(),
		Fields:         make([]human.Field, len(t.opts.Fields)),
	}
	for i, f := range t.opts.Fields {
		v, ok := args[f.Name]
		if !ok {
			return nil, NewToolError(t.opts.Name, fmt.Sprintf("missing argument %q", f.Name), CodeValidation)
		}
		req.Fields[i] = human.Field{Name: f.Name, Label: f.Label, Value: fmt.Sprint(v)}
	}

	var decision human.Decision
	err := tc.AwaitHuman(func() error {
		var askErr error
		decision, askErr = t.channel.Ask(tc.Context(), req)
		return askErr
	})
	if err != nil {
		return nil, fmt.Errorf("human assistance: %w", err)
	}

	for _, f := range req.Fields {
		value := f.Value
		if !decision.Approved {
			if c := strings.TrimSpace(decision.Corrections[f.Name]); c != "" {
				value = c
			}
		}
		tc.SetState(f.Name, value)
	}

	if decision.Approved {
		return HumanVerified, nil
	}
	return HumanCorrected, nil
}
