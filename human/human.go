package human

import (
	"context"
	"errors"
	"time"
)

// ErrRequestNotFound is returned when resolving an unknown or already
// resolved request.
var ErrRequestNotFound = errors.New("human request not found")

// Field is one proposed value awaiting confirmation.
type Field struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Request asks a person to confirm or correct a set of fields.
type Request struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ToolCallID     string    `json:"tool_call_id"`
	Fields         []Field   `json:"fields"`
	CreatedAt      time.Time `json:"created_at"`
}

// Decision is the person's answer. Corrections are keyed by field name and
// only consulted when Approved is false.
type Decision struct {
	Approved    bool              `json:"approved"`
	Corrections map[string]string `json:"corrections,omitempty"`
}

// Channel obtains a Decision for a Request. Ask blocks until a decision is
// available or ctx is done.
type Channel interface {
	Ask(ctx context.Context, req Request) (Decision, error)
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc func(ctx context.Context, req Request) (Decision, error)

// Ask implements Channel.
func (f ChannelFunc) Ask(ctx context.Context, req Request) (Decision, error) { return f(ctx, req) }
