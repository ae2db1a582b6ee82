package human

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ConsoleChannel asks on a terminal. The reader is usually shared with the
// CLI loop so both consume the same input. A prompt returns as soon as ctx
// ends; a line typed afterwards goes to the next reader.
type ConsoleChannel struct {
	mu  sync.Mutex
	in  *LineReader
	out io.Writer
}

// NewConsoleChannel creates a channel reading answers from in and writing
// prompts to out.
func NewConsoleChannel(in *LineReader, out io.Writer) *ConsoleChannel {
	return &ConsoleChannel{in: in, out: out}
}

// Ask prints the proposed values and reads a y/n answer. Any answer starting
// with "y" approves; otherwise each field is asked for a correction.
func (c *ConsoleChannel) Ask(ctx context.Context, req Request) (Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts := make([]string, len(req.Fields))
	for i, f := range req.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Label, f.Value)
	}

	answer, err := c.prompt(ctx, fmt.Sprintf("Is the information correct? %s (y/n): ", strings.Join(parts, ", ")))
	if err != nil {
		return Decision{}, err
	}
	if strings.HasPrefix(strings.ToLower(answer), "y") {
		return Decision{Approved: true}, nil
	}

	corrections := make(map[string]string, len(req.Fields))
	for _, f := range req.Fields {
		v, err := c.prompt(ctx, fmt.Sprintf("Please provide the correct %s (current: %s): ", strings.ToLower(f.Label), f.Value))
		if err != nil {
			return Decision{}, err
		}
		corrections[f.Name] = v
	}

	return Decision{Corrections: corrections}, nil
}

func (c *ConsoleChannel) prompt(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := io.WriteString(c.out, text); err != nil {
		return "", err
	}
	line, err := c.in.ReadLine(ctx)
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
