package core

import "errors"

var (
	// ErrBackendUnavailable is returned when the model backend (or a backend a
	// turn cannot proceed without) is unreachable. It aborts the turn without
	// persisting partial output.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrToolExecution marks a tool that failed or produced malformed output.
	// It is recovered into a tool message; the turn continues.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrUnknownTool marks a call to a tool that is not registered. It is
	// handled like ErrToolExecution.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrCycleLimitExceeded is reported when the model/tool loop exceeds the
	// configured bound. The turn ends early with state persisted.
	ErrCycleLimitExceeded = errors.New("cycle limit exceeded")
)
