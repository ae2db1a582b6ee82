// Package logging is the leveled logger used throughout agentloop.
//
// Components accept the small Logger interface and default to NoOpLogger.
// ContextLogger is the slog backed implementation used by the CLI; it adds
// component and conversation attributes plus helpers for turn, model and
// tool call records:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false).WithComponent("cli")
//	loop := agentloop.New(backend, func(o *agentloop.Options) { o.Logger = logger })
//
// Arguments after the message are alternating key/value pairs, as with slog.
package logging
