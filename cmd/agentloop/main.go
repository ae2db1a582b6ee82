// agentloop is an interactive chat driver: one line per turn, resumable per
// conversation id, with a search tool and human confirmation of recorded
// facts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentloop"
	"github.com/hupe1980/agentloop/config"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/human"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	anthropicmodel "github.com/hupe1980/agentloop/model/anthropic"
	openaimodel "github.com/hupe1980/agentloop/model/openai"
	"github.com/hupe1980/agentloop/search"
	"github.com/hupe1980/agentloop/session"
	"github.com/hupe1980/agentloop/tool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentloop: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, false).
		WithComponent("cli").
		WithConversation(cfg.ConversationID)
	if !cfg.DotEnvLoaded {
		logger.Info("No .env file found, using environment variables")
	}

	store, closeStore, err := newStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	index := search.NewIndex()
	if cfg.SearchCorpus != "" {
		n, err := index.LoadFile(cfg.SearchCorpus)
		if err != nil {
			return err
		}
		logger.Info("cli.search.corpus_loaded", "path", cfg.SearchCorpus, "documents", n)
	}

	in := human.NewLineReader(os.Stdin)
	channel, stopHuman := newHumanChannel(cfg, in, logger)
	defer stopHuman()

	printer := &printer{out: os.Stdout}
	agent := agentloop.New(newModel(cfg), func(o *agentloop.Options) {
		o.Store = store
		o.Tools = []tool.Tool{
			tool.NewSearchTool(index),
			tool.NewHumanAssistanceTool(channel),
		}
		o.Instructions = cfg.Instructions
		o.MaxCycles = cfg.MaxCycles
		o.Parallel = cfg.ParallelTools
		o.Stream = cfg.Stream
		o.Logger = logger
		o.OnMessage = printer.onMessage
	})

	// A signal during a turn cancels that turn; a signal while waiting for
	// input ends the session so the deferred cleanup runs.
	ctx, quit := context.WithCancel(context.Background())
	defer quit()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if !agent.Cancel(cfg.ConversationID) {
				quit()
			}
		}
	}()

	return chat(ctx, agent, cfg.ConversationID, in, os.Stdout, logger)
}

// chat reads one user message per line until EOF, an exit command or the
// end of ctx.
func chat(ctx context.Context, agent *agentloop.Agent, conversationID string, in *human.LineReader, out io.Writer, logger *logging.ContextLogger) error {
	for {
		fmt.Fprint(out, "User: ")
		line, err := in.ReadLine(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case ctx.Err() != nil:
			fmt.Fprintln(out, "\nGoodbye!")
			return nil
		default:
			return fmt.Errorf("read input: %w", err)
		}
		input := strings.TrimSpace(line)

		if isExit(input) {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		if input == "" {
			continue
		}

		start := time.Now()
		res, turnErr := agent.RunTurn(ctx, conversationID, input)
		switch {
		case turnErr == nil:
		case errors.Is(turnErr, core.ErrBackendUnavailable):
			fmt.Fprintf(out, "An error occurred: %v\n", turnErr)
			fmt.Fprintln(out, "Connection error. Please ensure the model server is running.")
		case errors.Is(turnErr, core.ErrCycleLimitExceeded):
			fmt.Fprintln(out, "The assistant stopped after too many tool rounds.")
		case errors.Is(turnErr, context.Canceled):
			fmt.Fprintln(out, "\n(turn cancelled)")
		default:
			fmt.Fprintf(out, "An error occurred: %v\n", turnErr)
		}

		cycles := 0
		if res != nil {
			cycles = res.Cycles
		}
		logger.LogTurn(cycles, time.Since(start), turnErr)

		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
	}
}

// isExit reports whether input ends the session.
func isExit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", "q":
		return true
	}
	return false
}

func newModel(cfg *config.Config) model.Model {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.Model = anthropicsdk.Model(cfg.Model)
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		})
	default:
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			o.Model = cfg.Model
			o.Provider = cfg.Provider
			if cfg.BaseURL != "" {
				openaimodel.WithBaseURL(cfg.BaseURL)(o)
			}
			switch {
			case cfg.APIKey != "":
				openaimodel.WithAPIKey(cfg.APIKey)(o)
			case cfg.Provider == config.ProviderOllama:
				openaimodel.WithAPIKey("ollama")(o)
			}
		})
	}
}

func newStore(cfg *config.Config, logger logging.Logger) (core.StateStore, func(), error) {
	if cfg.DBPath == "" {
		return session.NewInMemoryStore(), func() {}, nil
	}

	store, err := session.NewSQLiteStore(cfg.DBPath, func(o *session.SQLiteOptions) {
		o.Logger = logger
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("database health check: %w", err)
	}
	logger.Info("cli.store.sqlite", "path", cfg.DBPath)

	return store, func() {
		if err := store.Close(); err != nil {
			logger.Error("cli.store.close_failed", "error", err.Error())
		}
	}, nil
}

// newHumanChannel answers confirmation requests on the console unless a
// listen address is configured, in which case they are parked in a queue
// served over HTTP.
func newHumanChannel(cfg *config.Config, in *human.LineReader, logger logging.Logger) (human.Channel, func()) {
	if cfg.HumanAddr == "" {
		return human.NewConsoleChannel(in, os.Stdout), func() {}
	}

	queue := human.NewQueue(func(req human.Request) {
		fmt.Fprintf(os.Stdout, "\nWaiting for confirmation: POST /api/human/requests/%s/decision on %s\n", req.ID, cfg.HumanAddr)
	})
	srv := &http.Server{
		Addr:              cfg.HumanAddr,
		Handler:           human.NewHandler(queue).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("cli.human.listen", "addr", cfg.HumanAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("cli.human.server_failed", "error", err.Error())
		}
	}()

	return queue, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("cli.human.shutdown_failed", "error", err.Error())
		}
	}
}

// printer renders streamed assistant snapshots incrementally and prints
// tool results as they are merged.
type printer struct {
	out     io.Writer
	current string
	printed int
}

func (p *printer) onMessage(_ string, msg core.Message, partial bool) {
	switch msg.Role {
	case core.RoleAssistant:
		if msg.ID != p.current {
			p.current = msg.ID
			p.printed = 0
			if msg.Content != "" || partial {
				fmt.Fprint(p.out, "Assistant: ")
			}
		}
		if len(msg.Content) > p.printed {
			fmt.Fprint(p.out, msg.Content[p.printed:])
			p.printed = len(msg.Content)
		}
		if partial {
			return
		}
		if p.printed > 0 {
			fmt.Fprintln(p.out)
		}
		for _, c := range msg.ToolCalls {
			fmt.Fprintf(p.out, "  -> %s(%s)\n", c.Name, c.Arguments)
		}
	case core.RoleTool:
		fmt.Fprintf(p.out, "Tool (%s): %s\n", msg.Name, msg.Content)
	}
}
