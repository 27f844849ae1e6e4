// Package agentloop provides a high-level façade over the agent runtime
// (providers, tools, extensions, sessions & logging) enabling rapid
// construction of multi-turn LLM agents. Most applications interact with this
// package by:
//  1. Creating a Runtime via New() with a model provider
//  2. Registering tools and loading extensions
//  3. Running prompts asynchronously (Prompt) or synchronously (PromptSync)
//
// The façade delegates the turn loop to agent.Agent while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable session store
// and a structured logger.
package agentloop

import (
	"context"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/extension"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/session"
	"github.com/hupe1980/agentloop/tool"
)

// Options configures the Runtime instance.
type Options struct {
	// SystemPrompt is sent with every provider request.
	SystemPrompt string

	// Model overrides the provider's default model id when non-empty.
	Model string

	// MaxTurns bounds each prompt's turn loop.
	MaxTurns int

	// MaxToolCallsPerTurn caps tool executions within a single turn.
	MaxToolCallsPerTurn int

	// MaxTokens is the per-request output token budget.
	MaxTokens int64

	// Tools are registered directly; extension tools are added on top.
	Tools []tool.Tool

	// Extensions are loaded into a pipeline in order.
	Extensions []extension.Extension

	// Store persists history (defaults to an in-memory store).
	Store session.Store

	// SessionID selects the session; a fresh id is generated when empty.
	SessionID string

	// Logger (defaults to a slog-backed logger if nil).
	Logger logging.Logger
}

// Runtime is the high-level façade aggregating the agent loop, the extension
// pipeline and the session store.
type Runtime struct {
	opts     Options
	agent    *agent.Agent
	pipeline *extension.Pipeline
}

// New creates a Runtime around the given provider. Extension loading errors
// are returned before any agent work happens.
func New(provider model.Provider, optFns ...func(o *Options)) (*Runtime, error) {
	opts := Options{
		Store:  session.NewInMemoryStore(),
		Logger: logging.NewDefaultSlogLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	pipeline := extension.NewPipeline(func(o *extension.PipelineOptions) {
		o.Logger = opts.Logger
	})
	if err := pipeline.Load(opts.Extensions...); err != nil {
		return nil, err
	}

	a := agent.New(provider, func(o *agent.Options) {
		o.SystemPrompt = opts.SystemPrompt
		o.Model = opts.Model
		if opts.MaxTurns > 0 {
			o.MaxTurns = opts.MaxTurns
		}
		if opts.MaxToolCallsPerTurn > 0 {
			o.MaxToolCallsPerTurn = opts.MaxToolCallsPerTurn
		}
		if opts.MaxTokens > 0 {
			o.MaxTokens = opts.MaxTokens
		}
		o.Tools = opts.Tools
		o.Pipeline = pipeline
		o.Store = opts.Store
		o.SessionID = opts.SessionID
		o.Logger = opts.Logger
	})

	return &Runtime{opts: opts, agent: a, pipeline: pipeline}, nil
}

// Agent exposes the underlying agent for advanced use.
func (r *Runtime) Agent() *agent.Agent { return r.agent }

// SessionID returns the active session id.
func (r *Runtime) SessionID() string { return r.agent.SessionID() }

// Subscribe registers a lifecycle event callback across all prompts. The
// returned function unsubscribes.
func (r *Runtime) Subscribe(cb func(core.Event)) func() { return r.agent.Subscribe(cb) }

// Prompt starts an asynchronous run returning the lifecycle event channel.
func (r *Runtime) Prompt(ctx context.Context, text string) <-chan core.Event {
	return r.agent.Prompt(ctx, text)
}

// PromptSync is a synchronous helper that drains the event channel and
// returns the final assistant text along with all collected events.
func (r *Runtime) PromptSync(ctx context.Context, text string) (string, []core.Event, error) {
	var events []core.Event
	var final core.AssistantMessage

	for ev := range r.agent.Prompt(ctx, text) {
		events = append(events, ev)
		if end, ok := ev.(core.MessageEndEvent); ok {
			final = end.Message
		}
	}
	if err := ctx.Err(); err != nil {
		return "", events, err
	}
	return final.Text(), events, nil
}

// ExecuteCommand runs an extension-contributed command.
func (r *Runtime) ExecuteCommand(ctx context.Context, name, args string) (string, error) {
	return r.pipeline.ExecuteCommand(ctx, name, args)
}

// Commands lists the commands contributed by loaded extensions.
func (r *Runtime) Commands() []extension.Command { return r.pipeline.Commands() }

// Shutdown notifies extensions that the session is over.
func (r *Runtime) Shutdown(ctx context.Context) { r.agent.Shutdown(ctx) }
