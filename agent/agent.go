// Package agent implements the multi-turn runtime loop: stream a model
// response, accumulate it into an assistant message, execute requested tools,
// and decide whether to run another turn. Lifecycle events stream to the
// Prompt channel and to registered subscribers.
package agent

import (
	"context"
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/extension"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/session"
	"github.com/hupe1980/agentloop/tool"
)

// Options configure an Agent.
type Options struct {
	// SystemPrompt is sent with every provider request.
	SystemPrompt string
	// Model overrides the provider's default model id when non-empty.
	Model string
	// MaxTurns bounds one Prompt call. The loop never exceeds it, whatever
	// the continuation policy says.
	MaxTurns int
	// MaxToolCallsPerTurn caps how many tool calls a single turn may execute;
	// calls beyond the cap are dropped with a warning.
	MaxToolCallsPerTurn int
	// MaxTokens is the per-request output token budget.
	MaxTokens int64
	// Tools are directly registered tools; extension tools are added on top.
	Tools []tool.Tool
	// Pipeline is the optional extension pipeline.
	Pipeline *extension.Pipeline
	// Store persists history when set; SessionID selects the session.
	Store     session.Store
	SessionID string
	Logger    logging.Logger
}

// Agent drives the turn loop against one provider. History is append-only
// and owned by the agent; the only rewrite path is Compact.
type Agent struct {
	provider model.Provider
	opts     Options
	executor *Executor

	// runMu serializes Prompt calls; the loop is single-flight.
	runMu sync.Mutex

	mu      sync.RWMutex
	history []core.Message

	subMu       sync.Mutex
	subscribers map[int]func(core.Event)
	nextSubID   int
}

// New creates an agent. When a session store is configured, existing history
// for the session id is loaded; extensions see a session_start event.
func New(provider model.Provider, optFns ...func(o *Options)) *Agent {
	opts := Options{
		MaxTurns:            10,
		MaxToolCallsPerTurn: 20,
		MaxTokens:           16384,
		Logger:              logging.NewDefaultSlogLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.SessionID == "" {
		opts.SessionID = core.NewID()
	}

	tools := append([]tool.Tool{}, opts.Tools...)
	if opts.Pipeline != nil {
		tools = append(tools, opts.Pipeline.Tools()...)
	}

	a := &Agent{
		provider:    provider,
		opts:        opts,
		executor:    NewExecutor(tools, opts.Pipeline, opts.Logger),
		subscribers: make(map[int]func(core.Event)),
	}

	if opts.Store != nil {
		if sess, err := opts.Store.Get(opts.SessionID); err == nil {
			a.history = sess.Messages
		} else {
			opts.Logger.Warn("failed to load session", "session_id", opts.SessionID, "error", err)
		}
	}
	if opts.Pipeline != nil {
		opts.Pipeline.Emit(context.Background(), &extension.SessionStartEvent{SessionID: opts.SessionID})
	}
	return a
}

// Messages returns a copy of the conversation history.
func (a *Agent) Messages() []core.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]core.Message, len(a.history))
	copy(out, a.history)
	return out
}

// SessionID returns the session this agent appends to.
func (a *Agent) SessionID() string { return a.opts.SessionID }

// Subscribe registers a callback invoked for every lifecycle event, across
// all Prompt calls. The returned function unsubscribes. Callback panics are
// logged and never disturb the run.
func (a *Agent) Subscribe(cb func(core.Event)) func() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	id := a.nextSubID
	a.nextSubID++
	a.subscribers[id] = cb
	return func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		delete(a.subscribers, id)
	}
}

// Prompt runs the turn loop for one user prompt. The returned channel carries
// lifecycle events in emission order and is closed when the run ends.
// Concurrent Prompt calls serialize.
func (a *Agent) Prompt(ctx context.Context, text string) <-chan core.Event {
	events := make(chan core.Event, 64)
	go func() {
		defer close(events)
		a.runMu.Lock()
		defer a.runMu.Unlock()

		emit := func(ev core.Event) {
			a.publish(ev)
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		a.run(ctx, text, emit)
	}()
	return events
}

// Shutdown notifies extensions that the session is over. Call once when the
// agent is no longer needed.
func (a *Agent) Shutdown(ctx context.Context) {
	if pipe := a.opts.Pipeline; pipe != nil {
		pipe.Emit(ctx, &extension.SessionEndEvent{SessionID: a.opts.SessionID})
		pipe.Emit(ctx, &extension.SessionShutdownEvent{})
	}
}

// Compact replaces the first n history messages with the given summary
// messages, the only permitted history rewrite. Extensions may veto via
// before_compact; the compact event then reports the rewritten history.
// Producing the summary is the caller's job. Returns false when vetoed.
func (a *Agent) Compact(ctx context.Context, n int, summary ...core.Message) bool {
	pipe := a.opts.Pipeline
	if pipe != nil && pipe.HasHandlers(extension.KindBeforeCompact) {
		ev := pipe.Emit(ctx, &extension.BeforeCompactEvent{Messages: a.Messages()}).(*extension.BeforeCompactEvent)
		if ev.Cancelled() {
			a.opts.Logger.Info("compaction vetoed by extension", "session_id", a.opts.SessionID)
			return false
		}
	}

	sess := session.New(a.opts.SessionID)
	sess.Messages = a.Messages()
	sess.ReplacePrefix(n, summary...)

	a.mu.Lock()
	a.history = sess.Messages
	a.mu.Unlock()

	if a.opts.Store != nil {
		if err := a.opts.Store.Save(sess); err != nil {
			a.opts.Logger.Warn("failed to persist compacted session", "session_id", a.opts.SessionID, "error", err)
		}
	}
	if pipe != nil {
		pipe.Emit(ctx, &extension.CompactEvent{Messages: a.Messages()})
	}
	return true
}

// LoopState holds the per-prompt counters governing the continuation policy.
// A fresh state is created for every Prompt call and owned by that run.
type LoopState struct {
	// Turn is the current 1-based turn number.
	Turn int
	// TotalToolCalls counts tool executions across the whole run.
	TotalToolCalls int
	// ConsecutiveErrors counts turns in which every tool call failed.
	ConsecutiveErrors int
	// LastAction records what the previous turn did ("message",
	// "tool_execution" or "error").
	LastAction string
	// HasMadeProgress is set once any turn produces non-blank text or
	// reasoning and stays set for the rest of the run.
	HasMadeProgress bool
}

func (a *Agent) run(ctx context.Context, text string, emit func(core.Event)) {
	pipe := a.opts.Pipeline

	if pipe != nil {
		pipe.Emit(ctx, &extension.UserInputEvent{Text: text})

		ev := pipe.Emit(ctx, &extension.BeforeAgentStartEvent{Prompt: text}).(*extension.BeforeAgentStartEvent)
		if ev.Cancelled() {
			a.opts.Logger.Info("run cancelled by extension before first turn")
			return
		}
		a.append(ev.InjectMessages...)
	}
	a.append(core.NewUserMessage(text))

	emit(core.NewAgentStartEvent())
	if pipe != nil {
		pipe.Emit(ctx, &extension.AgentStartEvent{Prompt: text})
	}

	state := &LoopState{}

	for turn := 1; turn <= a.opts.MaxTurns; turn++ {
		state.Turn = turn
		emit(core.NewTurnStartEvent(turn))
		if pipe != nil {
			pipe.Emit(ctx, &extension.TurnStartEvent{Turn: turn})
		}

		// Extensions see a copy of history and may reshape the outgoing
		// request; the owned history never changes under them.
		view := a.Messages()
		if pipe != nil && pipe.HasHandlers(extension.KindContext) {
			ev := pipe.Emit(ctx, &extension.ContextEvent{Messages: view}).(*extension.ContextEvent)
			view = ev.Messages
		}

		msg, streamErr := a.streamTurn(ctx, view, emit)
		a.append(msg)

		var results []core.ToolResultMessage
		if streamErr == nil {
			for _, call := range msg.ToolCalls {
				result := a.executor.Execute(ctx, call, emit)
				a.append(result)
				results = append(results, result)
			}
		}
		state.TotalToolCalls += len(results)

		if msg.HasOutput() {
			state.HasMadeProgress = true
		}
		switch {
		case streamErr != nil:
			state.LastAction = "error"
		case len(results) > 0:
			state.LastAction = "tool_execution"
		default:
			state.LastAction = "message"
		}
		if len(results) > 0 {
			failed := 0
			for _, r := range results {
				if r.IsError {
					failed++
				}
			}
			if failed == len(results) {
				state.ConsecutiveErrors++
			} else {
				state.ConsecutiveErrors = 0
			}
		}

		emit(core.NewTurnEndEvent(turn, msg, results))
		if pipe != nil {
			pipe.Emit(ctx, &extension.TurnEndEvent{Turn: turn, Message: msg, ToolResults: results})
		}

		if !a.shouldContinue(msg, state) {
			break
		}
	}

	a.opts.Logger.Debug("run finished",
		"session_id", a.opts.SessionID, "turns", state.Turn,
		"tool_calls", state.TotalToolCalls, "progressed", state.HasMadeProgress,
		"last_action", state.LastAction)

	history := a.Messages()
	if pipe != nil {
		pipe.Emit(ctx, &extension.AgentEndEvent{Messages: history})
	}
	emit(core.NewAgentEndEvent(history))
}

// streamTurn consumes one provider stream into a finalized assistant message.
// A transport failure discards any partial output and yields a synthesized
// error message instead.
func (a *Agent) streamTurn(ctx context.Context, view []core.Message, emit func(core.Event)) (core.AssistantMessage, error) {
	req := model.Request{
		Model:        a.opts.Model,
		Messages:     view,
		SystemPrompt: a.opts.SystemPrompt,
		Tools:        a.executor.Definitions(),
		MaxTokens:    a.opts.MaxTokens,
	}

	acc := NewMessageAccumulator(a.opts.Model)
	emit(core.NewMessageStartEvent(acc.Message()))

	events, errCh := a.provider.Stream(ctx, req)
	for ev := range events {
		switch e := ev.(type) {
		case core.TextDelta:
			acc.AddText(e.Text)
			emit(core.NewMessageUpdateEvent(acc.Message(), e.Text))
		case core.ReasoningDelta:
			if acc.AddReasoning(e.BlockID, e.Text) {
				emit(core.NewReasoningStartEvent(e.BlockID))
			}
			emit(core.NewReasoningUpdateEvent(e.BlockID, e.Text))
		case core.ToolCallComplete:
			if acc.ToolCallCount() >= a.opts.MaxToolCallsPerTurn {
				a.opts.Logger.Warn("dropping tool call beyond per-turn cap",
					"tool", e.ToolCall.Name, "cap", a.opts.MaxToolCallsPerTurn)
				continue
			}
			acc.AddToolCall(e.ToolCall)
		case core.Finish:
			acc.SetFinish(e.StopReason)
		}
	}
	if err := <-errCh; err != nil {
		a.opts.Logger.Error("model stream failed", "error", err)
		msg := errorMessage(a.opts.Model, err)
		emit(core.NewMessageEndEvent(msg))
		return msg, err
	}

	for _, id := range acc.ReasoningIDs() {
		emit(core.NewReasoningEndEvent(id, acc.ReasoningText(id)))
	}
	msg := acc.Finalize()
	emit(core.NewMessageEndEvent(msg))
	return msg, nil
}

// shouldContinue applies the continuation policy. MaxTurns is enforced by the
// loop bound and always wins.
func (a *Agent) shouldContinue(msg core.AssistantMessage, state *LoopState) bool {
	switch {
	case state.ConsecutiveErrors >= 3:
		a.opts.Logger.Warn("stopping after repeated tool failures",
			"consecutive_errors", state.ConsecutiveErrors)
		return false
	case len(msg.ToolCalls) > 0:
		return true
	case msg.StopReason == core.StopReasonLength:
		return true
	default:
		// Produced output (or nothing) without tool calls: the answer is done.
		return false
	}
}

func (a *Agent) append(messages ...core.Message) {
	if len(messages) == 0 {
		return
	}
	a.mu.Lock()
	a.history = append(a.history, messages...)
	a.mu.Unlock()

	if a.opts.Store != nil {
		if err := a.opts.Store.Append(a.opts.SessionID, messages...); err != nil {
			a.opts.Logger.Warn("failed to persist messages",
				"session_id", a.opts.SessionID, "error", err)
		}
	}
}

func (a *Agent) publish(ev core.Event) {
	a.subMu.Lock()
	cbs := make([]func(core.Event), 0, len(a.subscribers))
	for _, cb := range a.subscribers {
		cbs = append(cbs, cb)
	}
	a.subMu.Unlock()

	for _, cb := range cbs {
		a.invokeSubscriber(cb, ev)
	}
}

func (a *Agent) invokeSubscriber(cb func(core.Event), ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			a.opts.Logger.Error("event subscriber panicked", "panic", r)
		}
	}()
	cb(ev)
}
