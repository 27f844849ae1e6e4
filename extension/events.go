package extension

import "github.com/hupe1980/agentloop/core"

// Kind identifies one pipeline event type. The set is closed; extensions
// subscribe by kind.
type Kind string

const (
	KindSessionStart     Kind = "session_start"
	KindSessionEnd       Kind = "session_end"
	KindSessionShutdown  Kind = "session_shutdown"
	KindBeforeAgentStart Kind = "before_agent_start"
	KindAgentStart       Kind = "agent_start"
	KindAgentEnd         Kind = "agent_end"
	KindTurnStart        Kind = "turn_start"
	KindTurnEnd          Kind = "turn_end"
	KindToolCall         Kind = "tool_call"
	KindToolResult       Kind = "tool_result"
	KindContext          Kind = "context"
	KindBeforeCompact    Kind = "before_compact"
	KindCompact          Kind = "compact"
	KindUserInput        Kind = "user_input"
)

// PipelineEvent is one payload flowing through the pipeline. Payloads are
// passed by pointer so handlers can mutate them; the mutated payload is
// visible to later handlers and returned to the emitter.
type PipelineEvent interface {
	Kind() Kind
}

// Cancellable is implemented by the payloads a handler may veto
// (tool_call, before_agent_start, before_compact). Cancellation
// short-circuits all remaining handlers.
type Cancellable interface {
	PipelineEvent
	Cancel()
	Cancelled() bool
}

// cancelState is embedded by cancellable payloads.
type cancelState struct {
	cancelled bool
}

// Cancel marks the event as vetoed.
func (c *cancelState) Cancel() { c.cancelled = true }

// Cancelled reports whether a handler vetoed the event.
func (c *cancelState) Cancelled() bool { return c.cancelled }

// SessionStartEvent announces a new session.
type SessionStartEvent struct {
	SessionID string
}

// Kind implements PipelineEvent.
func (*SessionStartEvent) Kind() Kind { return KindSessionStart }

// SessionEndEvent announces a session ending normally.
type SessionEndEvent struct {
	SessionID string
}

// Kind implements PipelineEvent.
func (*SessionEndEvent) Kind() Kind { return KindSessionEnd }

// SessionShutdownEvent announces process shutdown; extensions flush state here.
type SessionShutdownEvent struct{}

// Kind implements PipelineEvent.
func (*SessionShutdownEvent) Kind() Kind { return KindSessionShutdown }

// BeforeAgentStartEvent fires before the first turn of a run. Handlers may
// inject messages ahead of the user prompt or cancel the run entirely.
type BeforeAgentStartEvent struct {
	cancelState
	Prompt         string
	InjectMessages []core.Message
}

// Kind implements PipelineEvent.
func (*BeforeAgentStartEvent) Kind() Kind { return KindBeforeAgentStart }

// AgentStartEvent fires when a run begins.
type AgentStartEvent struct {
	Prompt string
}

// Kind implements PipelineEvent.
func (*AgentStartEvent) Kind() Kind { return KindAgentStart }

// AgentEndEvent fires when a run completes, carrying the final history.
type AgentEndEvent struct {
	Messages []core.Message
}

// Kind implements PipelineEvent.
func (*AgentEndEvent) Kind() Kind { return KindAgentEnd }

// TurnStartEvent fires at the beginning of each turn.
type TurnStartEvent struct {
	Turn int
}

// Kind implements PipelineEvent.
func (*TurnStartEvent) Kind() Kind { return KindTurnStart }

// TurnEndEvent fires after a turn's tool results are in.
type TurnEndEvent struct {
	Turn        int
	Message     core.AssistantMessage
	ToolResults []core.ToolResultMessage
}

// Kind implements PipelineEvent.
func (*TurnEndEvent) Kind() Kind { return KindTurnEnd }

// ToolCallEvent fires before each tool execution. Cancelling vetoes the call;
// the model still receives an error result for it.
type ToolCallEvent struct {
	cancelState
	Call core.ToolCall
}

// Kind implements PipelineEvent.
func (*ToolCallEvent) Kind() Kind { return KindToolCall }

// ToolResultEvent fires after each tool execution.
type ToolResultEvent struct {
	Call   core.ToolCall
	Result core.ToolResultMessage
}

// Kind implements PipelineEvent.
func (*ToolResultEvent) Kind() Kind { return KindToolResult }

// ContextEvent fires before each provider call with the request message view.
// Handlers may insert, remove or reorder messages; mutations affect only the
// outgoing request, never the owned history.
type ContextEvent struct {
	Messages []core.Message
}

// Kind implements PipelineEvent.
func (*ContextEvent) Kind() Kind { return KindContext }

// BeforeCompactEvent fires before history compaction. Handlers may add
// custom summarization instructions or cancel the compaction.
type BeforeCompactEvent struct {
	cancelState
	Messages           []core.Message
	CustomInstructions string
}

// Kind implements PipelineEvent.
func (*BeforeCompactEvent) Kind() Kind { return KindBeforeCompact }

// CompactEvent fires after history compaction with the rewritten history.
type CompactEvent struct {
	Messages []core.Message
}

// Kind implements PipelineEvent.
func (*CompactEvent) Kind() Kind { return KindCompact }

// UserInputEvent fires when the caller submits a prompt.
type UserInputEvent struct {
	Text string
}

// Kind implements PipelineEvent.
func (*UserInputEvent) Kind() Kind { return KindUserInput }
