package core

import "time"

// Event is one lifecycle milestone published by the agent runtime: loop
// boundaries, streaming progress and tool execution telemetry. Subscribers
// (UI rendering, persistence) receive events in emission order. Event is a
// closed union; all variants embed EventMeta.
type Event interface {
	isEvent()
	// When returns the emission timestamp.
	When() time.Time
}

// EventMeta carries the fields common to every lifecycle event.
type EventMeta struct {
	Timestamp time.Time `json:"timestamp"`
}

func (EventMeta) isEvent() {}

// When implements Event.
func (m EventMeta) When() time.Time { return m.Timestamp }

func newMeta() EventMeta { return EventMeta{Timestamp: time.Now().UTC()} }

// AgentStartEvent marks the beginning of one prompt() run.
type AgentStartEvent struct {
	EventMeta
}

// AgentEndEvent marks the end of one prompt() run and carries the full
// conversation history at that point.
type AgentEndEvent struct {
	EventMeta
	Messages []Message
}

// TurnStartEvent marks the beginning of a turn.
type TurnStartEvent struct {
	EventMeta
	Turn int
}

// TurnEndEvent marks the end of a turn with the finalized assistant message
// and the tool results produced during the turn.
type TurnEndEvent struct {
	EventMeta
	Turn        int
	Message     AssistantMessage
	ToolResults []ToolResultMessage
}

// MessageStartEvent marks the beginning of a streamed assistant message.
type MessageStartEvent struct {
	EventMeta
	Message AssistantMessage
}

// MessageUpdateEvent carries the working message (cumulative text so far)
// plus the latest text delta.
type MessageUpdateEvent struct {
	EventMeta
	Message AssistantMessage
	Delta   string
}

// MessageEndEvent carries the finalized assistant message for the turn.
type MessageEndEvent struct {
	EventMeta
	Message AssistantMessage
}

// ReasoningStartEvent marks the first delta seen for a reasoning block.
type ReasoningStartEvent struct {
	EventMeta
	ReasoningID string
}

// ReasoningUpdateEvent carries an incremental reasoning fragment.
type ReasoningUpdateEvent struct {
	EventMeta
	ReasoningID string
	Delta       string
}

// ReasoningEndEvent carries the complete text of a finished reasoning block.
type ReasoningEndEvent struct {
	EventMeta
	ReasoningID string
	Content     string
}

// ToolExecutionStartEvent marks the start of one tool call execution.
type ToolExecutionStartEvent struct {
	EventMeta
	ToolCallID string
	ToolName   string
	Args       map[string]any
}

// ToolExecutionUpdateEvent carries a progress update reported by a running
// tool. Updates are a side channel and never become tool output.
type ToolExecutionUpdateEvent struct {
	EventMeta
	ToolCallID string
	ToolName   string
	Partial    string
}

// ToolExecutionEndEvent marks the completion of one tool call with its
// normalized result.
type ToolExecutionEndEvent struct {
	EventMeta
	ToolCallID string
	ToolName   string
	Result     []ContentBlock
	IsError    bool
}

// NewAgentStartEvent constructs a timestamped AgentStartEvent.
func NewAgentStartEvent() AgentStartEvent { return AgentStartEvent{EventMeta: newMeta()} }

// NewAgentEndEvent constructs a timestamped AgentEndEvent.
func NewAgentEndEvent(messages []Message) AgentEndEvent {
	return AgentEndEvent{EventMeta: newMeta(), Messages: messages}
}

// NewTurnStartEvent constructs a timestamped TurnStartEvent.
func NewTurnStartEvent(turn int) TurnStartEvent {
	return TurnStartEvent{EventMeta: newMeta(), Turn: turn}
}

// NewTurnEndEvent constructs a timestamped TurnEndEvent.
func NewTurnEndEvent(turn int, msg AssistantMessage, results []ToolResultMessage) TurnEndEvent {
	return TurnEndEvent{EventMeta: newMeta(), Turn: turn, Message: msg, ToolResults: results}
}

// NewMessageStartEvent constructs a timestamped MessageStartEvent.
func NewMessageStartEvent(msg AssistantMessage) MessageStartEvent {
	return MessageStartEvent{EventMeta: newMeta(), Message: msg}
}

// NewMessageUpdateEvent constructs a timestamped MessageUpdateEvent.
func NewMessageUpdateEvent(msg AssistantMessage, delta string) MessageUpdateEvent {
	return MessageUpdateEvent{EventMeta: newMeta(), Message: msg, Delta: delta}
}

// NewMessageEndEvent constructs a timestamped MessageEndEvent.
func NewMessageEndEvent(msg AssistantMessage) MessageEndEvent {
	return MessageEndEvent{EventMeta: newMeta(), Message: msg}
}

// NewReasoningStartEvent constructs a timestamped ReasoningStartEvent.
func NewReasoningStartEvent(id string) ReasoningStartEvent {
	return ReasoningStartEvent{EventMeta: newMeta(), ReasoningID: id}
}

// NewReasoningUpdateEvent constructs a timestamped ReasoningUpdateEvent.
func NewReasoningUpdateEvent(id, delta string) ReasoningUpdateEvent {
	return ReasoningUpdateEvent{EventMeta: newMeta(), ReasoningID: id, Delta: delta}
}

// NewReasoningEndEvent constructs a timestamped ReasoningEndEvent.
func NewReasoningEndEvent(id, content string) ReasoningEndEvent {
	return ReasoningEndEvent{EventMeta: newMeta(), ReasoningID: id, Content: content}
}

// NewToolExecutionStartEvent constructs a timestamped ToolExecutionStartEvent.
func NewToolExecutionStartEvent(callID, name string, args map[string]any) ToolExecutionStartEvent {
	return ToolExecutionStartEvent{EventMeta: newMeta(), ToolCallID: callID, ToolName: name, Args: args}
}

// NewToolExecutionUpdateEvent constructs a timestamped ToolExecutionUpdateEvent.
func NewToolExecutionUpdateEvent(callID, name, partial string) ToolExecutionUpdateEvent {
	return ToolExecutionUpdateEvent{EventMeta: newMeta(), ToolCallID: callID, ToolName: name, Partial: partial}
}

// NewToolExecutionEndEvent constructs a timestamped ToolExecutionEndEvent.
func NewToolExecutionEndEvent(callID, name string, result []ContentBlock, isError bool) ToolExecutionEndEvent {
	return ToolExecutionEndEvent{EventMeta: newMeta(), ToolCallID: callID, ToolName: name, Result: result, IsError: isError}
}
