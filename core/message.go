package core

import (
	"strings"
	"time"
)

// StopReason is the normalized reason a turn's generation ended. Provider
// adapters map their native vocabularies into this shared set.
type StopReason string

const (
	// StopReasonStop indicates the model finished its answer naturally.
	StopReasonStop StopReason = "stop"
	// StopReasonLength indicates the provider truncated the output.
	StopReasonLength StopReason = "length"
	// StopReasonToolCalls indicates the model stopped to request tool execution.
	StopReasonToolCalls StopReason = "tool_calls"
	// StopReasonError indicates the turn was terminated by a transport or
	// provider failure and the message content was synthesized locally.
	StopReasonError StopReason = "error"
)

// ToolCall is a structured request from the model to invoke a named tool.
// Arguments is always a mapping after normalization; a fragment that failed
// to parse as JSON yields an empty map, never raw text.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Usage captures token accounting for one assistant turn. It is nil on
// streamed turns: fetching usage would cost a second API round-trip, and the
// runtime trades that completeness for latency.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Message is one entry of conversation history. It is a closed union:
// UserMessage, AssistantMessage and ToolResultMessage are the only variants.
// Messages are immutable once appended to history.
type Message interface {
	isMessage()
	// Role returns the wire role of the message: "user", "assistant" or "tool".
	Role() string
}

// UserMessage is a prompt authored by the caller.
type UserMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (UserMessage) isMessage() {}

// Role implements Message.
func (UserMessage) Role() string { return "user" }

// NewUserMessage constructs a timestamped user message.
func NewUserMessage(content string) UserMessage {
	return UserMessage{Content: content, Timestamp: time.Now().UTC()}
}

// AssistantMessage is one finalized model response. Content holds reasoning
// blocks in first-seen order followed by the merged text block (if any); tool
// calls are a parallel list, not content blocks.
type AssistantMessage struct {
	Content    []ContentBlock `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	Model      string         `json:"model,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
	StopReason StopReason     `json:"stop_reason,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (AssistantMessage) isMessage() {}

// Role implements Message.
func (AssistantMessage) Role() string { return "assistant" }

// Text returns the concatenated text-block content of the message.
func (m AssistantMessage) Text() string { return TextOf(m.Content) }

// HasOutput reports whether the message contains any non-blank text or
// reasoning content. The turn loop uses this as its progress signal.
func (m AssistantMessage) HasOutput() bool {
	for _, b := range m.Content {
		switch block := b.(type) {
		case TextBlock:
			if strings.TrimSpace(block.Text) != "" {
				return true
			}
		case ReasoningBlock:
			if strings.TrimSpace(block.Text) != "" {
				return true
			}
		}
	}
	return false
}

// ToolResultMessage is the outcome of exactly one tool call. Every call the
// model makes produces one of these, including invalid-argument, unknown-tool
// and execution-failure outcomes, so the model always sees feedback.
type ToolResultMessage struct {
	ToolCallID string         `json:"tool_call_id"`
	Name       string         `json:"name"`
	Content    []ContentBlock `json:"content"`
	IsError    bool           `json:"is_error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (ToolResultMessage) isMessage() {}

// Role implements Message.
func (ToolResultMessage) Role() string { return "tool" }

// Text returns the concatenated text-block content of the result.
func (m ToolResultMessage) Text() string { return TextOf(m.Content) }

// NewToolResultMessage constructs a timestamped text-only tool result.
func NewToolResultMessage(callID, name, text string, isError bool) ToolResultMessage {
	return ToolResultMessage{
		ToolCallID: callID,
		Name:       name,
		Content:    []ContentBlock{TextBlock{Text: text}},
		IsError:    isError,
		Timestamp:  time.Now().UTC(),
	}
}
