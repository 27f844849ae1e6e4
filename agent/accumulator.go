package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentloop/core"
)

// reasoningBuffer collects the deltas of one reasoning block.
type reasoningBuffer struct {
	id   string
	text strings.Builder
}

// MessageAccumulator folds a canonical stream-event sequence into one
// assistant message. Text deltas concatenate into a single buffer; reasoning
// deltas concatenate per block id in first-seen order; completed tool calls
// collect in arrival order. Not safe for concurrent use; one accumulator
// serves exactly one turn.
type MessageAccumulator struct {
	model      string
	text       strings.Builder
	reasoning  []*reasoningBuffer
	byBlockID  map[string]*reasoningBuffer
	toolCalls  []core.ToolCall
	stopReason core.StopReason
}

// NewMessageAccumulator creates an accumulator for one turn.
func NewMessageAccumulator(model string) *MessageAccumulator {
	return &MessageAccumulator{
		model:     model,
		byBlockID: make(map[string]*reasoningBuffer),
	}
}

// AddText appends a text delta.
func (a *MessageAccumulator) AddText(delta string) {
	a.text.WriteString(delta)
}

// AddReasoning appends a reasoning delta to the block's buffer. Returns true
// when the delta opened a new block, which acts as the implicit block start.
func (a *MessageAccumulator) AddReasoning(blockID, delta string) bool {
	buf, ok := a.byBlockID[blockID]
	if !ok {
		buf = &reasoningBuffer{id: blockID}
		a.byBlockID[blockID] = buf
		a.reasoning = append(a.reasoning, buf)
	}
	buf.text.WriteString(delta)
	return !ok
}

// ReasoningText returns the accumulated text of one reasoning block.
func (a *MessageAccumulator) ReasoningText(blockID string) string {
	if buf, ok := a.byBlockID[blockID]; ok {
		return buf.text.String()
	}
	return ""
}

// ReasoningIDs returns the block ids in first-seen order.
func (a *MessageAccumulator) ReasoningIDs() []string {
	ids := make([]string, len(a.reasoning))
	for i, buf := range a.reasoning {
		ids[i] = buf.id
	}
	return ids
}

// AddToolCall records one completed tool call.
func (a *MessageAccumulator) AddToolCall(call core.ToolCall) {
	a.toolCalls = append(a.toolCalls, call)
}

// ToolCallCount returns the number of recorded tool calls.
func (a *MessageAccumulator) ToolCallCount() int { return len(a.toolCalls) }

// SetFinish records the stream's stop reason.
func (a *MessageAccumulator) SetFinish(reason core.StopReason) {
	a.stopReason = reason
}

// Message returns a working snapshot of the message under construction: the
// cumulative text as a single block. Used for message_update events.
func (a *MessageAccumulator) Message() core.AssistantMessage {
	msg := core.AssistantMessage{Model: a.model, Timestamp: time.Now().UTC()}
	if a.text.Len() > 0 {
		msg.Content = []core.ContentBlock{core.TextBlock{Text: a.text.String()}}
	}
	return msg
}

// Finalize assembles the finished assistant message. Reasoning blocks come
// first in first-seen order, then the merged text block. The stop reason is
// the streamed Finish value when present; otherwise tool_calls if any calls
// were collected, else stop. Usage stays nil on streamed turns: fetching it
// would cost a second round-trip.
func (a *MessageAccumulator) Finalize() core.AssistantMessage {
	var content []core.ContentBlock
	for _, buf := range a.reasoning {
		content = append(content, core.ReasoningBlock{Text: buf.text.String(), ReasoningID: buf.id})
	}
	if a.text.Len() > 0 {
		content = append(content, core.TextBlock{Text: a.text.String()})
	}

	stopReason := a.stopReason
	if stopReason == "" {
		if len(a.toolCalls) > 0 {
			stopReason = core.StopReasonToolCalls
		} else {
			stopReason = core.StopReasonStop
		}
	}

	return core.AssistantMessage{
		Content:    content,
		ToolCalls:  a.toolCalls,
		Model:      a.model,
		StopReason: stopReason,
		Timestamp:  time.Now().UTC(),
	}
}

// errorMessage synthesizes the assistant message for a failed stream. Any
// partial text from the broken stream is discarded; the model and caller see
// a clean error marker instead of a truncated answer.
func errorMessage(model string, err error) core.AssistantMessage {
	return core.AssistantMessage{
		Content:    []core.ContentBlock{core.TextBlock{Text: fmt.Sprintf("Error: %s", err)}},
		Model:      model,
		StopReason: core.StopReasonError,
		Timestamp:  time.Now().UTC(),
	}
}
