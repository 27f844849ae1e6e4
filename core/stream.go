package core

// StreamEvent is one canonical unit of incremental provider output. Provider
// adapters translate their native incremental protocols into this closed
// union so downstream code never branches per vendor. Stream events are
// transient and never persisted.
type StreamEvent interface {
	isStreamEvent()
}

// TextDelta carries an incremental fragment of assistant text, passed through
// 1:1 from the provider.
type TextDelta struct {
	Text string
}

func (TextDelta) isStreamEvent() {}

// ReasoningDelta carries an incremental fragment of model reasoning. BlockID
// is the provider-assigned block identifier; the first delta for an id acts
// as the implicit block start. Concatenation is the consumer's job.
type ReasoningDelta struct {
	Text    string
	BlockID string
}

func (ReasoningDelta) isStreamEvent() {}

// ToolCallComplete carries one fully accumulated tool call. Adapters emit it
// only once the provider signals the corresponding content block is finished.
type ToolCallComplete struct {
	ToolCall ToolCall
}

func (ToolCallComplete) isStreamEvent() {}

// Finish terminates the canonical sequence. Emitted exactly once per stream,
// derived from the provider's own completion signal.
type Finish struct {
	StopReason StopReason
}

func (Finish) isStreamEvent() {}
