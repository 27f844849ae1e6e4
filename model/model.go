package model

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized provider input for one turn.
type Request struct {
	Model        string           `json:"model"`
	Messages     []core.Message   `json:"messages"`
	SystemPrompt string           `json:"system_prompt,omitempty"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	MaxTokens    int64            `json:"max_tokens"`
}

// Provider is the minimal interface the agent runtime needs to drive
// generation. Implementations adapt one vendor's wire protocol into the
// canonical core.StreamEvent sequence.
//
// Stream returns an event channel and an error channel. The event channel is
// closed when the stream ends; a mid-stream transport failure is delivered on
// the error channel after any canonical events already emitted (partial
// events are never retracted). Complete is the non-streaming variant, used
// e.g. for summarization.
type Provider interface {
	Stream(ctx context.Context, req Request) (<-chan core.StreamEvent, <-chan error)

	Complete(ctx context.Context, req Request) (*core.AssistantMessage, error)
}

// MockProvider is a lightweight in-memory Provider useful for tests &
// examples. Each call to Stream consumes the next scripted event sequence;
// once the script is exhausted it replays the last entry.
type MockProvider struct {
	scripts [][]core.StreamEvent
	errs    []error
	calls   int
}

// NewMockProvider constructs an empty MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// AddScript appends one turn's canned stream-event sequence.
func (m *MockProvider) AddScript(events ...core.StreamEvent) *MockProvider {
	m.scripts = append(m.scripts, events)
	m.errs = append(m.errs, nil)
	return m
}

// AddError appends a turn that fails with err after emitting no events.
func (m *MockProvider) AddError(err error) *MockProvider {
	m.scripts = append(m.scripts, nil)
	m.errs = append(m.errs, err)
	return m
}

// AddScriptWithError appends a turn that emits the given events and then
// fails with err, simulating a mid-stream transport failure.
func (m *MockProvider) AddScriptWithError(err error, events ...core.StreamEvent) *MockProvider {
	m.scripts = append(m.scripts, events)
	m.errs = append(m.errs, err)
	return m
}

// Calls reports how many times Stream or Complete has been invoked.
func (m *MockProvider) Calls() int { return m.calls }

// TextEvents is a convenience for scripting a plain text turn: one TextDelta
// per fragment followed by a natural Finish.
func TextEvents(fragments ...string) []core.StreamEvent {
	events := make([]core.StreamEvent, 0, len(fragments)+1)
	for _, f := range fragments {
		events = append(events, core.TextDelta{Text: f})
	}
	return append(events, core.Finish{StopReason: core.StopReasonStop})
}

// ToolCallEvents is a convenience for scripting a tool-use turn.
func ToolCallEvents(calls ...core.ToolCall) []core.StreamEvent {
	events := make([]core.StreamEvent, 0, len(calls)+1)
	for _, c := range calls {
		events = append(events, core.ToolCallComplete{ToolCall: c})
	}
	return append(events, core.Finish{StopReason: core.StopReasonToolCalls})
}

// Stream implements Provider, replaying the next scripted sequence.
func (m *MockProvider) Stream(ctx context.Context, _ Request) (<-chan core.StreamEvent, <-chan error) {
	out := make(chan core.StreamEvent, 32)
	errCh := make(chan error, 1)

	idx := m.calls
	if idx >= len(m.scripts) {
		idx = len(m.scripts) - 1
	}
	m.calls++

	go func() {
		defer close(out)
		defer close(errCh)
		if idx < 0 {
			errCh <- fmt.Errorf("mock provider has no scripted responses")
			return
		}
		for _, ev := range m.scripts[idx] {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- ev:
			}
		}
		// Scripted failures surface after the events, like a real transport.
		if err := m.errs[idx]; err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// Complete implements Provider by draining the scripted stream into a single
// assistant message (text and tool calls only).
func (m *MockProvider) Complete(ctx context.Context, req Request) (*core.AssistantMessage, error) {
	events, errCh := m.Stream(ctx, req)

	var text string
	var calls []core.ToolCall
	stop := core.StopReasonStop
	for ev := range events {
		switch e := ev.(type) {
		case core.TextDelta:
			text += e.Text
		case core.ToolCallComplete:
			calls = append(calls, e.ToolCall)
		case core.Finish:
			stop = e.StopReason
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	msg := &core.AssistantMessage{Model: req.Model, ToolCalls: calls, StopReason: stop}
	if text != "" {
		msg.Content = []core.ContentBlock{core.TextBlock{Text: text}}
	}
	return msg, nil
}
