package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
)

func TestMessageAccumulator(t *testing.T) {
	t.Run("snapshot shows cumulative text", func(t *testing.T) {
		acc := NewMessageAccumulator("test-model")
		acc.AddText("Hello")
		acc.AddText(" world")

		snapshot := acc.Message()
		assert.Equal(t, "Hello world", snapshot.Text())
		assert.Equal(t, "test-model", snapshot.Model)
		assert.Empty(t, snapshot.ToolCalls)
	})

	t.Run("finalize orders reasoning before text", func(t *testing.T) {
		acc := NewMessageAccumulator("test-model")
		acc.AddText("The answer")
		acc.AddReasoning("reasoning_0", "Let me ")
		acc.AddReasoning("reasoning_0", "think.")
		acc.AddText(" is 42.")
		acc.SetFinish(core.StopReasonStop)

		msg := acc.Finalize()
		require.Len(t, msg.Content, 2)
		reasoning, ok := msg.Content[0].(core.ReasoningBlock)
		require.True(t, ok)
		assert.Equal(t, "Let me think.", reasoning.Text)
		assert.Equal(t, "reasoning_0", reasoning.ReasoningID)
		text, ok := msg.Content[1].(core.TextBlock)
		require.True(t, ok)
		assert.Equal(t, "The answer is 42.", text.Text)
	})

	t.Run("reasoning blocks keep first-seen order", func(t *testing.T) {
		acc := NewMessageAccumulator("")
		assert.True(t, acc.AddReasoning("b", "second block "))
		assert.True(t, acc.AddReasoning("a", "first delta of a"))
		assert.False(t, acc.AddReasoning("b", "continued"))

		assert.Equal(t, []string{"b", "a"}, acc.ReasoningIDs())
		assert.Equal(t, "second block continued", acc.ReasoningText("b"))
	})

	t.Run("stop reason falls back to tool_calls", func(t *testing.T) {
		acc := NewMessageAccumulator("")
		acc.AddToolCall(core.ToolCall{ID: "call_1", Name: "read_file", Arguments: map[string]any{}})

		msg := acc.Finalize()
		assert.Equal(t, core.StopReasonToolCalls, msg.StopReason)
		require.Len(t, msg.ToolCalls, 1)
	})

	t.Run("stop reason falls back to stop", func(t *testing.T) {
		acc := NewMessageAccumulator("")
		acc.AddText("done")
		assert.Equal(t, core.StopReasonStop, acc.Finalize().StopReason)
	})

	t.Run("explicit finish wins over fallback", func(t *testing.T) {
		acc := NewMessageAccumulator("")
		acc.AddText("truncat")
		acc.SetFinish(core.StopReasonLength)
		assert.Equal(t, core.StopReasonLength, acc.Finalize().StopReason)
	})

	t.Run("usage stays nil on streamed turns", func(t *testing.T) {
		acc := NewMessageAccumulator("")
		acc.AddText("hi")
		assert.Nil(t, acc.Finalize().Usage)
	})
}

func TestErrorMessage(t *testing.T) {
	msg := errorMessage("test-model", errors.New("connection reset"))
	assert.Equal(t, "Error: connection reset", msg.Text())
	assert.Equal(t, core.StopReasonError, msg.StopReason)
	assert.Empty(t, msg.ToolCalls)
}
