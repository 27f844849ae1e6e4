package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/extension"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/session"
	"github.com/hupe1980/agentloop/tool"
)

func quiet(o *Options) { o.Logger = logging.NoOpLogger{} }

func collect(ch <-chan core.Event) []core.Event {
	var out []core.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func countTurns(events []core.Event) int {
	n := 0
	for _, ev := range events {
		if _, ok := ev.(core.TurnStartEvent); ok {
			n++
		}
	}
	return n
}

func readFileTool() tool.Tool {
	return tool.NewFuncTool("read_file", "Reads a file.", nil,
		func(ctx context.Context, args map[string]any, onUpdate func(string)) (*tool.Result, error) {
			path, _ := args["file_path"].(string)
			return tool.NewTextResult("contents of " + path), nil
		})
}

func TestAgentTextOnlyTurn(t *testing.T) {
	provider := model.NewMockProvider().AddScript(model.TextEvents("Hello", " world")...)
	a := New(provider, quiet)

	events := collect(a.Prompt(t.Context(), "hi"))

	require.NotEmpty(t, events)
	assert.IsType(t, core.AgentStartEvent{}, events[0])
	assert.IsType(t, core.AgentEndEvent{}, events[len(events)-1])
	assert.Equal(t, 1, countTurns(events))

	var updates []string
	var final *core.AssistantMessage
	for _, ev := range events {
		switch e := ev.(type) {
		case core.MessageUpdateEvent:
			updates = append(updates, e.Delta)
		case core.MessageEndEvent:
			final = &e.Message
		}
	}
	assert.Equal(t, []string{"Hello", " world"}, updates)
	require.NotNil(t, final)
	assert.Equal(t, "Hello world", final.Text())
	assert.Equal(t, core.StopReasonStop, final.StopReason)

	history := a.Messages()
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].(core.UserMessage).Content)
	assert.Equal(t, "Hello world", history[1].(core.AssistantMessage).Text())
}

func TestAgentToolLoop(t *testing.T) {
	provider := model.NewMockProvider().
		AddScript(model.ToolCallEvents(core.ToolCall{
			ID: "call_1", Name: "read_file", Arguments: map[string]any{"file_path": "a.py"},
		})...).
		AddScript(model.TextEvents("The file holds contents of a.py")...)

	a := New(provider, quiet, func(o *Options) { o.Tools = []tool.Tool{readFileTool()} })
	events := collect(a.Prompt(t.Context(), "what is in a.py?"))

	assert.Equal(t, 2, countTurns(events))

	history := a.Messages()
	require.Len(t, history, 4) // user, assistant(tool call), tool result, assistant
	result, ok := history[2].(core.ToolResultMessage)
	require.True(t, ok)
	assert.Equal(t, "call_1", result.ToolCallID)
	assert.Equal(t, "contents of a.py", result.Text())
	assert.False(t, result.IsError)
}

func TestAgentStopsAfterConsecutiveErrorTurns(t *testing.T) {
	failing := tool.NewFuncTool("flaky", "Always fails.", nil,
		func(ctx context.Context, args map[string]any, onUpdate func(string)) (*tool.Result, error) {
			return nil, errors.New("backend unavailable")
		})

	// The exhausted mock replays the last script, so the model would call the
	// failing tool forever; the error policy has to cut the loop.
	provider := model.NewMockProvider().AddScript(model.ToolCallEvents(core.ToolCall{
		ID: "call_1", Name: "flaky", Arguments: map[string]any{"query": "status"},
	})...)

	a := New(provider, quiet, func(o *Options) { o.Tools = []tool.Tool{failing} })
	events := collect(a.Prompt(t.Context(), "go"))

	assert.Equal(t, 3, countTurns(events))
}

func TestAgentMaxTurnsBound(t *testing.T) {
	provider := model.NewMockProvider().AddScript(model.ToolCallEvents(core.ToolCall{
		ID: "call_1", Name: "read_file", Arguments: map[string]any{"file_path": "a.py"},
	})...)

	a := New(provider, quiet, func(o *Options) {
		o.Tools = []tool.Tool{readFileTool()}
		o.MaxTurns = 2
	})
	events := collect(a.Prompt(t.Context(), "loop forever"))

	assert.Equal(t, 2, countTurns(events))
}

func TestAgentContinuesOnLengthStop(t *testing.T) {
	provider := model.NewMockProvider().
		AddScript(core.TextDelta{Text: "first part"}, core.Finish{StopReason: core.StopReasonLength}).
		AddScript(model.TextEvents("second part")...)

	a := New(provider, quiet)
	events := collect(a.Prompt(t.Context(), "write a long essay"))

	assert.Equal(t, 2, countTurns(events))
	assert.Equal(t, 2, provider.Calls())
}

func TestAgentReasoningEvents(t *testing.T) {
	provider := model.NewMockProvider().AddScript(
		core.ReasoningDelta{Text: "thinking ", BlockID: "reasoning_0"},
		core.ReasoningDelta{Text: "hard", BlockID: "reasoning_0"},
		core.TextDelta{Text: "Answer."},
		core.Finish{StopReason: core.StopReasonStop},
	)

	a := New(provider, quiet)
	events := collect(a.Prompt(t.Context(), "why?"))

	var starts, ends int
	var content string
	for _, ev := range events {
		switch e := ev.(type) {
		case core.ReasoningStartEvent:
			starts++
		case core.ReasoningEndEvent:
			ends++
			content = e.Content
		}
	}
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.Equal(t, "thinking hard", content)

	history := a.Messages()
	msg := history[1].(core.AssistantMessage)
	require.Len(t, msg.Content, 2)
	assert.IsType(t, core.ReasoningBlock{}, msg.Content[0])
	assert.IsType(t, core.TextBlock{}, msg.Content[1])
}

func TestAgentStreamFailure(t *testing.T) {
	provider := model.NewMockProvider().AddError(errors.New("connection reset"))

	a := New(provider, quiet)
	events := collect(a.Prompt(t.Context(), "hi"))

	assert.Equal(t, 1, countTurns(events))

	history := a.Messages()
	require.Len(t, history, 2)
	msg := history[1].(core.AssistantMessage)
	assert.Equal(t, "Error: connection reset", msg.Text())
	assert.Equal(t, core.StopReasonError, msg.StopReason)
}

func TestAgentStreamFailureDiscardsPartialText(t *testing.T) {
	provider := model.NewMockProvider().AddScriptWithError(
		errors.New("connection reset"),
		core.TextDelta{Text: "The answer"}, core.TextDelta{Text: " is"},
	)

	a := New(provider, quiet)
	events := collect(a.Prompt(t.Context(), "hi"))

	// Deltas already emitted stay emitted; only the finalized message drops
	// the partial text.
	var updates []string
	for _, ev := range events {
		if up, ok := ev.(core.MessageUpdateEvent); ok {
			updates = append(updates, up.Delta)
		}
	}
	assert.Equal(t, []string{"The answer", " is"}, updates)
	assert.Equal(t, 1, countTurns(events))

	history := a.Messages()
	require.Len(t, history, 2)
	msg := history[1].(core.AssistantMessage)
	assert.Equal(t, "Error: connection reset", msg.Text())
	assert.NotContains(t, msg.Text(), "The answer")
	assert.Equal(t, core.StopReasonError, msg.StopReason)
}

func TestAgentBeforeStartCancellation(t *testing.T) {
	pipeline := extension.NewPipeline()
	require.NoError(t, pipeline.Load(extension.Extension{
		Name: "gatekeeper",
		Setup: func(api *extension.API) error {
			api.On(extension.KindBeforeAgentStart, func(ctx context.Context, event extension.PipelineEvent) error {
				event.(*extension.BeforeAgentStartEvent).Cancel()
				return nil
			})
			return nil
		},
	}))

	provider := model.NewMockProvider().AddScript(model.TextEvents("never")...)
	a := New(provider, quiet, func(o *Options) { o.Pipeline = pipeline })

	events := collect(a.Prompt(t.Context(), "hi"))
	assert.Empty(t, events)
	assert.Empty(t, a.Messages())
	assert.Zero(t, provider.Calls())
}

func TestAgentBeforeStartInjection(t *testing.T) {
	pipeline := extension.NewPipeline()
	require.NoError(t, pipeline.Load(extension.Extension{
		Name: "memory",
		Setup: func(api *extension.API) error {
			api.On(extension.KindBeforeAgentStart, func(ctx context.Context, event extension.PipelineEvent) error {
				e := event.(*extension.BeforeAgentStartEvent)
				e.InjectMessages = append(e.InjectMessages, core.NewUserMessage("remembered context"))
				return nil
			})
			return nil
		},
	}))

	provider := model.NewMockProvider().AddScript(model.TextEvents("ok")...)
	a := New(provider, quiet, func(o *Options) { o.Pipeline = pipeline })
	collect(a.Prompt(t.Context(), "hi"))

	history := a.Messages()
	require.Len(t, history, 3)
	assert.Equal(t, "remembered context", history[0].(core.UserMessage).Content)
	assert.Equal(t, "hi", history[1].(core.UserMessage).Content)
}

func TestAgentContextEventLeavesHistoryUntouched(t *testing.T) {
	pipeline := extension.NewPipeline()
	require.NoError(t, pipeline.Load(extension.Extension{
		Name: "rewriter",
		Setup: func(api *extension.API) error {
			api.On(extension.KindContext, func(ctx context.Context, event extension.PipelineEvent) error {
				e := event.(*extension.ContextEvent)
				e.Messages = append([]core.Message{core.NewUserMessage("injected request note")}, e.Messages...)
				return nil
			})
			return nil
		},
	}))

	provider := model.NewMockProvider().AddScript(model.TextEvents("ok")...)
	a := New(provider, quiet, func(o *Options) { o.Pipeline = pipeline })
	collect(a.Prompt(t.Context(), "hi"))

	// The injected note shaped the request only; owned history has no trace.
	history := a.Messages()
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].(core.UserMessage).Content)
}

func TestAgentSubscribe(t *testing.T) {
	provider := model.NewMockProvider().AddScript(model.TextEvents("one")...)
	a := New(provider, quiet)

	var seen int
	unsubscribe := a.Subscribe(func(core.Event) { seen++ })
	panicky := a.Subscribe(func(core.Event) { panic("bad subscriber") })
	defer panicky()

	assert.NotPanics(t, func() { collect(a.Prompt(t.Context(), "hi")) })
	assert.Positive(t, seen)

	unsubscribe()
	before := seen
	collect(a.Prompt(t.Context(), "again"))
	assert.Equal(t, before, seen)
}

func TestAgentSessionPersistence(t *testing.T) {
	store := session.NewInMemoryStore()
	provider := model.NewMockProvider().AddScript(model.TextEvents("stored")...)

	a := New(provider, quiet, func(o *Options) {
		o.Store = store
		o.SessionID = "s1"
	})
	collect(a.Prompt(t.Context(), "hi"))

	sess, err := store.Get("s1")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)

	// A fresh agent on the same session resumes the history.
	resumed := New(model.NewMockProvider().AddScript(model.TextEvents("more")...), quiet,
		func(o *Options) {
			o.Store = store
			o.SessionID = "s1"
		})
	assert.Len(t, resumed.Messages(), 2)
}

func TestAgentCompact(t *testing.T) {
	provider := model.NewMockProvider().AddScript(model.TextEvents("ok")...)
	a := New(provider, quiet)
	collect(a.Prompt(t.Context(), "hi"))
	require.Len(t, a.Messages(), 2)

	ok := a.Compact(t.Context(), 2, core.NewUserMessage("summary of the chat"))
	assert.True(t, ok)
	require.Len(t, a.Messages(), 1)
	assert.Equal(t, "summary of the chat", a.Messages()[0].(core.UserMessage).Content)
}

func TestAgentCompactVeto(t *testing.T) {
	pipeline := extension.NewPipeline()
	require.NoError(t, pipeline.Load(extension.Extension{
		Name: "keeper",
		Setup: func(api *extension.API) error {
			api.On(extension.KindBeforeCompact, func(ctx context.Context, event extension.PipelineEvent) error {
				event.(*extension.BeforeCompactEvent).Cancel()
				return nil
			})
			return nil
		},
	}))

	provider := model.NewMockProvider().AddScript(model.TextEvents("ok")...)
	a := New(provider, quiet, func(o *Options) { o.Pipeline = pipeline })
	collect(a.Prompt(t.Context(), "hi"))

	ok := a.Compact(t.Context(), 2, core.NewUserMessage("summary"))
	assert.False(t, ok)
	assert.Len(t, a.Messages(), 2)
}

func TestAgentExtensionToolsAreCallable(t *testing.T) {
	pipeline := extension.NewPipeline()
	require.NoError(t, pipeline.Load(extension.Extension{
		Name: "files",
		Setup: func(api *extension.API) error {
			api.RegisterTool(readFileTool())
			return nil
		},
	}))

	provider := model.NewMockProvider().
		AddScript(model.ToolCallEvents(core.ToolCall{
			ID: "call_1", Name: "read_file", Arguments: map[string]any{"file_path": "b.go"},
		})...).
		AddScript(model.TextEvents("done")...)

	a := New(provider, quiet, func(o *Options) { o.Pipeline = pipeline })
	collect(a.Prompt(t.Context(), "read b.go"))

	history := a.Messages()
	require.Len(t, history, 4)
	assert.Equal(t, "contents of b.go", history[2].(core.ToolResultMessage).Text())
}
