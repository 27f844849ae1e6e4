package extension

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/tool"
)

func TestPipelineLoad(t *testing.T) {
	t.Run("collects tools and commands", func(t *testing.T) {
		pipeline := NewPipeline()
		err := pipeline.Load(Extension{
			Name: "files",
			Setup: func(api *API) error {
				api.RegisterTool(tool.NewFuncTool("read_file", "Reads a file.", nil,
					func(ctx context.Context, args map[string]any, onUpdate func(string)) (*tool.Result, error) {
						return tool.NewTextResult("ok"), nil
					}))
				api.RegisterCommand(Command{
					Name:        "stats",
					Description: "Show file stats.",
					Run: func(ctx context.Context, args string) (string, error) {
						return "42 files", nil
					},
				})
				return nil
			},
		})
		require.NoError(t, err)

		require.Len(t, pipeline.Tools(), 1)
		assert.Equal(t, "read_file", pipeline.Tools()[0].Name())
		require.Len(t, pipeline.Commands(), 1)

		out, err := pipeline.ExecuteCommand(t.Context(), "stats", "")
		require.NoError(t, err)
		assert.Equal(t, "42 files", out)

		_, err = pipeline.ExecuteCommand(t.Context(), "missing", "")
		assert.Error(t, err)
	})

	t.Run("setup failure is surfaced", func(t *testing.T) {
		pipeline := NewPipeline()
		err := pipeline.Load(Extension{
			Name:  "broken",
			Setup: func(api *API) error { return errors.New("boom") },
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("nameless extension is rejected", func(t *testing.T) {
		err := NewPipeline().Load(Extension{Setup: func(api *API) error { return nil }})
		assert.Error(t, err)
	})
}

func TestPipelineEmit(t *testing.T) {
	t.Run("sequential order across extensions", func(t *testing.T) {
		var order []string
		record := func(name string) Handler {
			return func(ctx context.Context, event PipelineEvent) error {
				order = append(order, name)
				return nil
			}
		}

		pipeline := NewPipeline()
		require.NoError(t, pipeline.Load(
			Extension{Name: "first", Setup: func(api *API) error {
				api.On(KindTurnStart, record("first.a"))
				api.On(KindTurnStart, record("first.b"))
				return nil
			}},
			Extension{Name: "second", Setup: func(api *API) error {
				api.On(KindTurnStart, record("second.a"))
				return nil
			}},
		))

		pipeline.Emit(t.Context(), &TurnStartEvent{Turn: 1})
		assert.Equal(t, []string{"first.a", "first.b", "second.a"}, order)
	})

	t.Run("mutations are visible to later handlers", func(t *testing.T) {
		pipeline := NewPipeline()
		var seen []core.Message
		require.NoError(t, pipeline.Load(
			Extension{Name: "injector", Setup: func(api *API) error {
				api.On(KindContext, func(ctx context.Context, event PipelineEvent) error {
					e := event.(*ContextEvent)
					e.Messages = append([]core.Message{core.NewUserMessage("context note")}, e.Messages...)
					return nil
				})
				return nil
			}},
			Extension{Name: "observer", Setup: func(api *API) error {
				api.On(KindContext, func(ctx context.Context, event PipelineEvent) error {
					seen = event.(*ContextEvent).Messages
					return nil
				})
				return nil
			}},
		))

		out := pipeline.Emit(t.Context(), &ContextEvent{
			Messages: []core.Message{core.NewUserMessage("hi")},
		})
		require.Len(t, seen, 2)
		assert.Len(t, out.(*ContextEvent).Messages, 2)
	})

	t.Run("cancellation short-circuits remaining handlers", func(t *testing.T) {
		var calls int
		pipeline := NewPipeline()
		require.NoError(t, pipeline.Load(
			Extension{Name: "guard", Setup: func(api *API) error {
				api.On(KindToolCall, func(ctx context.Context, event PipelineEvent) error {
					e := event.(*ToolCallEvent)
					if e.Call.Name == "bash" {
						e.Cancel()
					}
					return nil
				})
				api.On(KindToolCall, func(ctx context.Context, event PipelineEvent) error {
					calls++
					return nil
				})
				return nil
			}},
			Extension{Name: "late", Setup: func(api *API) error {
				api.On(KindToolCall, func(ctx context.Context, event PipelineEvent) error {
					calls++
					return nil
				})
				return nil
			}},
		))

		out := pipeline.Emit(t.Context(), &ToolCallEvent{
			Call: core.ToolCall{ID: "call_1", Name: "bash", Arguments: map[string]any{"command": "rm -rf /"}},
		})
		assert.True(t, out.(*ToolCallEvent).Cancelled())
		assert.Zero(t, calls, "handlers after the cancelling one must not run")

		out = pipeline.Emit(t.Context(), &ToolCallEvent{
			Call: core.ToolCall{ID: "call_2", Name: "echo"},
		})
		assert.False(t, out.(*ToolCallEvent).Cancelled())
		assert.Equal(t, 2, calls)
	})

	t.Run("handler errors and panics are isolated", func(t *testing.T) {
		var reached bool
		pipeline := NewPipeline()
		require.NoError(t, pipeline.Load(
			Extension{Name: "flaky", Setup: func(api *API) error {
				api.On(KindTurnEnd, func(ctx context.Context, event PipelineEvent) error {
					return errors.New("handler error")
				})
				api.On(KindTurnEnd, func(ctx context.Context, event PipelineEvent) error {
					panic("handler panic")
				})
				return nil
			}},
			Extension{Name: "stable", Setup: func(api *API) error {
				api.On(KindTurnEnd, func(ctx context.Context, event PipelineEvent) error {
					reached = true
					return nil
				})
				return nil
			}},
		))

		assert.NotPanics(t, func() {
			pipeline.Emit(t.Context(), &TurnEndEvent{Turn: 1})
		})
		assert.True(t, reached)
	})

	t.Run("has handlers", func(t *testing.T) {
		pipeline := NewPipeline()
		require.NoError(t, pipeline.Load(Extension{Name: "x", Setup: func(api *API) error {
			api.On(KindCompact, func(ctx context.Context, event PipelineEvent) error { return nil })
			return nil
		}}))
		assert.True(t, pipeline.HasHandlers(KindCompact))
		assert.False(t, pipeline.HasHandlers(KindSessionStart))
	})
}
