package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/extension"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// Executor turns tool calls into tool result messages. Every call the model
// makes yields exactly one ToolResultMessage, whatever goes wrong: invalid
// arguments, unknown tools, extension vetoes, tool errors and tool panics all
// become error results so the model always gets feedback.
type Executor struct {
	tools    map[string]tool.Tool
	order    []string
	pipeline *extension.Pipeline
	logger   logging.Logger
}

// NewExecutor creates an executor over the given tools. The pipeline is
// optional; when present its tool_call handlers may veto calls and its
// tool_result handlers observe outcomes.
func NewExecutor(tools []tool.Tool, pipeline *extension.Pipeline, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	e := &Executor{
		tools:    make(map[string]tool.Tool),
		pipeline: pipeline,
		logger:   logger,
	}
	for _, t := range tools {
		e.Register(t)
	}
	return e
}

// Register adds a tool; a tool with the same name replaces the earlier one.
func (e *Executor) Register(t tool.Tool) {
	if _, exists := e.tools[t.Name()]; !exists {
		e.order = append(e.order, t.Name())
	}
	e.tools[t.Name()] = t
}

// Definitions returns the wire definitions of all registered tools in
// registration order.
func (e *Executor) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(e.order))
	for _, name := range e.order {
		t := e.tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Execute runs one tool call end to end: extension veto check, execution with
// panic recovery, result normalization. Lifecycle events go to emit; the
// tool's progress callback surfaces as tool execution update events.
func (e *Executor) Execute(ctx context.Context, call core.ToolCall, emit func(core.Event)) core.ToolResultMessage {
	if e.pipeline != nil && e.pipeline.HasHandlers(extension.KindToolCall) {
		ev := e.pipeline.Emit(ctx, &extension.ToolCallEvent{Call: call}).(*extension.ToolCallEvent)
		if ev.Cancelled() {
			e.logger.Info("tool call blocked by extension", "tool", call.Name, "tool_call_id", call.ID)
			result := core.NewToolResultMessage(call.ID, call.Name,
				fmt.Sprintf("Error: tool call %q was blocked by an extension", call.Name), true)
			e.notifyResult(ctx, call, result)
			return result
		}
		call = ev.Call
	}

	emit(core.NewToolExecutionStartEvent(call.ID, call.Name, call.Arguments))
	result := e.run(ctx, call, emit)
	emit(core.NewToolExecutionEndEvent(call.ID, call.Name, result.Content, result.IsError))

	e.notifyResult(ctx, call, result)
	return result
}

// run performs the actual invocation. The named result lets the recover path
// replace a panicking tool's outcome with an error result.
func (e *Executor) run(ctx context.Context, call core.ToolCall, emit func(core.Event)) (result core.ToolResultMessage) {
	// Unparseable argument JSON is normalized to an empty map upstream, so an
	// empty map means the call carried no usable payload. The error result
	// lets the model retry with corrected arguments.
	if len(call.Arguments) == 0 {
		return core.NewToolResultMessage(call.ID, call.Name,
			fmt.Sprintf("Error: missing or invalid arguments for tool %q; expected a JSON object", call.Name), true)
	}

	t, ok := e.tools[call.Name]
	if !ok {
		return core.NewToolResultMessage(call.ID, call.Name,
			fmt.Sprintf("Error: unknown tool %q", call.Name), true)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool execution panicked", "tool", call.Name, "panic", r)
			result = core.NewToolResultMessage(call.ID, call.Name,
				fmt.Sprintf("Error executing tool: %v", r), true)
		}
	}()

	onUpdate := func(partial string) {
		emit(core.NewToolExecutionUpdateEvent(call.ID, call.Name, partial))
	}

	res, err := t.Execute(ctx, call.ID, call.Arguments, onUpdate)
	if err != nil {
		return core.NewToolResultMessage(call.ID, call.Name,
			fmt.Sprintf("Error executing tool: %s", err), true)
	}
	if res == nil {
		res = tool.NewTextResult("")
	}
	return core.ToolResultMessage{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    res.Content,
		IsError:    res.IsError,
		Timestamp:  time.Now().UTC(),
	}
}

func (e *Executor) notifyResult(ctx context.Context, call core.ToolCall, result core.ToolResultMessage) {
	if e.pipeline != nil && e.pipeline.HasHandlers(extension.KindToolResult) {
		e.pipeline.Emit(ctx, &extension.ToolResultEvent{Call: call, Result: result})
	}
}
