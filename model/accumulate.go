package model

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// partialCall collects the fragments of one in-flight tool call.
type partialCall struct {
	id    string
	name  string
	args  strings.Builder
	order int
}

// ToolCallAccumulator merges streamed tool-call fragments into complete
// core.ToolCall values. Providers deliver id, name and argument JSON in
// arbitrary fragment order, correlated only by a per-stream block index; the
// accumulator is the single place that correlation logic lives so both
// adapters behave identically.
type ToolCallAccumulator struct {
	calls  map[int]*partialCall
	logger logging.Logger
}

// NewToolCallAccumulator constructs an accumulator. A nil logger is replaced
// with the no-op logger.
func NewToolCallAccumulator(logger logging.Logger) *ToolCallAccumulator {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolCallAccumulator{
		calls:  make(map[int]*partialCall),
		logger: logger,
	}
}

// Add merges one fragment into the call at index. The first non-empty id and
// name seen for an index win; later occurrences are ignored. Argument
// fragments are concatenated in arrival order.
func (a *ToolCallAccumulator) Add(index int, id, name, argsFragment string) {
	pc, ok := a.calls[index]
	if !ok {
		pc = &partialCall{order: len(a.calls)}
		a.calls[index] = pc
	}
	if pc.id == "" && id != "" {
		pc.id = id
	}
	if pc.name == "" && name != "" {
		pc.name = name
	}
	if argsFragment != "" {
		pc.args.WriteString(argsFragment)
	}
}

// Has reports whether any fragments were recorded at index.
func (a *ToolCallAccumulator) Has(index int) bool {
	_, ok := a.calls[index]
	return ok
}

// Finalize parses the accumulated argument buffer at index and returns the
// completed call, removing it from the accumulator. An empty buffer yields an
// empty argument map. A buffer that is not valid JSON also yields an empty
// map; the raw buffer is logged and dropped, never repaired and never passed
// through as text. Returns false if nothing was accumulated at index.
func (a *ToolCallAccumulator) Finalize(index int) (core.ToolCall, bool) {
	pc, ok := a.calls[index]
	if !ok {
		return core.ToolCall{}, false
	}
	delete(a.calls, index)
	return a.finish(pc), true
}

// FinalizeAll finalizes every remaining call in first-seen order. Used by
// adapters whose protocol has no per-block stop signal.
func (a *ToolCallAccumulator) FinalizeAll() []core.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	pending := make([]*partialCall, 0, len(a.calls))
	for _, pc := range a.calls {
		pending = append(pending, pc)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].order < pending[j].order })

	out := make([]core.ToolCall, 0, len(pending))
	for _, pc := range pending {
		out = append(out, a.finish(pc))
	}
	a.calls = make(map[int]*partialCall)
	return out
}

func (a *ToolCallAccumulator) finish(pc *partialCall) core.ToolCall {
	args := map[string]any{}
	if raw := pc.args.String(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			a.logger.Warn("dropping malformed tool call arguments",
				"tool", pc.name, "tool_call_id", pc.id, "raw", raw, "error", err)
			args = map[string]any{}
		}
	}
	return core.ToolCall{ID: pc.id, Name: pc.name, Arguments: args}
}
