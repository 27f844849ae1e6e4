package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// HandlerFunc is the execution body of a FuncTool. The args map is never nil.
type HandlerFunc func(ctx context.Context, args map[string]any, onUpdate func(partial string)) (*Result, error)

// FuncTool adapts a plain Go function into a Tool. The parameter schema is
// compiled lazily on first ValidateArguments call and cached.
type FuncTool struct {
	name        string
	description string
	parameters  map[string]any
	handler     HandlerFunc

	compileOnce sync.Once
	schema      *jsonschema.Schema
	compileErr  error
}

// NewFuncTool creates a tool from a name, description, JSON parameter schema
// and handler function.
func NewFuncTool(name, description string, parameters map[string]any, handler HandlerFunc) *FuncTool {
	return &FuncTool{
		name:        name,
		description: description,
		parameters:  parameters,
		handler:     handler,
	}
}

// Name implements Tool.
func (t *FuncTool) Name() string { return t.name }

// Description implements Tool.
func (t *FuncTool) Description() string { return t.description }

// Parameters implements Tool.
func (t *FuncTool) Parameters() map[string]any { return t.parameters }

// Execute implements Tool by delegating to the handler.
func (t *FuncTool) Execute(ctx context.Context, callID string, args map[string]any, onUpdate func(partial string)) (*Result, error) {
	if onUpdate == nil {
		onUpdate = func(string) {}
	}
	return t.handler(ctx, args, onUpdate)
}

// ValidateArguments checks args against the tool's JSON parameter schema.
// It is part of the tool contract for callers that want pre-flight checks;
// the runtime's executor deliberately leaves enforcement to the tool itself.
func (t *FuncTool) ValidateArguments(args map[string]any) error {
	t.compileOnce.Do(func() {
		raw, err := json.Marshal(t.parameters)
		if err != nil {
			t.compileErr = fmt.Errorf("encode parameter schema: %w", err)
			return
		}
		t.schema, t.compileErr = jsonschema.CompileString(t.name+".schema.json", string(raw))
	})
	if t.compileErr != nil {
		return NewToolError(t.name, t.compileErr.Error(), "invalid_schema")
	}

	// Round-trip through JSON so numeric types match what a decoded payload
	// would contain.
	payload, err := json.Marshal(args)
	if err != nil {
		return NewToolError(t.name, err.Error(), "invalid_arguments")
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return NewToolError(t.name, err.Error(), "invalid_arguments")
	}
	if err := t.schema.Validate(decoded); err != nil {
		return NewToolError(t.name, err.Error(), "invalid_arguments")
	}
	return nil
}
