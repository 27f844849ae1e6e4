// Package extension implements the plugin surface of the runtime: extensions
// register tools, commands and event handlers through a setup API, and a
// Pipeline dispatches lifecycle events to them sequentially with support for
// cancellation and mutation.
package extension

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/tool"
)

// Handler processes one pipeline event. Mutating the payload is allowed;
// returning an error logs the failure and continues with the next handler.
type Handler func(ctx context.Context, event PipelineEvent) error

// Command is a user-invokable command contributed by an extension.
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args string) (string, error)
}

// Extension declares a named extension. Setup is called once at load time and
// receives the API used to register the extension's contributions.
type Extension struct {
	Name  string
	Setup func(api *API) error
}

// Registration is the frozen outcome of one extension's setup: its tools,
// commands and handlers in registration order. Immutable after load.
type Registration struct {
	name     string
	tools    []tool.Tool
	commands []Command
	handlers map[Kind][]Handler
}

// Name returns the extension name.
func (r *Registration) Name() string { return r.name }

// API is the setup surface handed to an extension's Setup function. It is
// only valid during setup; contributions registered later are ignored.
type API struct {
	reg    *Registration
	notify func(message, level string)
}

// RegisterTool contributes a tool to the agent's tool set.
func (a *API) RegisterTool(t tool.Tool) {
	a.reg.tools = append(a.reg.tools, t)
}

// RegisterCommand contributes a user-invokable command.
func (a *API) RegisterCommand(cmd Command) {
	a.reg.commands = append(a.reg.commands, cmd)
}

// On subscribes a handler to one event kind. Handlers run in registration
// order within the extension.
func (a *API) On(kind Kind, h Handler) {
	a.reg.handlers[kind] = append(a.reg.handlers[kind], h)
}

// Notify surfaces a message to the host application (level is "info", "warn"
// or "error").
func (a *API) Notify(message, level string) {
	if a.notify != nil {
		a.notify(message, level)
	}
}

// load runs ext.Setup against a fresh registration.
func load(ext Extension, notify func(message, level string)) (*Registration, error) {
	if ext.Name == "" {
		return nil, fmt.Errorf("extension name must not be empty")
	}
	if ext.Setup == nil {
		return nil, fmt.Errorf("extension %q has no setup function", ext.Name)
	}
	reg := &Registration{
		name:     ext.Name,
		handlers: make(map[Kind][]Handler),
	}
	if err := ext.Setup(&API{reg: reg, notify: notify}); err != nil {
		return nil, fmt.Errorf("setup of extension %q failed: %w", ext.Name, err)
	}
	return reg, nil
}
