package extension

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/tool"
)

// PipelineOptions configure a Pipeline.
type PipelineOptions struct {
	// Logger receives handler failures and panics.
	Logger logging.Logger
	// Notify receives extension notifications (API.Notify).
	Notify func(message, level string)
}

// Pipeline dispatches lifecycle events to loaded extensions. Dispatch is
// strictly sequential: extensions in load order, handlers per extension in
// registration order. There is no concurrent delivery; handlers may mutate
// the payload and later handlers observe the mutation.
type Pipeline struct {
	regs   []*Registration
	logger logging.Logger
	notify func(message, level string)
}

// NewPipeline creates an empty pipeline.
func NewPipeline(optFns ...func(o *PipelineOptions)) *Pipeline {
	opts := PipelineOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pipeline{logger: opts.Logger, notify: opts.Notify}
}

// Load runs each extension's setup and freezes its registration. Loading
// stops at the first setup failure; already loaded extensions stay loaded.
func (p *Pipeline) Load(exts ...Extension) error {
	for _, ext := range exts {
		reg, err := load(ext, p.notify)
		if err != nil {
			return err
		}
		p.regs = append(p.regs, reg)
	}
	return nil
}

// Emit dispatches event to every subscribed handler and returns the (possibly
// mutated) payload. A handler that cancels a Cancellable event short-circuits
// all remaining handlers, both in the same extension and in later ones.
// Handler errors and panics are logged and treated as no-ops; one broken
// extension never takes down the run.
func (p *Pipeline) Emit(ctx context.Context, event PipelineEvent) PipelineEvent {
	kind := event.Kind()
	for _, reg := range p.regs {
		for _, handler := range reg.handlers[kind] {
			p.invoke(ctx, reg.name, kind, event, handler)
			if c, ok := event.(Cancellable); ok && c.Cancelled() {
				return event
			}
		}
	}
	return event
}

func (p *Pipeline) invoke(ctx context.Context, name string, kind Kind, event PipelineEvent, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("extension handler panicked",
				"extension", name, "event", string(kind), "panic", r)
		}
	}()
	if err := handler(ctx, event); err != nil {
		p.logger.Warn("extension handler failed",
			"extension", name, "event", string(kind), "error", err)
	}
}

// HasHandlers reports whether any loaded extension subscribed to kind.
// The runtime uses it to skip payload construction for unobserved events.
func (p *Pipeline) HasHandlers(kind Kind) bool {
	for _, reg := range p.regs {
		if len(reg.handlers[kind]) > 0 {
			return true
		}
	}
	return false
}

// Tools returns all tools contributed by loaded extensions, in load order.
func (p *Pipeline) Tools() []tool.Tool {
	var tools []tool.Tool
	for _, reg := range p.regs {
		tools = append(tools, reg.tools...)
	}
	return tools
}

// Commands returns all commands contributed by loaded extensions, in load order.
func (p *Pipeline) Commands() []Command {
	var commands []Command
	for _, reg := range p.regs {
		commands = append(commands, reg.commands...)
	}
	return commands
}

// ExecuteCommand runs the named command. Later extensions cannot shadow
// earlier ones; the first registration wins.
func (p *Pipeline) ExecuteCommand(ctx context.Context, name, args string) (string, error) {
	for _, reg := range p.regs {
		for _, cmd := range reg.commands {
			if cmd.Name == name {
				return cmd.Run(ctx, args)
			}
		}
	}
	return "", fmt.Errorf("unknown command %q", name)
}
