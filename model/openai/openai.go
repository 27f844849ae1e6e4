// Package openai provides a model.Provider implementation backed by the
// OpenAI Chat Completions API (streaming + function/tool calling). It adapts
// the normalized request/message structures into the SDK's message format and
// translates streamed chunks into canonical core.StreamEvent values.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

// Options configure the OpenAI provider adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	Logger      logging.Logger
}

// Provider wraps the OpenAI Chat Completions API behind model.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
}

// NewProvider creates a new OpenAI provider using the official client. The
// API key falls back to the OPENAI_API_KEY environment variable.
func NewProvider(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)

	return NewProviderFromClient(&client, optFns...)
}

// NewProviderFromClient creates a new OpenAI provider from an existing client.
func NewProviderFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0.7,
		MaxTokens:   4096,
		Logger:      logging.NoOpLogger{},
	}
}

// Stream implements model.Provider. Text deltas pass through 1:1; tool call
// fragments are accumulated per chunk index and emitted as complete calls
// when the provider signals the finish reason.
func (p *Provider) Stream(ctx context.Context, req model.Request) (<-chan core.StreamEvent, <-chan error) {
	out := make(chan core.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := p.buildParams(req)
		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		acc := model.NewToolCallAccumulator(p.opts.Logger)

		finished := false
		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					out <- core.TextDelta{Text: ch.Delta.Content}
				}
				for _, tc := range ch.Delta.ToolCalls {
					acc.Add(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments)
				}
				if ch.FinishReason != "" && !finished {
					finished = true
					for _, call := range acc.FinalizeAll() {
						out <- core.ToolCallComplete{ToolCall: call}
					}
					out <- core.Finish{StopReason: mapStopReason(ch.FinishReason)}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
		}
	}()

	return out, errCh
}

// Complete implements the non-streaming variant of model.Provider.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*core.AssistantMessage, error) {
	params := p.buildParams(req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api returned no choices")
	}

	ch0 := resp.Choices[0]
	msg := &core.AssistantMessage{
		Model:      resp.Model,
		StopReason: mapStopReason(ch0.FinishReason),
		Usage: &core.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
		Timestamp: time.Now().UTC(),
	}
	if ch0.Message.Content != "" {
		msg.Content = []core.ContentBlock{core.TextBlock{Text: ch0.Message.Content}}
	}
	for _, tc := range ch0.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: p.parseArguments(tc.Function.Name, tc.ID, tc.Function.Arguments),
		})
	}
	return msg, nil
}

// parseArguments decodes an argument JSON string into a map. Empty and
// malformed payloads both normalize to an empty map; malformed payloads are
// logged and dropped rather than repaired.
func (p *Provider) parseArguments(name, id, raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		p.opts.Logger.Warn("dropping malformed tool call arguments",
			"tool", name, "tool_call_id", id, "error", err)
		return map[string]any{}
	}
	return args
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (p *Provider) buildParams(req model.Request) openai.ChatCompletionNewParams {
	maxTokens := p.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               p.opts.Model,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if req.Model != "" {
		params.Model = req.Model
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  tdef.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// buildMessages converts conversation history into OpenAI chat messages.
// Tool results map directly onto tool role messages keyed by call id.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch msg := m.(type) {
		case core.UserMessage:
			messages = append(messages, openai.UserMessage(msg.Content))
		case core.AssistantMessage:
			if len(msg.ToolCalls) == 0 {
				if text := msg.Text(); text != "" {
					messages = append(messages, openai.AssistantMessage(text))
				}
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: toolCallParams(msg.ToolCalls),
			}
			if text := msg.Text(); text != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(text),
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case core.ToolResultMessage:
			messages = append(messages, openai.ToolMessage(msg.Text(), msg.ToolCallID))
		}
	}
	return messages
}

// toolCallParams re-serializes accumulated tool calls for history replay.
func toolCallParams(calls []core.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	params := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, c := range calls {
		args := "{}"
		if c.Arguments != nil {
			if b, err := json.Marshal(c.Arguments); err == nil {
				args = string(b)
			}
		}
		params[i] = openai.ChatCompletionMessageToolCallParam{
			ID:   c.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      c.Name,
				Arguments: args,
			},
		}
	}
	return params
}

// mapStopReason normalizes OpenAI finish reasons. Unknown values degrade to a
// natural stop rather than failing the turn.
func mapStopReason(reason string) core.StopReason {
	switch reason {
	case "stop":
		return core.StopReasonStop
	case "length":
		return core.StopReasonLength
	case "tool_calls", "function_call":
		return core.StopReasonToolCalls
	default:
		return core.StopReasonStop
	}
}
