// Package anthropic provides a model.Provider implementation backed by the
// Anthropic Messages API, including streaming with extended thinking and tool
// use. SSE events are translated into canonical core.StreamEvent values.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

// Options configure the Anthropic provider adapter. ThinkingBudget enables
// extended thinking when positive; thinking runs at the API's default
// temperature, so Temperature is ignored in that case.
type Options struct {
	Model          anthropic.Model
	Temperature    float64
	MaxTokens      int64
	ThinkingBudget int64
	APIKey         string
	BaseURL        string
	Logger         logging.Logger
}

// Provider wraps the Anthropic Messages API behind model.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// NewProvider creates a new Anthropic provider using the official client. The
// API key falls back to the ANTHROPIC_API_KEY environment variable.
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

	client := anthropic.NewClient(clientOpts...)

	return NewProviderFromClient(&client, optFns...)
}

// NewProviderFromClient creates a new Anthropic provider from an existing client.
func NewProviderFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
		Logger:      logging.NoOpLogger{},
	}
}

// Stream implements model.Provider. Text and thinking deltas pass through
// 1:1; tool input JSON fragments are accumulated per block index and emitted
// as a complete call when the block stops.
func (p *Provider) Stream(ctx context.Context, req model.Request) (<-chan core.StreamEvent, <-chan error) {
	out := make(chan core.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := p.buildParams(req)
		stream := p.client.Messages.NewStreaming(ctx, params)
		acc := model.NewToolCallAccumulator(p.opts.Logger)

		stopReason := core.StopReasonStop
		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_start":
				start := event.AsContentBlockStart()
				if start.ContentBlock.Type == "tool_use" {
					toolUse := start.ContentBlock.AsToolUse()
					acc.Add(int(start.Index), toolUse.ID, toolUse.Name, "")
				}

			case "content_block_delta":
				blockDelta := event.AsContentBlockDelta()
				delta := blockDelta.Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						out <- core.TextDelta{Text: delta.Text}
					}
				case "thinking_delta":
					if delta.Thinking != "" {
						out <- core.ReasoningDelta{
							Text:    delta.Thinking,
							BlockID: fmt.Sprintf("reasoning_%d", blockDelta.Index),
						}
					}
				case "input_json_delta":
					acc.Add(int(blockDelta.Index), "", "", delta.PartialJSON)
				}

			case "content_block_stop":
				stop := event.AsContentBlockStop()
				if call, ok := acc.Finalize(int(stop.Index)); ok {
					out <- core.ToolCallComplete{ToolCall: call}
				}

			case "message_delta":
				messageDelta := event.AsMessageDelta()
				if messageDelta.Delta.StopReason != "" {
					stopReason = mapStopReason(string(messageDelta.Delta.StopReason))
				}

			case "message_stop":
				out <- core.Finish{StopReason: stopReason}
				return

			case "error":
				var payload struct {
					Error struct {
						Type    string `json:"type"`
						Message string `json:"message"`
					} `json:"error"`
				}
				if err := json.Unmarshal([]byte(event.RawJSON()), &payload); err == nil && payload.Error.Message != "" {
					errCh <- fmt.Errorf("anthropic stream error: %s: %s", payload.Error.Type, payload.Error.Message)
				} else {
					errCh <- fmt.Errorf("anthropic stream error: %s", event.RawJSON())
				}
				return
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		}
	}()

	return out, errCh
}

// Complete implements the non-streaming variant of model.Provider.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*core.AssistantMessage, error) {
	params := p.buildParams(req)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	msg := &core.AssistantMessage{
		Model:      string(resp.Model),
		StopReason: mapStopReason(string(resp.StopReason)),
		Usage: &core.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
		Timestamp: time.Now().UTC(),
	}
	for i, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				msg.Content = append(msg.Content, core.TextBlock{Text: textBlock.Text})
			}
		case "thinking":
			thinkingBlock := block.AsThinking()
			msg.Content = append(msg.Content, core.ReasoningBlock{
				Text:        thinkingBlock.Thinking,
				ReasoningID: fmt.Sprintf("reasoning_%d", i),
			})
		case "tool_use":
			toolBlock := block.AsToolUse()
			msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: p.parseInput(toolBlock.Name, toolBlock.ID, toolBlock.Input),
			})
		}
	}
	return msg, nil
}

// parseInput normalizes a tool_use input payload into a map. Anything that is
// not a JSON object degrades to an empty map, logged and dropped.
func (p *Provider) parseInput(name, id string, input any) map[string]any {
	args := map[string]any{}
	if input == nil {
		return args
	}
	raw, err := json.Marshal(input)
	if err == nil {
		err = json.Unmarshal(raw, &args)
	}
	if err != nil {
		p.opts.Logger.Warn("dropping malformed tool call arguments",
			"tool", name, "tool_call_id", id, "error", err)
		return map[string]any{}
	}
	return args
}

// buildParams assembles the Messages API request.
func (p *Provider) buildParams(req model.Request) anthropic.MessageNewParams {
	maxTokens := p.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     p.opts.Model,
		Messages:  buildMessages(req.Messages),
		MaxTokens: maxTokens,
	}
	if req.Model != "" {
		params.Model = anthropic.Model(req.Model)
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if p.opts.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(p.opts.ThinkingBudget)
	} else {
		params.Temperature = anthropic.Float(p.opts.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

// buildMessages converts conversation history into Anthropic message params.
// Tool results belong to the user role on this API; consecutive results are
// folded into a single user message. Reasoning blocks are not replayed.
func buildMessages(history []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			messages = append(messages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range history {
		switch msg := m.(type) {
		case core.UserMessage:
			flushResults()
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case core.AssistantMessage:
			flushResults()
			var content []anthropic.ContentBlockParamUnion
			if text := msg.Text(); text != "" {
				content = append(content, anthropic.NewTextBlock(text))
			}
			for _, call := range msg.ToolCalls {
				input := call.Arguments
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case core.ToolResultMessage:
			pendingResults = append(pendingResults,
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text(), msg.IsError))
		}
	}
	flushResults()

	return messages
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if tool.Parameters != nil {
			if properties, exists := tool.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := tool.Parameters["required"]; exists {
				inputSchema.Required = requiredStrings(required)
			}
		}
		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
	}
	return anthropicTools
}

func requiredStrings(required any) []string {
	switch v := required.(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// mapStopReason normalizes Anthropic stop reasons. Unknown values degrade to
// a natural stop rather than failing the turn.
func mapStopReason(reason string) core.StopReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return core.StopReasonStop
	case "max_tokens":
		return core.StopReasonLength
	case "tool_use":
		return core.StopReasonToolCalls
	default:
		return core.StopReasonStop
	}
}
