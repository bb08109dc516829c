// Package anthropic adapts the Anthropic Messages API to the
// model.ChatProvider contract. Structured output schemas are not natively
// supported by the API and are ignored; callers relying on them should
// instruct the model through the system prompt.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/agentrun/agentrun/core"
	"github.com/agentrun/agentrun/model"
)

// Options configure the Anthropic provider adapter (model id, temperature,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Provider wraps the Anthropic Messages API behind model.ChatProvider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// New creates an Anthropic provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates an Anthropic provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
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
	}
}

// Chat implements model.ChatProvider.
func (p *Provider) Chat(ctx context.Context, messages []core.ChatMessage, _ json.RawMessage) (*model.Response, error) {
	return p.complete(ctx, p.buildParams(messages, nil))
}

// ChatWithTools implements model.ChatProvider.
func (p *Provider) ChatWithTools(ctx context.Context, messages []core.ChatMessage, tools []model.ToolDefinition, _ json.RawMessage) (*model.Response, error) {
	return p.complete(ctx, p.buildParams(messages, tools))
}

// ChatStream implements model.ChatProvider.
func (p *Provider) ChatStream(ctx context.Context, messages []core.ChatMessage, _ json.RawMessage) (<-chan model.StreamChunk, <-chan error) {
	return p.stream(ctx, p.buildParams(messages, nil))
}

// ChatStreamWithTools implements model.ChatProvider.
func (p *Provider) ChatStreamWithTools(ctx context.Context, messages []core.ChatMessage, tools []model.ToolDefinition, _ json.RawMessage) (<-chan model.StreamChunk, <-chan error) {
	return p.stream(ctx, p.buildParams(messages, tools))
}

// Info implements model.ChatProvider.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          string(p.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}

func (p *Provider) complete(ctx context.Context, params anthropic.MessageNewParams) (*model.Response, error) {
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	out := &model.Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if data, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(data)
				}
			}
			out.ToolCalls = append(out.ToolCalls, core.ToolCall{
				ID:   toolBlock.ID,
				Type: "function",
				Function: core.FunctionCall{
					Name:      toolBlock.Name,
					Arguments: args,
				},
			})
		}
	}
	out.Usage = &model.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return out, nil
}

func (p *Provider) stream(ctx context.Context, params anthropic.MessageNewParams) (<-chan model.StreamChunk, <-chan error) {
	out := make(chan model.StreamChunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		stream := p.client.Messages.NewStreaming(ctx, params)
		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				errCh <- fmt.Errorf("anthropic stream accumulation error: %w", err)
				return
			}
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
					out <- model.TextChunk(text.Text)
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
			return
		}

		// Tool calls surface only once finalized; argument fragments stay
		// internal to the accumulator.
		for i, block := range message.Content {
			if block.Type != "tool_use" {
				continue
			}
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if data, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(data)
				}
			}
			call := core.ToolCall{
				ID:       toolBlock.ID,
				Type:     "function",
				Function: core.FunctionCall{Name: toolBlock.Name, Arguments: args},
			}
			out <- model.ToolStartChunk(i, call.ID, call.Function.Name)
			out <- model.ToolDoneChunk(i, call)
		}
		out <- model.StreamChunk{Kind: model.ChunkUsage, Usage: &model.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		}}
		out <- model.DoneChunk(string(message.StopReason))
	}()

	return out, errCh
}

func (p *Provider) buildParams(messages []core.ChatMessage, tools []model.ToolDefinition) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       p.opts.Model,
		Messages:    buildMessages(messages),
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
	}
	if system := extractSystem(messages); len(system) > 0 {
		params.System = system
	}
	if len(tools) > 0 {
		params.Tools = buildTools(tools)
	}
	return params
}

// buildMessages converts normalized chat messages into Anthropic messages.
// Tool results must arrive in a user message per the Messages API contract.
func buildMessages(messages []core.ChatMessage) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		switch {
		case msg.Role == core.RoleSystem:
			// Handled separately via the system parameter.
		case msg.Kind == core.KindImage && msg.Image != nil:
			blocks := []anthropic.ContentBlockParamUnion{
				anthropic.NewImageBlockBase64(string(msg.Image.Mime), base64.StdEncoding.EncodeToString(msg.Image.Data)),
			}
			if msg.Content != "" {
				blocks = append([]anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}, blocks...)
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		case msg.Kind == core.KindToolUse:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input any
				if call.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
						input = call.Function.Arguments
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Function.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case msg.Kind == core.KindToolResult:
			blocks := make([]anthropic.ContentBlockParamUnion, len(msg.ToolResults))
			for i, result := range msg.ToolResults {
				blocks[i] = anthropic.NewToolResultBlock(result.ID, result.Function.Arguments, false)
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		case msg.Role == core.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}

func extractSystem(messages []core.ChatMessage) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, msg := range messages {
		if msg.Role == core.RoleSystem && msg.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content})
		}
	}
	return blocks
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, def := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if def.Function.Parameters != nil {
			if properties, ok := def.Function.Parameters["properties"]; ok {
				schema.Properties = properties
			}
			switch required := def.Function.Parameters["required"].(type) {
			case []string:
				schema.Required = required
			case []any:
				for _, r := range required {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, def.Function.Name)
	}
	return out
}
