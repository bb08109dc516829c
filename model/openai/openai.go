// Package openai adapts the OpenAI Chat Completions API (including streaming
// and function/tool calling) to the model.ChatProvider contract. It converts
// normalized chat messages into the SDK's message format and back.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/agentrun/agentrun/core"
	"github.com/agentrun/agentrun/model"
)

// Options configure the OpenAI provider adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Provider wraps the OpenAI Chat Completions API behind model.ChatProvider.
type Provider struct {
	client *openai.Client
	opts   Options
}

// New creates an OpenAI provider using the official client with credentials
// from the environment.
func New(optFns ...func(o *Options)) *Provider {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an OpenAI provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Chat implements model.ChatProvider.
func (p *Provider) Chat(ctx context.Context, messages []core.ChatMessage, outputSchema json.RawMessage) (*model.Response, error) {
	return p.complete(ctx, p.buildParams(messages, nil, outputSchema))
}

// ChatWithTools implements model.ChatProvider.
func (p *Provider) ChatWithTools(ctx context.Context, messages []core.ChatMessage, tools []model.ToolDefinition, outputSchema json.RawMessage) (*model.Response, error) {
	return p.complete(ctx, p.buildParams(messages, tools, outputSchema))
}

// ChatStream implements model.ChatProvider.
func (p *Provider) ChatStream(ctx context.Context, messages []core.ChatMessage, outputSchema json.RawMessage) (<-chan model.StreamChunk, <-chan error) {
	return p.stream(ctx, p.buildParams(messages, nil, outputSchema))
}

// ChatStreamWithTools implements model.ChatProvider.
func (p *Provider) ChatStreamWithTools(ctx context.Context, messages []core.ChatMessage, tools []model.ToolDefinition, outputSchema json.RawMessage) (<-chan model.StreamChunk, <-chan error) {
	return p.stream(ctx, p.buildParams(messages, tools, outputSchema))
}

// Info implements model.ChatProvider.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          p.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}

func (p *Provider) complete(ctx context.Context, params openai.ChatCompletionNewParams) (*model.Response, error) {
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices returned")
	}
	choice := resp.Choices[0]

	out := &model.Response{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: core.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	out.Usage = &model.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out, nil
}

// aggCall aggregates partial tool call streaming deltas (id, name,
// arguments) so complete calls can be reconstructed at the finish marker.
type aggCall struct {
	id      string
	name    string
	args    string
	started bool
}

func (p *Provider) stream(ctx context.Context, params openai.ChatCompletionNewParams) (<-chan model.StreamChunk, <-chan error) {
	out := make(chan model.StreamChunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		agg := map[int64]*aggCall{}
		var finish string

		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					out <- model.TextChunk(choice.Delta.Content)
				}
				for _, tc := range choice.Delta.ToolCalls {
					ac, ok := agg[tc.Index]
					if !ok {
						ac = &aggCall{}
						agg[tc.Index] = ac
					}
					if tc.ID != "" {
						ac.id = tc.ID
					}
					if tc.Function.Name != "" {
						ac.name = tc.Function.Name
					}
					if !ac.started && ac.id != "" && ac.name != "" {
						ac.started = true
						out <- model.ToolStartChunk(int(tc.Index), ac.id, ac.name)
					}
					if tc.Function.Arguments != "" {
						ac.args += tc.Function.Arguments
						out <- model.ToolDeltaChunk(int(tc.Index), tc.Function.Arguments)
					}
				}
				if choice.FinishReason != "" {
					finish = choice.FinishReason
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
			return
		}

		for index, ac := range agg {
			out <- model.ToolDoneChunk(int(index), core.ToolCall{
				ID:       ac.id,
				Type:     "function",
				Function: core.FunctionCall{Name: ac.name, Arguments: ac.args},
			})
		}
		if finish == "" {
			finish = "stop"
		}
		out <- model.DoneChunk(finish)
	}()

	return out, errCh
}

// buildParams assembles the request parameters including tool definitions
// and the optional structured output schema.
func (p *Provider) buildParams(messages []core.ChatMessage, tools []model.ToolDefinition, outputSchema json.RawMessage) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(messages),
		Model:               p.opts.Model,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
	}
	if len(tools) > 0 {
		toolParams := make([]openai.ChatCompletionToolParam, len(tools))
		for i, def := range tools {
			toolParams[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        def.Function.Name,
					Description: openai.String(def.Function.Description),
					Parameters:  def.Function.Parameters,
				},
			}
		}
		params.Tools = toolParams
	}
	if outputSchema != nil {
		var schema map[string]any
		if err := json.Unmarshal(outputSchema, &schema); err == nil {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
					JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:   "structured_output",
						Schema: schema,
					},
				},
			}
		}
	}
	return params
}

// buildMessages converts normalized chat messages into OpenAI chat messages.
// Tool results follow their tool-use message in the normalized sequence, so
// the conversion is positional.
func buildMessages(messages []core.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch {
		case msg.Role == core.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case msg.Kind == core.KindImage && msg.Image != nil:
			out = append(out, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(msg.Content),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: imageDataURL(msg.Image),
				}),
			}))
		case msg.Kind == core.KindToolUse:
			calls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
			for i, call := range msg.ToolCalls {
				calls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   call.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					},
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: calls,
				},
			})
		case msg.Kind == core.KindToolResult:
			for _, result := range msg.ToolResults {
				out = append(out, openai.ToolMessage(result.Function.Arguments, result.ID))
			}
		case msg.Role == core.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func imageDataURL(img *core.ImageAttachment) string {
	return fmt.Sprintf("data:%s;base64,%s", img.Mime, base64.StdEncoding.EncodeToString(img.Data))
}
