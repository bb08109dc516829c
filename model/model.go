// Package model defines the chat provider contract consumed by agent
// executors, the normalized response/stream types shared by all provider
// adapters, and a scripted mock provider for tests and examples.
package model

import (
	"context"
	"encoding/json"

	"github.com/agentrun/agentrun/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a JSON Schema object (draft agnostic, minimal subset
// expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage captures token usage statistics for a response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the normalized final output of a chat call. Either Text,
// ToolCalls or both may be populated.
type Response struct {
	Text      string          `json:"text"`
	ToolCalls []core.ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`
}

// StreamChunkKind discriminates streaming chunk payloads.
type StreamChunkKind string

// Stream chunk kinds.
const (
	ChunkText          StreamChunkKind = "text"
	ChunkToolCallStart StreamChunkKind = "tool_call_start"
	ChunkToolCallDelta StreamChunkKind = "tool_call_delta"
	ChunkToolCallDone  StreamChunkKind = "tool_call_done"
	ChunkDone          StreamChunkKind = "done"
	ChunkUsage         StreamChunkKind = "usage"
)

// StreamChunk is one element of a lazy, finite chat stream. Text fragments
// arrive as ChunkText; tool calls accumulate through start/delta chunks keyed
// by Index until a ChunkToolCallDone carries the reconstituted call; ChunkDone
// terminates the logical response.
type StreamChunk struct {
	Kind StreamChunkKind `json:"kind"`

	Text           string         `json:"text,omitempty"`            // ChunkText
	Index          int            `json:"index,omitempty"`           // tool call slot
	ID             string         `json:"id,omitempty"`              // ChunkToolCallStart
	Name           string         `json:"name,omitempty"`            // ChunkToolCallStart
	ArgumentsDelta string         `json:"arguments_delta,omitempty"` // ChunkToolCallDelta
	ToolCall       *core.ToolCall `json:"tool_call,omitempty"`       // ChunkToolCallDone
	StopReason     string         `json:"stop_reason,omitempty"`     // ChunkDone
	Usage          *Usage         `json:"usage,omitempty"`           // ChunkUsage
}

// TextChunk builds a text fragment chunk.
func TextChunk(text string) StreamChunk { return StreamChunk{Kind: ChunkText, Text: text} }

// ToolStartChunk announces an accumulating tool call at the given slot.
func ToolStartChunk(index int, id, name string) StreamChunk {
	return StreamChunk{Kind: ChunkToolCallStart, Index: index, ID: id, Name: name}
}

// ToolDeltaChunk carries a partial-arguments fragment for a slot.
func ToolDeltaChunk(index int, delta string) StreamChunk {
	return StreamChunk{Kind: ChunkToolCallDelta, Index: index, ArgumentsDelta: delta}
}

// ToolDoneChunk carries a fully reconstituted tool call.
func ToolDoneChunk(index int, call core.ToolCall) StreamChunk {
	return StreamChunk{Kind: ChunkToolCallDone, Index: index, ToolCall: &call}
}

// DoneChunk terminates a streamed response.
func DoneChunk(stopReason string) StreamChunk {
	return StreamChunk{Kind: ChunkDone, StopReason: stopReason}
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsTools bool   `json:"supports_tools"`
}

// ChatProvider is the minimal interface agent executors require to drive
// generation. outputSchema, when non-nil, is a JSON Schema the provider
// should use to constrain the final answer; providers without native support
// may ignore it.
//
// Streaming methods return a chunk channel and an error channel; both are
// closed by the producer when the response finishes or the context is
// cancelled. A nil tools slice is equivalent to declaring no tools.
type ChatProvider interface {
	Chat(ctx context.Context, messages []core.ChatMessage, outputSchema json.RawMessage) (*Response, error)

	ChatWithTools(ctx context.Context, messages []core.ChatMessage, tools []ToolDefinition, outputSchema json.RawMessage) (*Response, error)

	ChatStream(ctx context.Context, messages []core.ChatMessage, outputSchema json.RawMessage) (<-chan StreamChunk, <-chan error)

	ChatStreamWithTools(ctx context.Context, messages []core.ChatMessage, tools []ToolDefinition, outputSchema json.RawMessage) (<-chan StreamChunk, <-chan error)

	// Info returns information about the provider implementation.
	Info() Info
}
