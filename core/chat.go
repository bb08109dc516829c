package core

import "encoding/json"

// ChatRole is the conversation role attached to a chat message.
type ChatRole string

// Conversation roles understood by chat providers.
const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
	RoleTool      ChatRole = "tool"
)

// MessageKind discriminates the payload carried by a ChatMessage.
type MessageKind string

// Message kinds.
const (
	KindText       MessageKind = "text"
	KindImage      MessageKind = "image"
	KindToolUse    MessageKind = "tool_use"
	KindToolResult MessageKind = "tool_result"
)

// ToolCall is an LLM-initiated request to invoke a named tool. The id is
// assigned by the provider and correlates the call with its result.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall names the target tool and carries its arguments as JSON text.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCallResult records the outcome of a single tool call. On failure the
// Result field holds a JSON object of the form {"error": "..."}.
type ToolCallResult struct {
	ToolName  string          `json:"tool_name"`
	Success   bool            `json:"success"`
	Arguments json.RawMessage `json:"arguments"`
	Result    json.RawMessage `json:"result"`
}

// ChatMessage is one entry of a conversation. Invariants:
//   - a tool-use message carries the originating calls in ToolCalls;
//   - a tool-result message carries the folded results in ToolResults, in
//     the same order as the calls, and always directly follows the matching
//     tool-use message in any stored sequence.
type ChatMessage struct {
	Role    ChatRole    `json:"role"`
	Kind    MessageKind `json:"kind"`
	Content string      `json:"content"`

	Image       *ImageAttachment `json:"image,omitempty"`
	ToolCalls   []ToolCall       `json:"tool_calls,omitempty"`
	ToolResults []ToolCall       `json:"tool_results,omitempty"`
}

// NewTextMessage builds a plain text message for the given role.
func NewTextMessage(role ChatRole, content string) ChatMessage {
	return ChatMessage{Role: role, Kind: KindText, Content: content}
}

// NewImageMessage builds a user message carrying text plus an inline image.
func NewImageMessage(content string, image *ImageAttachment) ChatMessage {
	return ChatMessage{Role: RoleUser, Kind: KindImage, Content: content, Image: image}
}

// NewToolUseMessage builds the assistant message that requested the given
// tool calls, with any accompanying assistant text.
func NewToolUseMessage(content string, calls []ToolCall) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Kind: KindToolUse, Content: content, ToolCalls: calls}
}

// NewToolResultMessage builds the tool message holding folded call results.
func NewToolResultMessage(results []ToolCall) ChatMessage {
	return ChatMessage{Role: RoleTool, Kind: KindToolResult, ToolResults: results}
}
