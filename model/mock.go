package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentrun/agentrun/core"
)

// MockProvider is a lightweight in-memory ChatProvider useful for tests and
// examples. Responses and stream scripts are consumed in FIFO order; when the
// queue is empty it echoes the last user message, mirroring a trivially
// deterministic model.
type MockProvider struct {
	mu      sync.Mutex
	info    Info
	turns   []mockTurn
	streams [][]StreamChunk
	calls   int
	last    []core.ChatMessage
}

type mockTurn struct {
	resp *Response
	err  error
}

// NewMockProvider constructs a MockProvider with tool support enabled.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		info: Info{Name: name, Provider: "mock", SupportsTools: true},
	}
}

// EnqueueText schedules a plain text response.
func (m *MockProvider) EnqueueText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, mockTurn{resp: &Response{Text: text}})
}

// EnqueueToolCall schedules a response requesting a single tool call.
func (m *MockProvider) EnqueueToolCall(id, name, arguments string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, mockTurn{resp: &Response{
		ToolCalls: []core.ToolCall{{
			ID:       id,
			Type:     "function",
			Function: core.FunctionCall{Name: name, Arguments: arguments},
		}},
	}})
}

// EnqueueResponse schedules an arbitrary response.
func (m *MockProvider) EnqueueResponse(resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, mockTurn{resp: &resp})
}

// EnqueueError schedules a provider failure.
func (m *MockProvider) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, mockTurn{err: err})
}

// EnqueueStream schedules a scripted chunk sequence for the next streaming
// call. The script should end with a DoneChunk.
func (m *MockProvider) EnqueueStream(chunks ...StreamChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = append(m.streams, chunks)
}

// Calls reports how many chat invocations the provider has served.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastMessages returns the message list of the most recent invocation.
func (m *MockProvider) LastMessages() []core.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *MockProvider) next(messages []core.ChatMessage) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = append([]core.ChatMessage(nil), messages...)
	if len(m.turns) == 0 {
		return &Response{Text: fmt.Sprintf("Mock response to: %s", lastUserContent(messages))}, nil
	}
	turn := m.turns[0]
	m.turns = m.turns[1:]
	if turn.err != nil {
		return nil, turn.err
	}
	return turn.resp, nil
}

func lastUserContent(messages []core.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// Chat implements ChatProvider.
func (m *MockProvider) Chat(_ context.Context, messages []core.ChatMessage, _ json.RawMessage) (*Response, error) {
	return m.next(messages)
}

// ChatWithTools implements ChatProvider.
func (m *MockProvider) ChatWithTools(_ context.Context, messages []core.ChatMessage, _ []ToolDefinition, _ json.RawMessage) (*Response, error) {
	return m.next(messages)
}

// ChatStream implements ChatProvider.
func (m *MockProvider) ChatStream(ctx context.Context, messages []core.ChatMessage, schema json.RawMessage) (<-chan StreamChunk, <-chan error) {
	return m.ChatStreamWithTools(ctx, messages, nil, schema)
}

// ChatStreamWithTools implements ChatProvider. A scripted stream is replayed
// when one is queued; otherwise the next queued response is converted into a
// degenerate one-chunk stream.
func (m *MockProvider) ChatStreamWithTools(ctx context.Context, messages []core.ChatMessage, _ []ToolDefinition, _ json.RawMessage) (<-chan StreamChunk, <-chan error) {
	out := make(chan StreamChunk, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	var script []StreamChunk
	scripted := len(m.streams) > 0
	if scripted {
		script = m.streams[0]
		m.streams = m.streams[1:]
		m.calls++
		m.last = append([]core.ChatMessage(nil), messages...)
	}
	m.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errCh)
		if !scripted {
			resp, err := m.next(messages)
			if err != nil {
				errCh <- err
				return
			}
			script = responseToChunks(resp)
		}
		for _, chunk := range script {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- chunk:
			}
		}
	}()
	return out, errCh
}

// responseToChunks converts a final response into the equivalent stream
// script (length 1 plus tool call markers and the done marker).
func responseToChunks(resp *Response) []StreamChunk {
	var chunks []StreamChunk
	if resp.Text != "" {
		chunks = append(chunks, TextChunk(resp.Text))
	}
	for i, call := range resp.ToolCalls {
		chunks = append(chunks, ToolStartChunk(i, call.ID, call.Function.Name))
		chunks = append(chunks, ToolDeltaChunk(i, call.Function.Arguments))
		chunks = append(chunks, ToolDoneChunk(i, call))
	}
	stop := "stop"
	if len(resp.ToolCalls) > 0 {
		stop = "tool_calls"
	}
	chunks = append(chunks, DoneChunk(stop))
	return chunks
}

// Info implements ChatProvider.
func (m *MockProvider) Info() Info { return m.info }
