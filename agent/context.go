package agent

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/agentrun/agentrun/core"
	"github.com/agentrun/agentrun/logging"
	"github.com/agentrun/agentrun/memory"
	"github.com/agentrun/agentrun/model"
	"github.com/agentrun/agentrun/runtime"
	"github.com/agentrun/agentrun/tool"
)

// Config is an agent's immutable configuration.
type Config struct {
	// ID is a fresh unique identifier assigned at construction.
	ID string `json:"id"`
	// Name identifies the agent in events and logs.
	Name string `json:"name"`
	// Description becomes the system message of every run.
	Description string `json:"description"`
	// OutputSchema, when non-nil, constrains the final answer to a JSON
	// value matching this JSON Schema.
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
}

// EventSink accepts protocol events. The actor runtime is the usual sink;
// direct agents may run without one.
type EventSink interface {
	Emit(ev core.Event)
}

// Context bundles everything an executor needs for a run: the LLM handle,
// the tool set with its cached wire definitions, the memory adapter, the
// streaming flag and the event sink. It is immutable after build apart from
// the definition cache.
type Context struct {
	config Config
	llm    model.ChatProvider
	tools  []tool.Tool
	memory *memory.Adapter
	stream bool
	sink   EventSink
	logger logging.Logger

	defsMu   sync.Mutex
	defs     []model.ToolDefinition
	defsHash string
}

// Config returns the agent configuration.
func (c *Context) Config() Config { return c.config }

// LLM returns the chat provider.
func (c *Context) LLM() model.ChatProvider { return c.llm }

// Tools returns the agent's tool set.
func (c *Context) Tools() []tool.Tool { return c.tools }

// Memory returns the memory adapter. It is never nil; agents without a
// provider carry a no-op adapter.
func (c *Context) Memory() *memory.Adapter { return c.memory }

// Streaming reports whether the agent was built with streaming enabled.
func (c *Context) Streaming() bool { return c.stream }

// Logger returns the run logger.
func (c *Context) Logger() logging.Logger { return c.logger }

// Emit sends an event to the sink, if one is attached. Emission never
// blocks task progress.
func (c *Context) Emit(ev core.Event) {
	if c.sink != nil {
		c.sink.Emit(ev)
	}
}

// ToolDefinitions returns the serialized tool list sent to the LLM. The
// result is cached; the cache is rebuilt whenever any tool's name,
// description or schema no longer matches the cached form.
func (c *Context) ToolDefinitions() []model.ToolDefinition {
	if len(c.tools) == 0 {
		return nil
	}
	c.defsMu.Lock()
	defer c.defsMu.Unlock()

	hash := toolSetHash(c.tools)
	if c.defs == nil || c.defsHash != hash {
		c.defs = buildToolDefinitions(c.tools)
		c.defsHash = hash
	}
	return c.defs
}

func buildToolDefinitions(tools []tool.Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.ArgsSchema(),
			},
		})
	}
	return defs
}

// toolSetHash fingerprints the live tool set so the definition cache can
// detect a tool whose name, description or schema changed.
func toolSetHash(tools []tool.Tool) string {
	type entry struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Schema      map[string]any `json:"schema"`
	}
	entries := make([]entry, 0, len(tools))
	for _, t := range tools {
		entries = append(entries, entry{Name: t.Name(), Description: t.Description(), Schema: t.ArgsSchema()})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	return string(data)
}

// PublishTo routes a message to a topic from within a run. The message is
// packaged as an internal routing event; the runtime performs the fan-out,
// preserving the topic's type binding. It fails when the agent has no event
// sink.
func PublishTo[M any](c *Context, topic runtime.Topic[M], msg M) error {
	if c.sink == nil {
		return ErrNoSink
	}
	c.sink.Emit(core.PublishMessage{
		TopicName: topic.Name(),
		TopicType: reflect.TypeOf((*M)(nil)).Elem(),
		Message:   msg,
	})
	return nil
}
