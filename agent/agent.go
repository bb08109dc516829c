// Package agent implements the agent layer: configuration and build
// validation, the run context, the ReAct and single-turn executors, tool
// dispatch and the optional actor binding that lets agents consume tasks
// from topics.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentrun/agentrun/core"
	"github.com/agentrun/agentrun/logging"
	"github.com/agentrun/agentrun/memory"
	"github.com/agentrun/agentrun/model"
	"github.com/agentrun/agentrun/runtime"
	"github.com/agentrun/agentrun/tool"
)

// ExecutorKind selects the turn-taking strategy.
type ExecutorKind string

// Executor kinds.
const (
	// ExecutorReAct alternates LLM reasoning with tool dispatch.
	ExecutorReAct ExecutorKind = "react"
	// ExecutorBasic performs a single LLM call without tools.
	ExecutorBasic ExecutorKind = "basic"
)

// Options configure an Agent.
type Options struct {
	// Description becomes the system message of every run.
	Description string
	// Tools the agent may call. Names must be unique.
	Tools []tool.Tool
	// Memory stores conversation history. Nil disables recall and storage.
	Memory memory.Provider
	// MemoryPolicy overrides the executor's default policy.
	MemoryPolicy *memory.Policy
	// MaxTurns bounds the ReAct loop. Defaults to DefaultMaxTurns.
	MaxTurns int
	// Stream enables streaming LLM calls and StreamChunk events.
	Stream bool
	// OutputSchema constrains the final answer to a JSON Schema.
	OutputSchema json.RawMessage
	// Executor selects the turn-taking strategy. Defaults to ExecutorReAct.
	Executor ExecutorKind
	// Hooks intercept run and tool lifecycles. Defaults to NoopHooks.
	Hooks Hooks
	// Logger receives run diagnostics.
	Logger logging.Logger
	// Runtime binds the agent to an actor runtime. Required for Topics.
	Runtime *runtime.Runtime
	// Topics the agent's actor subscribes to. Requires Runtime.
	Topics []runtime.Topic[core.Task]
}

// State is the per-actor mutable state. It is created at actor pre-start
// and destroyed at post-stop; the reference design keeps it empty.
type State struct{}

// Agent executes tasks against an LLM, either directly through Run or as an
// actor consuming tasks from subscribed topics.
type Agent struct {
	config   Config
	executor executor
	hooks    Hooks
	rc       *Context
	logger   logging.Logger

	rt     *runtime.Runtime
	ref    *runtime.ActorRef[core.Task]
	direct *directSink

	mu    sync.Mutex
	state *State
}

// New builds an agent. The LLM handle is required; tool names must be
// unique; subscribing to topics requires a runtime. When a runtime is given
// the agent is spawned as an actor immediately.
func New(ctx context.Context, name string, llm model.ChatProvider, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		MaxTurns: DefaultMaxTurns,
		Executor: ExecutorReAct,
		Hooks:    NoopHooks{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if llm == nil {
		return nil, buildErrorf("LLM is required")
	}
	seen := make(map[string]struct{}, len(opts.Tools))
	for _, t := range opts.Tools {
		if _, dup := seen[t.Name()]; dup {
			return nil, buildErrorf("duplicate tool name %q", t.Name())
		}
		seen[t.Name()] = struct{}{}
	}
	if len(opts.Topics) > 0 && opts.Runtime == nil {
		return nil, buildErrorf("subscribing to topics requires a runtime")
	}
	if opts.MaxTurns < 0 {
		return nil, buildErrorf("max turns must not be negative")
	}

	cfg := Config{
		ID:           core.NewID(),
		Name:         name,
		Description:  opts.Description,
		OutputSchema: opts.OutputSchema,
	}
	logger := logging.OrNoop(opts.Logger)

	var exec executor
	var policy memory.Policy
	switch opts.Executor {
	case ExecutorBasic:
		exec = basicExecutor{}
		policy = memory.BasicPolicy()
	case ExecutorReAct, "":
		exec = &reactExecutor{maxTurns: opts.MaxTurns}
		policy = memory.ReActPolicy()
	default:
		return nil, buildErrorf("unknown executor kind %q", opts.Executor)
	}
	if opts.MemoryPolicy != nil {
		policy = *opts.MemoryPolicy
	}

	a := &Agent{
		config:   cfg,
		executor: exec,
		hooks:    opts.Hooks,
		logger:   logger,
		rt:       opts.Runtime,
	}

	var sink EventSink
	if opts.Runtime != nil {
		sink = opts.Runtime
	} else {
		a.direct = &directSink{logger: logger}
		sink = a.direct
	}

	a.rc = &Context{
		config: cfg,
		llm:    llm,
		tools:  opts.Tools,
		memory: memory.NewAdapter(opts.Memory, policy),
		stream: opts.Stream,
		sink:   sink,
		logger: logger,
	}

	if opts.Runtime != nil {
		ref, err := runtime.Register[core.Task](ctx, opts.Runtime, name, &agentActor{agent: a})
		if err != nil {
			return nil, fmt.Errorf("agent: spawning actor: %w", err)
		}
		a.ref = ref
		for _, topic := range opts.Topics {
			if err := runtime.Subscribe(opts.Runtime, topic, ref); err != nil {
				return nil, err
			}
		}
	} else {
		a.mu.Lock()
		a.state = &State{}
		a.mu.Unlock()
		a.hooks.OnAgentCreate(ctx, cfg)
	}

	logger.Debug("agent built",
		"agent_id", cfg.ID, "agent_name", name,
		"tools", len(opts.Tools), "executor", string(opts.Executor), "stream", opts.Stream)
	return a, nil
}

// ID returns the agent's unique identifier.
func (a *Agent) ID() string { return a.config.ID }

// Name returns the agent's name.
func (a *Agent) Name() string { return a.config.Name }

// Config returns the agent's configuration.
func (a *Agent) Config() Config { return a.config }

// Ref returns the actor handle, or nil for direct agents.
func (a *Agent) Ref() *runtime.ActorRef[core.Task] { return a.ref }

// Run executes a task synchronously and returns the final answer. Actor
// backed agents may also be driven this way; the run shares the agent's
// executor and event sink.
func (a *Agent) Run(ctx context.Context, task core.Task) (string, error) {
	actorID := a.config.ID
	if a.ref != nil {
		actorID = a.ref.ID()
	}
	run := &runState{rc: a.rc, hooks: a.hooks, task: task, actorID: actorID}
	return a.executor.execute(ctx, run)
}

// SubscribeEvents returns a stream of the agent's events. Actor backed
// agents delegate to the runtime's fan-out; direct agents get a private
// stream fed by their runs.
func (a *Agent) SubscribeEvents() <-chan core.Event {
	if a.rt != nil {
		return a.rt.SubscribeEvents()
	}
	return a.direct.Subscribe()
}

// Shutdown stops the agent. Actor backed agents drain their mailbox first;
// direct agents just fire the shutdown hook.
func (a *Agent) Shutdown(ctx context.Context) error {
	if a.ref != nil {
		a.ref.Stop()
		select {
		case <-a.ref.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a.mu.Lock()
	a.state = nil
	a.mu.Unlock()
	a.hooks.OnAgentShutdown(ctx, a.config)
	return nil
}

// agentActor adapts an Agent to the runtime's actor contract.
type agentActor struct {
	agent *Agent
}

func (aa *agentActor) PreStart(ctx context.Context) error {
	a := aa.agent
	a.mu.Lock()
	a.state = &State{}
	a.mu.Unlock()
	a.hooks.OnAgentCreate(ctx, a.config)
	return nil
}

// Receive runs the executor for one task. Run failures were already
// surfaced as TaskError events; the actor stays alive and keeps consuming.
func (aa *agentActor) Receive(ctx context.Context, task core.Task) error {
	a := aa.agent
	if _, err := a.Run(ctx, task); err != nil {
		a.logger.Warn("task failed",
			"agent_name", a.config.Name, "sub_id", task.SubmissionID, "error", err)
	}
	return nil
}

func (aa *agentActor) PostStop(ctx context.Context) error {
	a := aa.agent
	a.mu.Lock()
	a.state = nil
	a.mu.Unlock()
	a.hooks.OnAgentShutdown(ctx, a.config)
	return nil
}

// directSink fans events out to subscribers of a direct agent. Routing
// requests cannot be served without a runtime and are dropped with a
// warning.
type directSink struct {
	logger logging.Logger

	mu   sync.Mutex
	subs []chan core.Event
}

func (s *directSink) Emit(ev core.Event) {
	if pm, ok := ev.(core.PublishMessage); ok {
		s.logger.Warn("publish ignored: agent has no runtime", "topic", pm.TopicName)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *directSink) Subscribe() <-chan core.Event {
	ch := make(chan core.Event, 64)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}
