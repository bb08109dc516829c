package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrun/agentrun/core"
	"github.com/agentrun/agentrun/logging"
	"github.com/agentrun/agentrun/memory"
	"github.com/agentrun/agentrun/model"
	"github.com/agentrun/agentrun/runtime"
	"github.com/agentrun/agentrun/tool"
)

func TestReAct_SingleTurnNoTools(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	mock.EnqueueText("Hi.")
	window := memory.NewSlidingWindow(10)

	a, err := New(ctx, "greeter", mock, func(o *Options) {
		o.Description = "You are a greeter."
		o.Memory = window
	})
	require.NoError(t, err)
	events := a.SubscribeEvents()

	result, err := a.Run(ctx, core.NewTask("Say hi."))
	require.NoError(t, err)
	assert.Equal(t, "Hi.", result)

	got := drainEvents(events)
	require.Equal(t, []string{"task_started", "turn_started", "turn_completed", "task_complete"}, eventNames(got))

	started := got[1].(core.TurnStarted)
	assert.Equal(t, 0, started.TurnNumber)
	assert.Equal(t, 10, started.MaxTurns)
	completed := got[2].(core.TurnCompleted)
	assert.True(t, completed.FinalTurn)
	final := got[3].(core.TaskComplete)
	assert.Equal(t, "Hi.", final.Result)
	assert.Equal(t, "greeter", final.ActorName)

	stored, err := window.Recall(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, core.RoleUser, stored[0].Role)
	assert.Equal(t, "Say hi.", stored[0].Content)
	assert.Equal(t, core.RoleAssistant, stored[1].Role)
	assert.Equal(t, "Hi.", stored[1].Content)

	// System message and task reached the model.
	msgs := mock.LastMessages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Equal(t, "You are a greeter.", msgs[0].Content)
}

func TestReAct_OneToolCallThenAnswer(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	mock.EnqueueToolCall("c1", "add", `{"left":2,"right":3}`)
	mock.EnqueueText("5")

	a, err := New(ctx, "calculator", mock, func(o *Options) {
		o.Tools = []tool.Tool{addTool()}
	})
	require.NoError(t, err)
	events := a.SubscribeEvents()

	result, err := a.Run(ctx, core.NewTask("What is 2+3?"))
	require.NoError(t, err)
	assert.Equal(t, "5", result)

	got := drainEvents(events)
	require.Equal(t, []string{
		"task_started",
		"turn_started",
		"tool_call_requested",
		"tool_call_completed",
		"turn_completed",
		"turn_started",
		"turn_completed",
		"task_complete",
	}, eventNames(got))

	requested := got[2].(core.ToolCallRequested)
	assert.Equal(t, "c1", requested.ID)
	assert.Equal(t, "add", requested.ToolName)
	assert.JSONEq(t, `{"left":2,"right":3}`, requested.Arguments)

	completed := got[3].(core.ToolCallCompleted)
	assert.Equal(t, "c1", completed.ID)
	assert.JSONEq(t, `5`, string(completed.Result))

	assert.False(t, got[4].(core.TurnCompleted).FinalTurn)
	assert.True(t, got[6].(core.TurnCompleted).FinalTurn)

	// The folded interaction went back to the model on turn two.
	msgs := mock.LastMessages()
	require.GreaterOrEqual(t, len(msgs), 4)
	toolUse := msgs[len(msgs)-2]
	toolResult := msgs[len(msgs)-1]
	assert.Equal(t, core.KindToolUse, toolUse.Kind)
	require.Len(t, toolResult.ToolResults, 1)
	assert.Equal(t, "5", toolResult.ToolResults[0].Function.Arguments)
}

func TestReAct_ToolNotFound(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	mock.EnqueueToolCall("c2", "mul", `{}`)
	mock.EnqueueText("I cannot multiply.")

	a, err := New(ctx, "limited", mock, func(o *Options) {
		o.Tools = []tool.Tool{addTool()}
	})
	require.NoError(t, err)
	events := a.SubscribeEvents()

	result, err := a.Run(ctx, core.NewTask("What is 2*3?"))
	require.NoError(t, err)
	assert.Equal(t, "I cannot multiply.", result)

	got := drainEvents(events)
	require.Equal(t, []string{
		"task_started",
		"turn_started",
		"tool_call_requested",
		"tool_call_failed",
		"turn_completed",
		"turn_started",
		"turn_completed",
		"task_complete",
	}, eventNames(got))

	failed := got[3].(core.ToolCallFailed)
	assert.Equal(t, "c2", failed.ID)
	assert.Equal(t, "mul", failed.ToolName)
	assert.Equal(t, "Tool 'mul' not found", failed.Error)

	// The failure was fed back to the model as JSON.
	msgs := mock.LastMessages()
	toolResult := msgs[len(msgs)-1]
	require.Len(t, toolResult.ToolResults, 1)
	assert.JSONEq(t, `{"error":"Tool 'mul' not found"}`, toolResult.ToolResults[0].Function.Arguments)
}

func TestReAct_MaxTurnsExceeded(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	mock.EnqueueToolCall("c1", "add", `{"left":1,"right":1}`)
	mock.EnqueueToolCall("c2", "add", `{"left":2,"right":2}`)

	a, err := New(ctx, "stuck", mock, func(o *Options) {
		o.Tools = []tool.Tool{addTool()}
		o.MaxTurns = 2
	})
	require.NoError(t, err)
	events := a.SubscribeEvents()

	_, err = a.Run(ctx, core.NewTask("loop forever"))
	var maxErr *MaxTurnsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 2, maxErr.MaxTurns)

	got := drainEvents(events)
	names := eventNames(got)
	assert.Equal(t, "task_error", names[len(names)-1])
	assert.Equal(t, 2, mock.Calls())
}

func TestReAct_ChainViaPublishHook(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New()
	topicA := runtime.NewTopic[core.Task]("A")
	topicB := runtime.NewTopic[core.Task]("B")

	mockA := model.NewMockProvider("mock-a")
	mockA.EnqueueText("output of A")
	mockB := model.NewMockProvider("mock-b")
	mockB.EnqueueText("output of B")

	_, err := New(ctx, "agent-a", mockA, func(o *Options) {
		o.Runtime = rt
		o.Topics = []runtime.Topic[core.Task]{topicA}
		o.Hooks = chainHooks{next: topicB}
	})
	require.NoError(t, err)
	_, err = New(ctx, "agent-b", mockB, func(o *Options) {
		o.Runtime = rt
		o.Topics = []runtime.Topic[core.Task]{topicB}
	})
	require.NoError(t, err)

	events, err := rt.TakeEventReceiver()
	require.NoError(t, err)
	go func() { _ = rt.Run(ctx) }()

	require.NoError(t, runtime.Publish(ctx, rt, topicA, core.NewTask("P")))

	var completions []core.TaskComplete
	deadline := time.After(5 * time.Second)
	for len(completions) < 2 {
		select {
		case ev := <-events:
			if tc, ok := ev.(core.TaskComplete); ok {
				completions = append(completions, tc)
			}
		case <-deadline:
			t.Fatal("expected two task completions")
		}
	}

	assert.Equal(t, "agent-a", completions[0].ActorName)
	assert.Equal(t, "agent-b", completions[1].ActorName)

	// B consumed A's output as its task prompt.
	msgs := mockB.LastMessages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "output of A", msgs[len(msgs)-1].Content)

	require.NoError(t, rt.Shutdown(ctx))
}

type chainHooks struct {
	NoopHooks
	next runtime.Topic[core.Task]
}

func (h chainHooks) OnRunComplete(_ context.Context, _ core.Task, result string, rc *Context) {
	_ = PublishTo(rc, h.next, core.NewTask(result))
}

func TestReAct_StreamingChunks(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	mock.EnqueueStream(model.TextChunk("Hel"), model.TextChunk("lo"), model.DoneChunk("stop"))

	a, err := New(ctx, "streamer", mock, func(o *Options) {
		o.Stream = true
	})
	require.NoError(t, err)
	events := a.SubscribeEvents()

	result, err := a.Run(ctx, core.NewTask("greet"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", result)

	got := drainEvents(events)
	require.Equal(t, []string{
		"task_started",
		"turn_started",
		"stream_chunk",
		"stream_chunk",
		"stream_chunk",
		"turn_completed",
		"task_complete",
	}, eventNames(got))

	first := got[2].(core.StreamChunk)
	assert.Equal(t, "Hel", first.Content)
	assert.False(t, first.Final)
	second := got[3].(core.StreamChunk)
	assert.Equal(t, "lo", second.Content)
	last := got[4].(core.StreamChunk)
	assert.Equal(t, "", last.Content)
	assert.True(t, last.Final)

	assert.True(t, got[5].(core.TurnCompleted).FinalTurn)
	assert.Equal(t, "Hello", got[6].(core.TaskComplete).Result)
}

func TestReAct_StreamingToolCall(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	call := core.ToolCall{ID: "c1", Type: "function", Function: core.FunctionCall{Name: "add", Arguments: `{"left":4,"right":4}`}}
	mock.EnqueueStream(
		model.ToolStartChunk(0, "c1", "add"),
		model.ToolDeltaChunk(0, `{"left":4,`),
		model.ToolDeltaChunk(0, `"right":4}`),
		model.ToolDoneChunk(0, call),
		model.DoneChunk("tool_calls"),
	)
	mock.EnqueueStream(model.TextChunk("8"), model.DoneChunk("stop"))

	a, err := New(ctx, "stream-calc", mock, func(o *Options) {
		o.Stream = true
		o.Tools = []tool.Tool{addTool()}
	})
	require.NoError(t, err)
	events := a.SubscribeEvents()

	result, err := a.Run(ctx, core.NewTask("What is 4+4?"))
	require.NoError(t, err)
	assert.Equal(t, "8", result)

	got := drainEvents(events)
	names := eventNames(got)
	// Tool call argument fragments never surface as events.
	assert.NotContains(t, names[:5], "stream_chunk")
	assert.Contains(t, names, "tool_call_requested")
	assert.Contains(t, names, "tool_call_completed")
}

func TestReAct_MaxTurnsZeroSkipsLLM(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")

	a, err := New(ctx, "budgetless", mock, func(o *Options) {
		o.MaxTurns = 0
	})
	require.NoError(t, err)

	_, err = a.Run(ctx, core.NewTask("anything"))
	var maxErr *MaxTurnsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 0, maxErr.MaxTurns)
	assert.Equal(t, 0, mock.Calls())
}

func TestReAct_EmptyToolsUsesChat(t *testing.T) {
	ctx := context.Background()
	rec := &methodRecorder{MockProvider: model.NewMockProvider("mock")}
	rec.EnqueueText("done")

	a, err := New(ctx, "toolless", rec)
	require.NoError(t, err)

	_, err = a.Run(ctx, core.NewTask("no tools here"))
	require.NoError(t, err)
	assert.Equal(t, []string{"chat"}, rec.methods)
}

type methodRecorder struct {
	*model.MockProvider
	methods []string
}

func (r *methodRecorder) Chat(ctx context.Context, messages []core.ChatMessage, schema json.RawMessage) (*model.Response, error) {
	r.methods = append(r.methods, "chat")
	return r.MockProvider.Chat(ctx, messages, schema)
}

func (r *methodRecorder) ChatWithTools(ctx context.Context, messages []core.ChatMessage, tools []model.ToolDefinition, schema json.RawMessage) (*model.Response, error) {
	r.methods = append(r.methods, "chat_with_tools")
	return r.MockProvider.ChatWithTools(ctx, messages, tools, schema)
}

func TestReAct_AbortFromRunStart(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	window := memory.NewSlidingWindow(10)

	a, err := New(ctx, "guarded", mock, func(o *Options) {
		o.Memory = window
		o.Hooks = abortHooks{}
	})
	require.NoError(t, err)
	events := a.SubscribeEvents()

	_, err = a.Run(ctx, core.NewTask("forbidden"))
	require.ErrorIs(t, err, ErrAborted)

	got := drainEvents(events)
	names := eventNames(got)
	assert.Equal(t, "task_error", names[len(names)-1])
	assert.Equal(t, 0, mock.Calls())
	assert.Equal(t, 0, window.Len())
}

type abortHooks struct{ NoopHooks }

func (abortHooks) OnRunStart(context.Context, core.Task, *Context) HookOutcome { return Abort }

func TestReAct_LLMErrorFailsRun(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	mock.EnqueueError(errors.New("model unavailable"))

	a, err := New(ctx, "fragile", mock)
	require.NoError(t, err)
	events := a.SubscribeEvents()

	_, err = a.Run(ctx, core.NewTask("hello"))
	require.Error(t, err)

	got := drainEvents(events)
	last := got[len(got)-1].(core.TaskError)
	assert.Contains(t, last.Error, "model unavailable")
}

func TestReAct_StructuredOutput(t *testing.T) {
	ctx := context.Background()
	schema := json.RawMessage(`{"type":"object","properties":{"answer":{"type":"integer"}}}`)

	mock := model.NewMockProvider("mock")
	mock.EnqueueText(`{"answer":42}`)

	a, err := New(ctx, "structured", mock, func(o *Options) {
		o.OutputSchema = schema
	})
	require.NoError(t, err)

	result, err := a.Run(ctx, core.NewTask("the answer?"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":42}`, result)
	assert.Contains(t, result, "\n")
}

func TestReAct_StructuredOutputParseFailure(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	mock.EnqueueText("not json at all")

	a, err := New(ctx, "structured", mock, func(o *Options) {
		o.OutputSchema = json.RawMessage(`{"type":"object"}`)
	})
	require.NoError(t, err)
	events := a.SubscribeEvents()

	_, err = a.Run(ctx, core.NewTask("the answer?"))
	require.Error(t, err)

	got := drainEvents(events)
	assert.Equal(t, "task_error", eventNames(got)[len(got)-1])
}

func TestBasic_SingleCall(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	mock.EnqueueText("transformed")
	window := memory.NewSlidingWindow(10)

	a, err := New(ctx, "transformer", mock, func(o *Options) {
		o.Executor = ExecutorBasic
		o.Memory = window
		o.Tools = []tool.Tool{addTool()}
	})
	require.NoError(t, err)
	events := a.SubscribeEvents()

	result, err := a.Run(ctx, core.NewTask("transform me"))
	require.NoError(t, err)
	assert.Equal(t, "transformed", result)

	got := drainEvents(events)
	require.Equal(t, []string{"task_started", "turn_started", "turn_completed", "task_complete"}, eventNames(got))
	assert.Equal(t, 1, got[1].(core.TurnStarted).MaxTurns)
	assert.Equal(t, 1, mock.Calls())

	stored, err := window.Recall(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestProcessToolCalls_AbortOmitsResult(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	mock.EnqueueResponse(model.Response{ToolCalls: []core.ToolCall{
		{ID: "keep", Type: "function", Function: core.FunctionCall{Name: "add", Arguments: `{"left":1,"right":1}`}},
		{ID: "skip", Type: "function", Function: core.FunctionCall{Name: "add", Arguments: `{"left":9,"right":9}`}},
	}})
	mock.EnqueueText("2")

	a, err := New(ctx, "filtered", mock, func(o *Options) {
		o.Tools = []tool.Tool{addTool()}
		o.Hooks = skipHooks{}
	})
	require.NoError(t, err)
	events := a.SubscribeEvents()

	result, err := a.Run(ctx, core.NewTask("compute"))
	require.NoError(t, err)
	assert.Equal(t, "2", result)

	var requested []string
	for _, ev := range drainEvents(events) {
		if req, ok := ev.(core.ToolCallRequested); ok {
			requested = append(requested, req.ID)
		}
	}
	assert.Equal(t, []string{"keep"}, requested)
}

type skipHooks struct{ NoopHooks }

func (skipHooks) OnToolCall(_ context.Context, call core.ToolCall, _ *Context) HookOutcome {
	if call.ID == "skip" {
		return Abort
	}
	return Continue
}

func TestProcessToolCalls_InvalidArgumentsFoldAsObject(t *testing.T) {
	rc := &Context{tools: []tool.Tool{addTool()}, logger: logging.NoOpLogger{}}
	run := &runState{rc: rc, hooks: NoopHooks{}, task: core.NewTask("compute"), actorID: "a1"}

	calls := []core.ToolCall{{
		ID:       "c1",
		Type:     "function",
		Function: core.FunctionCall{Name: "add", Arguments: `{"left":`},
	}}
	executed, results := processToolCalls(context.Background(), run, calls)
	require.Len(t, executed, 1)
	require.Len(t, results, 1)

	assert.False(t, results[0].Success)
	assert.True(t, json.Valid(results[0].Arguments))
	assert.JSONEq(t, `{}`, string(results[0].Arguments))
	assert.JSONEq(t, `{"error":"invalid tool arguments: {\"left\":"}`, string(results[0].Result))
}

func TestProcessToolCalls_ExecutionError(t *testing.T) {
	ctx := context.Background()
	failing := tool.New("explode", "always fails", func(context.Context, struct{}) (any, error) {
		return nil, errors.New("boom")
	})

	mock := model.NewMockProvider("mock")
	mock.EnqueueToolCall("c1", "explode", `{}`)
	mock.EnqueueText("it failed")

	a, err := New(ctx, "resilient", mock, func(o *Options) {
		o.Tools = []tool.Tool{failing}
	})
	require.NoError(t, err)
	events := a.SubscribeEvents()

	result, err := a.Run(ctx, core.NewTask("try it"))
	require.NoError(t, err)
	assert.Equal(t, "it failed", result)

	var failed *core.ToolCallFailed
	for _, ev := range drainEvents(events) {
		if f, ok := ev.(core.ToolCallFailed); ok {
			failed = &f
		}
	}
	require.NotNil(t, failed)
	assert.Contains(t, failed.Error, "boom")
}

func TestReAct_ToolEchoInMemory(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockProvider("mock")
	mock.EnqueueToolCall("c1", "add", `{"left":2,"right":2}`)
	mock.EnqueueText("4")
	window := memory.NewSlidingWindow(10)

	a, err := New(ctx, "mnemonic", mock, func(o *Options) {
		o.Tools = []tool.Tool{addTool()}
		o.Memory = window
	})
	require.NoError(t, err)

	_, err = a.Run(ctx, core.NewTask("What is 2+2?"))
	require.NoError(t, err)

	stored, err := window.Recall(ctx, "", 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(stored), 3)

	// The tool interaction sits in memory as an adjacent use/result pair.
	var useIdx = -1
	for i, msg := range stored {
		if msg.Kind == core.KindToolUse {
			useIdx = i
		}
	}
	require.NotEqual(t, -1, useIdx)
	require.Less(t, useIdx+1, len(stored))
	result := stored[useIdx+1]
	assert.Equal(t, core.KindToolResult, result.Kind)
	require.Len(t, result.ToolResults, 1)
	assert.Equal(t, "c1", result.ToolResults[0].ID)
	assert.Equal(t, stored[useIdx].ToolCalls[0].ID, result.ToolResults[0].ID)
}
