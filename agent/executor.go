package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentrun/agentrun/core"
	"github.com/agentrun/agentrun/internal/util"
	"github.com/agentrun/agentrun/memory"
	"github.com/agentrun/agentrun/model"
)

// DefaultMaxTurns bounds the ReAct loop when no budget is configured.
const DefaultMaxTurns = 10

// runState carries the per-run wiring shared by the executor and the tool
// processor.
type runState struct {
	rc      *Context
	hooks   Hooks
	task    core.Task
	actorID string
}

func (run *runState) emit(ev core.Event) { run.rc.Emit(ev) }

// fail emits the terminal TaskError event and propagates the error.
func (run *runState) fail(err error) (string, error) {
	run.emit(core.TaskError{
		SubID:   run.task.SubmissionID,
		ActorID: run.actorID,
		Error:   err.Error(),
	})
	return "", err
}

// executor turns a task into a final answer. Implementations share the
// event protocol; they differ in how many LLM turns they may take.
type executor interface {
	execute(ctx context.Context, run *runState) (string, error)
}

// reactExecutor alternates LLM reasoning with tool dispatch until the model
// answers without requesting tools or the turn budget runs out.
type reactExecutor struct {
	maxTurns int
}

func (e *reactExecutor) execute(ctx context.Context, run *runState) (string, error) {
	rc := run.rc
	cfg := rc.Config()
	task := run.task

	run.emit(core.TaskStarted{
		SubID:       task.SubmissionID,
		ActorID:     run.actorID,
		ActorName:   cfg.Name,
		Description: cfg.Description,
	})
	if run.hooks.OnRunStart(ctx, task, rc) == Abort {
		return run.fail(fmt.Errorf("%w by OnRunStart hook", ErrAborted))
	}

	messages, err := initialMessages(ctx, rc, task)
	if err != nil {
		return run.fail(err)
	}

	for turn := 0; turn < e.maxTurns; turn++ {
		run.hooks.OnTurnStart(ctx, turn)
		run.emit(core.TurnStarted{
			SubID:      task.SubmissionID,
			ActorID:    run.actorID,
			TurnNumber: turn,
			MaxTurns:   e.maxTurns,
		})

		var text string
		var calls []core.ToolCall
		if rc.Streaming() {
			text, calls, err = streamTurn(ctx, run, messages, true)
		} else {
			text, calls, err = chatTurn(ctx, rc, messages, true)
		}
		if err != nil {
			return run.fail(err)
		}

		if len(calls) == 0 {
			return finishRun(ctx, run, turn, text)
		}

		executed, results := processToolCalls(ctx, run, calls)
		if err := rc.Memory().StoreToolInteraction(ctx, executed, results, text); err != nil {
			return run.fail(err)
		}
		if len(executed) > 0 {
			messages = append(messages,
				core.NewToolUseMessage(text, executed),
				core.NewToolResultMessage(memory.FoldResults(executed, results)),
			)
		}

		run.hooks.OnTurnComplete(ctx, turn)
		run.emit(core.TurnCompleted{
			SubID:      task.SubmissionID,
			ActorID:    run.actorID,
			TurnNumber: turn,
			FinalTurn:  false,
		})
	}

	return run.fail(&MaxTurnsError{MaxTurns: e.maxTurns})
}

// basicExecutor is the single-turn variant used by transformer style agents:
// one LLM call, no tool loop.
type basicExecutor struct{}

func (basicExecutor) execute(ctx context.Context, run *runState) (string, error) {
	rc := run.rc
	cfg := rc.Config()
	task := run.task

	run.emit(core.TaskStarted{
		SubID:       task.SubmissionID,
		ActorID:     run.actorID,
		ActorName:   cfg.Name,
		Description: cfg.Description,
	})
	if run.hooks.OnRunStart(ctx, task, rc) == Abort {
		return run.fail(fmt.Errorf("%w by OnRunStart hook", ErrAborted))
	}

	messages, err := initialMessages(ctx, rc, task)
	if err != nil {
		return run.fail(err)
	}

	run.hooks.OnTurnStart(ctx, 0)
	run.emit(core.TurnStarted{
		SubID:      task.SubmissionID,
		ActorID:    run.actorID,
		TurnNumber: 0,
		MaxTurns:   1,
	})

	var text string
	if rc.Streaming() {
		text, _, err = streamTurn(ctx, run, messages, false)
	} else {
		text, _, err = chatTurn(ctx, rc, messages, false)
	}
	if err != nil {
		return run.fail(err)
	}

	return finishRun(ctx, run, 0, text)
}

// initialMessages builds the conversation prefix for a run: the system
// message, recalled memory, then the task itself. The task is persisted as a
// user message according to the memory policy.
func initialMessages(ctx context.Context, rc *Context, task core.Task) ([]core.ChatMessage, error) {
	cfg := rc.Config()
	messages := []core.ChatMessage{core.NewTextMessage(core.RoleSystem, cfg.Description)}

	recalled, err := rc.Memory().Recall(ctx, task)
	if err != nil {
		return nil, err
	}
	messages = append(messages, recalled...)

	if task.Image != nil {
		messages = append(messages, core.NewImageMessage(task.Prompt, task.Image.Clone()))
	} else {
		messages = append(messages, core.NewTextMessage(core.RoleUser, task.Prompt))
	}

	if err := rc.Memory().StoreUser(ctx, task); err != nil {
		return nil, err
	}
	return messages, nil
}

// finishRun stores the assistant's answer, closes the event bracket for the
// final turn and returns the result.
func finishRun(ctx context.Context, run *runState, turn int, text string) (string, error) {
	rc := run.rc
	cfg := rc.Config()
	task := run.task

	if err := rc.Memory().StoreAssistant(ctx, text); err != nil {
		return run.fail(err)
	}
	result, err := finalResult(cfg, text)
	if err != nil {
		return run.fail(err)
	}

	if rc.Streaming() {
		run.emit(core.StreamChunk{SubID: task.SubmissionID, ActorID: run.actorID, Final: true})
	}
	run.hooks.OnTurnComplete(ctx, turn)
	run.emit(core.TurnCompleted{
		SubID:      task.SubmissionID,
		ActorID:    run.actorID,
		TurnNumber: turn,
		FinalTurn:  true,
	})
	run.emit(core.TaskComplete{
		SubID:     task.SubmissionID,
		ActorID:   run.actorID,
		ActorName: cfg.Name,
		Result:    result,
	})
	run.hooks.OnRunComplete(ctx, task, result, rc)
	return result, nil
}

// finalResult converts the model's answer into the run result. Structured
// outputs must parse as JSON and are pretty-printed; the parse error is
// reported once, at the end of the run, without retrying.
func finalResult(cfg Config, text string) (string, error) {
	if cfg.OutputSchema == nil {
		return text, nil
	}
	if !json.Valid([]byte(text)) {
		return "", fmt.Errorf("structured output is not valid JSON: %q", text)
	}
	return util.PrettyJSON(json.RawMessage(text)), nil
}

// chatTurn performs one non-streaming LLM call. Tools are only declared when
// the agent has some and the caller allows them.
func chatTurn(ctx context.Context, rc *Context, messages []core.ChatMessage, withTools bool) (string, []core.ToolCall, error) {
	var resp *model.Response
	var err error
	defs := rc.ToolDefinitions()
	if withTools && len(defs) > 0 {
		resp, err = rc.LLM().ChatWithTools(ctx, messages, defs, rc.Config().OutputSchema)
	} else {
		resp, err = rc.LLM().Chat(ctx, messages, rc.Config().OutputSchema)
	}
	if err != nil {
		return "", nil, err
	}
	logUsage(rc, resp.Usage)
	return resp.Text, resp.ToolCalls, nil
}

// pendingCall accumulates a streamed tool call until its done marker.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// streamTurn performs one streaming LLM call: text fragments are forwarded
// as StreamChunk events, tool call fragments accumulate privately until
// finalized. Consumers only ever see completed tool calls.
func streamTurn(ctx context.Context, run *runState, messages []core.ChatMessage, withTools bool) (string, []core.ToolCall, error) {
	rc := run.rc
	var chunks <-chan model.StreamChunk
	var errs <-chan error
	defs := rc.ToolDefinitions()
	if withTools && len(defs) > 0 {
		chunks, errs = rc.LLM().ChatStreamWithTools(ctx, messages, defs, rc.Config().OutputSchema)
	} else {
		chunks, errs = rc.LLM().ChatStream(ctx, messages, rc.Config().OutputSchema)
	}

	var text strings.Builder
	var calls []core.ToolCall
	pending := make(map[int]*pendingCall)

	for chunk := range chunks {
		switch chunk.Kind {
		case model.ChunkText:
			text.WriteString(chunk.Text)
			run.emit(core.StreamChunk{
				SubID:   run.task.SubmissionID,
				ActorID: run.actorID,
				Content: chunk.Text,
			})
		case model.ChunkToolCallStart:
			pending[chunk.Index] = &pendingCall{id: chunk.ID, name: chunk.Name}
		case model.ChunkToolCallDelta:
			if p, ok := pending[chunk.Index]; ok {
				p.args.WriteString(chunk.ArgumentsDelta)
			}
		case model.ChunkToolCallDone:
			if chunk.ToolCall != nil {
				calls = append(calls, *chunk.ToolCall)
			} else if p, ok := pending[chunk.Index]; ok {
				calls = append(calls, core.ToolCall{
					ID:       p.id,
					Type:     "function",
					Function: core.FunctionCall{Name: p.name, Arguments: p.args.String()},
				})
			}
			delete(pending, chunk.Index)
		case model.ChunkUsage:
			logUsage(rc, chunk.Usage)
		case model.ChunkDone:
		}
	}
	if err := <-errs; err != nil {
		return "", nil, err
	}
	return text.String(), calls, nil
}

func logUsage(rc *Context, usage *model.Usage) {
	if usage == nil {
		return
	}
	rc.Logger().Debug("token usage",
		"agent", rc.Config().Name,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
	)
}
