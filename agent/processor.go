package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentrun/agentrun/core"
	"github.com/agentrun/agentrun/internal/util"
	"github.com/agentrun/agentrun/tool"
)

// processToolCalls dispatches a batch of LLM-requested tool calls in order.
// It returns the calls that actually ran together with one result per such
// call, index-aligned. Failures never abort the batch: a missing tool,
// unparsable arguments or an execution error all fold into a failure result
// the LLM sees on the next turn. Calls rejected by the OnToolCall hook are
// skipped and omitted from both slices.
func processToolCalls(ctx context.Context, run *runState, calls []core.ToolCall) ([]core.ToolCall, []core.ToolCallResult) {
	executed := make([]core.ToolCall, 0, len(calls))
	results := make([]core.ToolCallResult, 0, len(calls))
	for _, call := range calls {
		if run.hooks.OnToolCall(ctx, call, run.rc) == Abort {
			run.rc.Logger().Debug("tool call aborted by hook",
				"tool", call.Function.Name, "call_id", call.ID, "sub_id", run.task.SubmissionID)
			continue
		}
		executed = append(executed, call)
		results = append(results, processToolCall(ctx, run, call))
	}
	return executed, results
}

func processToolCall(ctx context.Context, run *runState, call core.ToolCall) core.ToolCallResult {
	name := call.Function.Name
	run.emit(core.ToolCallRequested{
		SubID:     run.task.SubmissionID,
		ActorID:   run.actorID,
		ID:        call.ID,
		ToolName:  name,
		Arguments: call.Function.Arguments,
	})

	target := lookupTool(run.rc.Tools(), name)
	if target == nil {
		return run.failCall(ctx, call, fmt.Sprintf("Tool '%s' not found", name), tool.CodeNotFound)
	}

	args := json.RawMessage(call.Function.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		return run.failCall(ctx, call, fmt.Sprintf("invalid tool arguments: %s", call.Function.Arguments), tool.CodeValidation)
	}

	run.hooks.OnToolStart(ctx, call)
	value, err := target.Execute(ctx, args)
	if err != nil {
		run.hooks.OnToolError(ctx, call, err)
		return run.failCallEmitted(ctx, call, err.Error(), args)
	}

	result := core.ToolCallResult{
		ToolName:  name,
		Success:   true,
		Arguments: args,
		Result:    util.MarshalCanonical(value),
	}
	run.hooks.OnToolResult(ctx, result)
	run.emit(core.ToolCallCompleted{
		SubID:    run.task.SubmissionID,
		ActorID:  run.actorID,
		ID:       call.ID,
		ToolName: name,
		Result:   result.Result,
	})
	return result
}

// failCall materializes a dispatch failure (tool missing, bad arguments)
// before the tool ran. The OnToolError hook still fires so observers see
// every failure. Arguments that never parsed fold as the empty object so the
// result stays serializable.
func (run *runState) failCall(ctx context.Context, call core.ToolCall, message, code string) core.ToolCallResult {
	run.hooks.OnToolError(ctx, call, tool.NewToolError(call.Function.Name, message, code))
	args := json.RawMessage(call.Function.Arguments)
	if len(args) == 0 || !json.Valid(args) {
		args = json.RawMessage("{}")
	}
	return run.failCallEmitted(ctx, call, message, args)
}

// failCallEmitted builds the failure result and emits ToolCallFailed. The
// error is wrapped as {"error": message} so the LLM receives well-formed
// JSON feedback.
func (run *runState) failCallEmitted(_ context.Context, call core.ToolCall, message string, args json.RawMessage) core.ToolCallResult {
	run.emit(core.ToolCallFailed{
		SubID:    run.task.SubmissionID,
		ActorID:  run.actorID,
		ID:       call.ID,
		ToolName: call.Function.Name,
		Error:    message,
	})
	errJSON, _ := json.Marshal(map[string]string{"error": message})
	return core.ToolCallResult{
		ToolName:  call.Function.Name,
		Success:   false,
		Arguments: args,
		Result:    errJSON,
	}
}

func lookupTool(tools []tool.Tool, name string) tool.Tool {
	for _, t := range tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}
