package agent

import (
	"context"

	"github.com/agentrun/agentrun/core"
)

// HookOutcome is returned by interception hooks to let the run proceed or
// stop it.
type HookOutcome int

// Hook outcomes.
const (
	// Continue lets the intercepted operation proceed.
	Continue HookOutcome = iota
	// Abort stops the intercepted operation. From OnRunStart it fails the
	// task; from OnToolCall it skips the call and omits it from the results.
	Abort
)

// Hooks are optional interception points around a run. Embed NoopHooks and
// override what you need; every hook defaults to a no-op returning Continue.
type Hooks interface {
	// OnAgentCreate runs once when the agent's actor starts (or at build
	// time for direct agents).
	OnAgentCreate(ctx context.Context, cfg Config)

	// OnRunStart runs before any LLM call. Returning Abort fails the task
	// without touching the LLM or memory.
	OnRunStart(ctx context.Context, task core.Task, rc *Context) HookOutcome

	// OnRunComplete runs after the final result is produced. The run
	// context is handed in so hooks can chain work with PublishTo.
	OnRunComplete(ctx context.Context, task core.Task, result string, rc *Context)

	// OnTurnStart runs at the beginning of each turn.
	OnTurnStart(ctx context.Context, turn int)

	// OnTurnComplete runs at the end of each turn.
	OnTurnComplete(ctx context.Context, turn int)

	// OnToolCall intercepts a tool call before dispatch. Returning Abort
	// skips execution and omits the call from the results.
	OnToolCall(ctx context.Context, call core.ToolCall, rc *Context) HookOutcome

	// OnToolStart runs just before a tool executes.
	OnToolStart(ctx context.Context, call core.ToolCall)

	// OnToolResult runs after a tool returns successfully.
	OnToolResult(ctx context.Context, result core.ToolCallResult)

	// OnToolError runs after a tool dispatch or execution fails.
	OnToolError(ctx context.Context, call core.ToolCall, err error)

	// OnAgentShutdown runs once when the agent's actor stops.
	OnAgentShutdown(ctx context.Context, cfg Config)
}

// NoopHooks implements Hooks with no-ops. Embed it to implement only the
// hooks you care about.
type NoopHooks struct{}

// OnAgentCreate implements Hooks.
func (NoopHooks) OnAgentCreate(context.Context, Config) {}

// OnRunStart implements Hooks.
func (NoopHooks) OnRunStart(context.Context, core.Task, *Context) HookOutcome { return Continue }

// OnRunComplete implements Hooks.
func (NoopHooks) OnRunComplete(context.Context, core.Task, string, *Context) {}

// OnTurnStart implements Hooks.
func (NoopHooks) OnTurnStart(context.Context, int) {}

// OnTurnComplete implements Hooks.
func (NoopHooks) OnTurnComplete(context.Context, int) {}

// OnToolCall implements Hooks.
func (NoopHooks) OnToolCall(context.Context, core.ToolCall, *Context) HookOutcome { return Continue }

// OnToolStart implements Hooks.
func (NoopHooks) OnToolStart(context.Context, core.ToolCall) {}

// OnToolResult implements Hooks.
func (NoopHooks) OnToolResult(context.Context, core.ToolCallResult) {}

// OnToolError implements Hooks.
func (NoopHooks) OnToolError(context.Context, core.ToolCall, error) {}

// OnAgentShutdown implements Hooks.
func (NoopHooks) OnAgentShutdown(context.Context, Config) {}
