package memory

import (
	"context"
	"encoding/json"

	"github.com/agentrun/agentrun/core"
)

// Adapter applies a Policy over a Provider. All methods are no-ops when the
// provider is nil, so agents without memory carry a zero-cost adapter instead
// of nil checks throughout the executors.
type Adapter struct {
	provider Provider
	policy   Policy
}

// NewAdapter builds an adapter over the given provider and policy. The
// provider may be nil.
func NewAdapter(provider Provider, policy Policy) *Adapter {
	return &Adapter{provider: provider, policy: policy}
}

// HasProvider reports whether a provider is attached.
func (a *Adapter) HasProvider() bool { return a.provider != nil }

// Recall returns the policy-selected messages for the given task, or nil
// when recall is disabled or no provider is attached.
func (a *Adapter) Recall(ctx context.Context, task core.Task) ([]core.ChatMessage, error) {
	if a.provider == nil || !a.policy.Recall {
		return nil, nil
	}
	query := ""
	if a.policy.RecallQuery == QueryPrompt {
		query = task.Prompt
	}
	return a.provider.Recall(ctx, query, a.policy.RecallLimit)
}

// StoreUser persists the task as a user message when user storage is
// enabled. Tasks carrying an image are stored as image messages.
func (a *Adapter) StoreUser(ctx context.Context, task core.Task) error {
	if a.provider == nil || !a.policy.StoreUser {
		return nil
	}
	msg := core.NewTextMessage(core.RoleUser, task.Prompt)
	if task.Image != nil {
		msg = core.NewImageMessage(task.Prompt, task.Image.Clone())
	}
	return a.provider.Remember(ctx, msg)
}

// StoreAssistant persists assistant text when assistant storage is enabled.
func (a *Adapter) StoreAssistant(ctx context.Context, text string) error {
	if a.provider == nil || !a.policy.StoreAssistant {
		return nil
	}
	return a.provider.Remember(ctx, core.NewTextMessage(core.RoleAssistant, text))
}

// StoreToolInteraction persists a completed round of tool calls as two
// adjacent messages: the assistant tool-use message carrying the original
// calls, then the tool-result message carrying the calls with their
// arguments replaced by each call's result. Nothing else may be inserted
// between the pair.
func (a *Adapter) StoreToolInteraction(ctx context.Context, calls []core.ToolCall, results []core.ToolCallResult, assistantText string) error {
	if a.provider == nil || !a.policy.StoreToolInteractions || len(calls) == 0 {
		return nil
	}
	if err := a.provider.Remember(ctx, core.NewToolUseMessage(assistantText, calls)); err != nil {
		return err
	}
	return a.provider.Remember(ctx, core.NewToolResultMessage(FoldResults(calls, results)))
}

// FoldResults pairs each call with its result by position, substituting the
// result payload for the call arguments. String results fold as the raw
// string; everything else folds as its JSON encoding. Calls without a
// matching result keep their original arguments.
func FoldResults(calls []core.ToolCall, results []core.ToolCallResult) []core.ToolCall {
	folded := make([]core.ToolCall, len(calls))
	for i, call := range calls {
		folded[i] = call
		if i < len(results) {
			folded[i].Function.Arguments = foldPayload(results[i].Result)
		}
	}
	return folded
}

func foldPayload(result json.RawMessage) string {
	var s string
	if err := json.Unmarshal(result, &s); err == nil {
		return s
	}
	return string(result)
}
