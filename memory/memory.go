// Package memory provides conversation memory for agents: a pluggable
// Provider contract, a sliding-window reference implementation, and a
// policy-driven Adapter that decides what gets recalled and stored around
// each run.
package memory

import (
	"context"
	"sync"

	"github.com/agentrun/agentrun/core"
)

// Provider is the storage contract for conversation memory. Implementations
// must be safe for concurrent use; an agent and its hooks may touch memory
// from different goroutines.
type Provider interface {
	// Remember appends a message to the store.
	Remember(ctx context.Context, msg core.ChatMessage) error

	// Recall returns stored messages relevant to the query, at most limit
	// entries when limit is positive. Providers without retrieval semantics
	// may ignore the query and return their current contents.
	Recall(ctx context.Context, query string, limit int) ([]core.ChatMessage, error)
}

// DefaultWindowSize is the sliding window capacity used when none is given.
const DefaultWindowSize = 10

// SlidingWindow is the reference Provider: a bounded buffer that keeps the
// most recent messages in insertion order, evicting the oldest when full.
// Recall ignores the query.
type SlidingWindow struct {
	mu       sync.Mutex
	capacity int
	messages []core.ChatMessage
}

// NewSlidingWindow creates a sliding-window provider with the given capacity.
// Non-positive capacities fall back to DefaultWindowSize.
func NewSlidingWindow(capacity int) *SlidingWindow {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &SlidingWindow{
		capacity: capacity,
		messages: make([]core.ChatMessage, 0, capacity),
	}
}

// Remember implements Provider. When the window is full the oldest message is
// evicted to make room.
func (w *SlidingWindow) Remember(_ context.Context, msg core.ChatMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.messages) == w.capacity {
		copy(w.messages, w.messages[1:])
		w.messages = w.messages[:w.capacity-1]
	}
	w.messages = append(w.messages, msg)
	return nil
}

// Recall implements Provider. It returns a copy of the current window in
// insertion order, truncated to the most recent limit entries when limit is
// positive.
func (w *SlidingWindow) Recall(_ context.Context, _ string, limit int) ([]core.ChatMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	msgs := w.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]core.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Len returns the number of messages currently held.
func (w *SlidingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

// Clear drops all stored messages.
func (w *SlidingWindow) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = w.messages[:0]
}
