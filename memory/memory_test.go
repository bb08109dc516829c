package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrun/agentrun/core"
)

var _ Provider = (*SlidingWindow)(nil)

func TestSlidingWindow_KeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	w := NewSlidingWindow(3)

	for i := 0; i < 5; i++ {
		msg := core.NewTextMessage(core.RoleUser, fmt.Sprintf("msg-%d", i))
		require.NoError(t, w.Remember(ctx, msg))
	}

	got, err := w.Recall(ctx, "ignored", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "msg-2", got[0].Content)
	assert.Equal(t, "msg-3", got[1].Content)
	assert.Equal(t, "msg-4", got[2].Content)
}

func TestSlidingWindow_RecallLimit(t *testing.T) {
	ctx := context.Background()
	w := NewSlidingWindow(10)

	for i := 0; i < 4; i++ {
		require.NoError(t, w.Remember(ctx, core.NewTextMessage(core.RoleUser, fmt.Sprintf("msg-%d", i))))
	}

	got, err := w.Recall(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "msg-2", got[0].Content)
	assert.Equal(t, "msg-3", got[1].Content)
}

func TestSlidingWindow_DefaultCapacity(t *testing.T) {
	ctx := context.Background()
	w := NewSlidingWindow(0)

	for i := 0; i < DefaultWindowSize+5; i++ {
		require.NoError(t, w.Remember(ctx, core.NewTextMessage(core.RoleUser, fmt.Sprintf("msg-%d", i))))
	}
	assert.Equal(t, DefaultWindowSize, w.Len())
}

func TestSlidingWindow_RecallReturnsCopy(t *testing.T) {
	ctx := context.Background()
	w := NewSlidingWindow(5)
	require.NoError(t, w.Remember(ctx, core.NewTextMessage(core.RoleUser, "original")))

	got, err := w.Recall(ctx, "", 0)
	require.NoError(t, err)
	got[0].Content = "mutated"

	again, err := w.Recall(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}

func TestSlidingWindow_Clear(t *testing.T) {
	ctx := context.Background()
	w := NewSlidingWindow(5)
	require.NoError(t, w.Remember(ctx, core.NewTextMessage(core.RoleUser, "msg")))
	w.Clear()
	assert.Equal(t, 0, w.Len())
}
