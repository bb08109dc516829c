package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEvent_Discriminator(t *testing.T) {
	ev := TaskStarted{SubID: "s1", ActorID: "a1", ActorName: "greeter", Description: "Say hi."}
	data, err := EncodeEvent(ev)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(data, &obj))
	assert.Equal(t, "task_started", obj["type"])
	assert.Equal(t, "s1", obj["sub_id"])
	assert.Equal(t, "greeter", obj["actor_name"])
}

func TestEncodeDecodeEvent_Roundtrip(t *testing.T) {
	events := []Event{
		TaskStarted{SubID: "s", ActorID: "a", ActorName: "n", Description: "d"},
		TurnStarted{SubID: "s", ActorID: "a", TurnNumber: 0, MaxTurns: 10},
		TurnCompleted{SubID: "s", ActorID: "a", TurnNumber: 0, FinalTurn: true},
		ToolCallRequested{SubID: "s", ActorID: "a", ID: "c1", ToolName: "add", Arguments: `{"left":2}`},
		ToolCallCompleted{SubID: "s", ActorID: "a", ID: "c1", ToolName: "add", Result: json.RawMessage(`5`)},
		ToolCallFailed{SubID: "s", ActorID: "a", ID: "c2", ToolName: "mul", Error: "Tool 'mul' not found"},
		StreamChunk{SubID: "s", ActorID: "a", Content: "Hel", Final: false},
		TaskComplete{SubID: "s", ActorID: "a", ActorName: "n", Result: "Hi."},
		TaskError{SubID: "s", ActorID: "a", Error: "boom"},
	}
	for _, ev := range events {
		data, err := EncodeEvent(ev)
		require.NoError(t, err, "encode %T", ev)
		got, err := DecodeEvent(data)
		require.NoError(t, err, "decode %T", ev)
		assert.Equal(t, EventName(ev), EventName(got))
		assert.Equal(t, SubmissionID(ev), SubmissionID(got))
	}
}

func TestEncodeEvent_InternalHasNoWireForm(t *testing.T) {
	_, err := EncodeEvent(PublishMessage{TopicName: "b"})
	assert.Error(t, err)
	assert.Empty(t, EventName(PublishMessage{}))
}

func TestDecodeEvent_UnknownType(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"nope"}`))
	assert.Error(t, err)
}

func TestTask_CloneIsDeep(t *testing.T) {
	task := NewTaskWithImage("describe", ImagePNG, []byte{0x89, 0x50})
	clone := task.Clone()

	assert.Equal(t, task.SubmissionID, clone.SubmissionID)
	assert.Equal(t, task.Prompt, clone.Prompt)
	require.NotNil(t, clone.Image)

	clone.Image.Data[0] = 0xFF
	assert.Equal(t, byte(0x89), task.Image.Data[0])
}

func TestTask_FreshSubmissionIDs(t *testing.T) {
	a, b := NewTask("one"), NewTask("two")
	assert.NotEmpty(t, a.SubmissionID)
	assert.NotEqual(t, a.SubmissionID, b.SubmissionID)
}

func TestChatMessage_Constructors(t *testing.T) {
	calls := []ToolCall{{ID: "c1", Type: "function", Function: FunctionCall{Name: "add", Arguments: "{}"}}}

	use := NewToolUseMessage("thinking", calls)
	assert.Equal(t, RoleAssistant, use.Role)
	assert.Equal(t, KindToolUse, use.Kind)
	assert.Equal(t, calls, use.ToolCalls)

	res := NewToolResultMessage(calls)
	assert.Equal(t, RoleTool, res.Role)
	assert.Equal(t, KindToolResult, res.Kind)

	img := NewImageMessage("look", &ImageAttachment{Mime: ImageJPEG, Data: []byte{1}})
	assert.Equal(t, KindImage, img.Kind)
	assert.Equal(t, RoleUser, img.Role)
}
