package core

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Event is one variant of the protocol stream emitted while a task executes.
// Concrete event types implement the unexported isEvent marker, forming a
// closed set. Emission is best-effort: producers never block task progress on
// a slow or absent consumer.
//
// Ordering per submission id: exactly one TaskStarted precedes any turn or
// tool event; turn events bracket the tool events of that turn; each
// ToolCallRequested is followed by exactly one ToolCallCompleted or
// ToolCallFailed with the same call id; TaskComplete or TaskError (never
// both) is the last event.
type Event interface{ isEvent() }

// TaskStarted announces that an actor picked up a task.
type TaskStarted struct {
	SubID       string `json:"sub_id"`
	ActorID     string `json:"actor_id"`
	ActorName   string `json:"actor_name"`
	Description string `json:"description"`
}

// TurnStarted marks the beginning of one ReAct turn.
type TurnStarted struct {
	SubID      string `json:"sub_id"`
	ActorID    string `json:"actor_id"`
	TurnNumber int    `json:"turn_number"`
	MaxTurns   int    `json:"max_turns"`
}

// TurnCompleted marks the end of a turn. FinalTurn is true when the turn
// produced the final answer.
type TurnCompleted struct {
	SubID      string `json:"sub_id"`
	ActorID    string `json:"actor_id"`
	TurnNumber int    `json:"turn_number"`
	FinalTurn  bool   `json:"final_turn"`
}

// ToolCallRequested is emitted before a tool call is dispatched.
type ToolCallRequested struct {
	SubID     string `json:"sub_id"`
	ActorID   string `json:"actor_id"`
	ID        string `json:"id"`
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"`
}

// ToolCallCompleted carries the JSON result of a successful tool call.
type ToolCallCompleted struct {
	SubID    string          `json:"sub_id"`
	ActorID  string          `json:"actor_id"`
	ID       string          `json:"id"`
	ToolName string          `json:"tool_name"`
	Result   json.RawMessage `json:"result"`
}

// ToolCallFailed reports a tool call that could not be completed.
type ToolCallFailed struct {
	SubID    string `json:"sub_id"`
	ActorID  string `json:"actor_id"`
	ID       string `json:"id"`
	ToolName string `json:"tool_name"`
	Error    string `json:"error"`
}

// StreamChunk is a fragment of streamed assistant text. A chunk with Final
// set closes the stream for the submission; its content may be empty.
type StreamChunk struct {
	SubID   string `json:"sub_id"`
	ActorID string `json:"actor_id"`
	Content string `json:"content"`
	Final   bool   `json:"is_final"`
}

// TaskComplete is the terminal success event. Result holds the final answer,
// pretty-printed JSON when the agent declared a structured output schema.
type TaskComplete struct {
	SubID     string `json:"sub_id"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	Result    string `json:"result"`
}

// TaskError is the terminal failure event.
type TaskError struct {
	SubID   string `json:"sub_id"`
	ActorID string `json:"actor_id"`
	Error   string `json:"error"`
}

// PublishMessage is an internal routing request produced when an agent
// publishes to a topic mid-run. The runtime intercepts it and performs the
// fan-out; it is never forwarded to external consumers and has no JSON form.
type PublishMessage struct {
	TopicName string
	TopicType reflect.Type
	Message   any
}

func (TaskStarted) isEvent()       {}
func (TurnStarted) isEvent()       {}
func (TurnCompleted) isEvent()     {}
func (ToolCallRequested) isEvent() {}
func (ToolCallCompleted) isEvent() {}
func (ToolCallFailed) isEvent()    {}
func (StreamChunk) isEvent()       {}
func (TaskComplete) isEvent()      {}
func (TaskError) isEvent()         {}
func (PublishMessage) isEvent()    {}

// eventNames maps concrete event types to their snake_case discriminator.
var eventNames = map[reflect.Type]string{
	reflect.TypeOf(TaskStarted{}):       "task_started",
	reflect.TypeOf(TurnStarted{}):       "turn_started",
	reflect.TypeOf(TurnCompleted{}):     "turn_completed",
	reflect.TypeOf(ToolCallRequested{}): "tool_call_requested",
	reflect.TypeOf(ToolCallCompleted{}): "tool_call_completed",
	reflect.TypeOf(ToolCallFailed{}):    "tool_call_failed",
	reflect.TypeOf(StreamChunk{}):       "stream_chunk",
	reflect.TypeOf(TaskComplete{}):      "task_complete",
	reflect.TypeOf(TaskError{}):         "task_error",
}

// EventName returns the snake_case discriminator for an event, or "" for
// internal events that have no wire form.
func EventName(e Event) string {
	return eventNames[reflect.TypeOf(e)]
}

// EncodeEvent serializes an event as a single JSON object with a "type"
// discriminator and the variant's fields as siblings, suitable for
// line-delimited streaming (SSE, NDJSON). Internal events cannot be encoded.
func EncodeEvent(e Event) ([]byte, error) {
	name := EventName(e)
	if name == "" {
		return nil, fmt.Errorf("core: event %T has no wire form", e)
	}
	fields, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(fields, &obj); err != nil {
		return nil, err
	}
	obj["type"] = json.RawMessage(fmt.Sprintf("%q", name))
	return json.Marshal(obj)
}

// DecodeEvent parses a JSON object produced by EncodeEvent back into the
// concrete event variant.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	var e Event
	switch head.Type {
	case "task_started":
		e = &TaskStarted{}
	case "turn_started":
		e = &TurnStarted{}
	case "turn_completed":
		e = &TurnCompleted{}
	case "tool_call_requested":
		e = &ToolCallRequested{}
	case "tool_call_completed":
		e = &ToolCallCompleted{}
	case "tool_call_failed":
		e = &ToolCallFailed{}
	case "stream_chunk":
		e = &StreamChunk{}
	case "task_complete":
		e = &TaskComplete{}
	case "task_error":
		e = &TaskError{}
	default:
		return nil, fmt.Errorf("core: unknown event type %q", head.Type)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, err
	}
	return reflect.ValueOf(e).Elem().Interface().(Event), nil
}

// SubmissionID extracts the submission id an event belongs to, or "" for
// events not tied to a submission.
func SubmissionID(e Event) string {
	switch ev := e.(type) {
	case TaskStarted:
		return ev.SubID
	case TurnStarted:
		return ev.SubID
	case TurnCompleted:
		return ev.SubID
	case ToolCallRequested:
		return ev.SubID
	case ToolCallCompleted:
		return ev.SubID
	case ToolCallFailed:
		return ev.SubID
	case StreamChunk:
		return ev.SubID
	case TaskComplete:
		return ev.SubID
	case TaskError:
		return ev.SubID
	}
	return ""
}
