package runtime

import (
	"fmt"
	"reflect"

	"github.com/agentrun/agentrun/core"
)

// Topic is a typed publish/subscribe channel name. The type parameter binds
// the topic to a single message type at compile time; the runtime enforces
// the same binding at subscription time across independently constructed
// Topic values sharing a name.
type Topic[M any] struct {
	name string
	id   string
}

// NewTopic creates a topic with the given name and a fresh identity.
func NewTopic[M any](name string) Topic[M] {
	return Topic[M]{name: name, id: core.NewID()}
}

// Name returns the routing name. Two topics with the same name address the
// same subscriber set regardless of identity.
func (t Topic[M]) Name() string { return t.name }

// ID returns the unique identity assigned at construction.
func (t Topic[M]) ID() string { return t.id }

// MessageType returns the reflected message type carried by this topic.
func (t Topic[M]) MessageType() reflect.Type { return messageType[M]() }

func (t Topic[M]) String() string {
	return fmt.Sprintf("topic(%s)<%s>", t.name, t.MessageType())
}

func messageType[M any]() reflect.Type {
	return reflect.TypeOf((*M)(nil)).Elem()
}

// TopicTypeMismatchError is returned when a subscription or publish names an
// existing topic with a different message type than the one it was first
// registered with.
type TopicTypeMismatchError struct {
	Topic      string
	Registered reflect.Type
	Attempted  reflect.Type
}

func (e *TopicTypeMismatchError) Error() string {
	return fmt.Sprintf("topic %q is bound to message type %s, not %s", e.Topic, e.Registered, e.Attempted)
}
