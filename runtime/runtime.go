// Package runtime implements a typed actor runtime with topic based
// publish/subscribe. Actors own bounded mailboxes and process messages one
// at a time; topics fan messages out to every subscriber with per-subscriber
// clones; the runtime multiplexes agent events to external consumers.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/agentrun/agentrun/core"
	"github.com/agentrun/agentrun/logging"
)

const (
	// DefaultMailboxCapacity bounds each actor's mailbox.
	DefaultMailboxCapacity = 16
	// DefaultEventBufferSize bounds the runtime's event stream buffers.
	DefaultEventBufferSize = 64
)

// ErrReceiverTaken is returned when TakeEventReceiver is called twice.
var ErrReceiverTaken = errors.New("runtime: event receiver already taken")

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("runtime: already running")

// Options configure a Runtime.
type Options struct {
	// Name identifies the runtime in logs.
	Name string
	// MailboxCapacity bounds each actor mailbox.
	MailboxCapacity int
	// EventBufferSize bounds the event stream buffers.
	EventBufferSize int
	// Logger receives runtime diagnostics.
	Logger logging.Logger
}

type topicSubscriber struct {
	actorID string
	deliver func(ctx context.Context, msg any) error
}

type subscription struct {
	msgType reflect.Type
	subs    []topicSubscriber
}

type trackedActor struct {
	id   string
	name string
	stop func()
	done <-chan struct{}
}

// Runtime schedules actors and routes topic messages and events. Construct
// with New, register actors and subscriptions, then drive it with Run
// (directly or through an Environment).
type Runtime struct {
	id              string
	name            string
	mailboxCapacity int
	eventBufferSize int
	logger          logging.Logger

	mu     sync.Mutex
	topics map[string]*subscription
	actors []trackedActor

	emitMu     sync.RWMutex
	emitClosed bool
	events     chan core.Event

	sinkMu       sync.Mutex
	primary      chan core.Event
	primaryTaken bool
	fanout       []chan core.Event

	runOnce  sync.Once
	running  bool
	pumpDone chan struct{}
}

// New creates a runtime.
func New(optFns ...func(o *Options)) *Runtime {
	opts := Options{
		MailboxCapacity: DefaultMailboxCapacity,
		EventBufferSize: DefaultEventBufferSize,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MailboxCapacity <= 0 {
		opts.MailboxCapacity = DefaultMailboxCapacity
	}
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = DefaultEventBufferSize
	}
	name := opts.Name
	if name == "" {
		name = "runtime"
	}
	return &Runtime{
		id:              core.NewID(),
		name:            name,
		mailboxCapacity: opts.MailboxCapacity,
		eventBufferSize: opts.EventBufferSize,
		logger:          logging.OrNoop(opts.Logger),
		topics:          make(map[string]*subscription),
		events:          make(chan core.Event, opts.EventBufferSize),
		primary:         make(chan core.Event, opts.EventBufferSize),
		pumpDone:        make(chan struct{}),
	}
}

// ID returns the runtime's unique identifier.
func (r *Runtime) ID() string { return r.id }

// Name returns the runtime's configured name.
func (r *Runtime) Name() string { return r.name }

// Subscribe adds an actor to a topic's subscriber list. It fails when the
// topic name is already bound to a different message type.
func Subscribe[M any](rt *Runtime, topic Topic[M], ref *ActorRef[M]) error {
	msgType := messageType[M]()

	rt.mu.Lock()
	defer rt.mu.Unlock()

	sub, ok := rt.topics[topic.Name()]
	if !ok {
		sub = &subscription{msgType: msgType}
		rt.topics[topic.Name()] = sub
	} else if sub.msgType != msgType {
		return &TopicTypeMismatchError{Topic: topic.Name(), Registered: sub.msgType, Attempted: msgType}
	}

	sub.subs = append(sub.subs, topicSubscriber{
		actorID: ref.ID(),
		deliver: func(ctx context.Context, msg any) error {
			m, ok := msg.(M)
			if !ok {
				return fmt.Errorf("runtime: message type %T does not match topic %q", msg, topic.Name())
			}
			return ref.Tell(ctx, cloneMessage(m))
		},
	})

	rt.logger.Debug("subscribed", "topic", topic.Name(), "actor_id", ref.ID(), "message_type", msgType.String())
	return nil
}

// Publish delivers a message to every subscriber of the topic, cloning it
// once per subscriber. Delivery blocks while a subscriber's mailbox is full;
// messages are never dropped. Publishing to a topic with no subscribers is
// not an error.
func Publish[M any](ctx context.Context, rt *Runtime, topic Topic[M], msg M) error {
	return rt.publishAny(ctx, topic.Name(), messageType[M](), msg)
}

func (r *Runtime) publishAny(ctx context.Context, topicName string, msgType reflect.Type, msg any) error {
	r.mu.Lock()
	sub, ok := r.topics[topicName]
	if ok && msgType != nil && sub.msgType != msgType {
		registered := sub.msgType
		r.mu.Unlock()
		return &TopicTypeMismatchError{Topic: topicName, Registered: registered, Attempted: msgType}
	}
	var targets []topicSubscriber
	if ok {
		targets = make([]topicSubscriber, len(sub.subs))
		copy(targets, sub.subs)
	}
	r.mu.Unlock()

	if len(targets) == 0 {
		r.logger.Debug("publish to topic without subscribers", "topic", topicName)
		return nil
	}
	for _, target := range targets {
		if err := target.deliver(ctx, msg); err != nil {
			if errors.Is(err, ErrActorStopped) {
				r.logger.Warn("dropped message for stopped actor", "topic", topicName, "actor_id", target.actorID)
				continue
			}
			return err
		}
	}
	return nil
}

// cloneMessage deep-copies messages that implement Clone; everything else is
// delivered as a shallow value copy.
func cloneMessage[M any](msg M) M {
	if c, ok := any(msg).(interface{ Clone() M }); ok {
		return c.Clone()
	}
	return msg
}

// Emit places an event on the runtime's stream. Routing requests block until
// accepted; ordinary events are best-effort and are dropped when the buffer
// is full and no consumer is draining.
func (r *Runtime) Emit(ev core.Event) {
	r.emitMu.RLock()
	defer r.emitMu.RUnlock()
	if r.emitClosed {
		return
	}
	if _, ok := ev.(core.PublishMessage); ok {
		r.events <- ev
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("event buffer full, dropping event", "event", core.EventName(ev))
	}
}

// TakeEventReceiver hands out the runtime's primary event stream. It may be
// called at most once; further consumers use SubscribeEvents.
func (r *Runtime) TakeEventReceiver() (<-chan core.Event, error) {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	if r.primaryTaken {
		return nil, ErrReceiverTaken
	}
	r.primaryTaken = true
	return r.primary, nil
}

// SubscribeEvents returns an independent fan-out stream of runtime events.
// Slow consumers miss events rather than backpressuring the runtime.
func (r *Runtime) SubscribeEvents() <-chan core.Event {
	ch := make(chan core.Event, r.eventBufferSize)
	r.sinkMu.Lock()
	r.fanout = append(r.fanout, ch)
	r.sinkMu.Unlock()
	return ch
}

// Run drives the event pump until Shutdown closes the stream or the context
// is cancelled. Routing requests published by agents are dispatched to topic
// subscribers; every other event is forwarded to the primary receiver and
// all fan-out streams.
func (r *Runtime) Run(ctx context.Context) error {
	var started bool
	r.runOnce.Do(func() { started = true })
	if !started {
		return ErrAlreadyRunning
	}
	defer close(r.pumpDone)
	defer r.closeSinks()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-r.events:
			if !ok {
				return nil
			}
			if pm, isPublish := ev.(core.PublishMessage); isPublish {
				if err := r.publishAny(ctx, pm.TopicName, pm.TopicType, pm.Message); err != nil {
					r.logger.Error("publish failed", "topic", pm.TopicName, "error", err)
				}
				continue
			}
			r.forward(ev)
		}
	}
}

func (r *Runtime) forward(ev core.Event) {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	if r.primaryTaken {
		select {
		case r.primary <- ev:
		default:
			r.logger.Warn("primary event receiver full, dropping event", "event", core.EventName(ev))
		}
	}
	for _, ch := range r.fanout {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (r *Runtime) closeSinks() {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	close(r.primary)
	for _, ch := range r.fanout {
		close(ch)
	}
	r.fanout = nil
}

func (r *Runtime) track(id, name string, stop func(), done <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors = append(r.actors, trackedActor{id: id, name: name, stop: stop, done: done})
}

// Shutdown stops every actor gracefully, waits for their mailboxes to drain,
// then closes the event stream so Run returns. It is safe to call once.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	actors := make([]trackedActor, len(r.actors))
	copy(actors, r.actors)
	r.mu.Unlock()

	for _, a := range actors {
		a.stop()
	}
	for _, a := range actors {
		select {
		case <-a.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.emitMu.Lock()
	if !r.emitClosed {
		r.emitClosed = true
		close(r.events)
	}
	r.emitMu.Unlock()

	r.logger.Debug("runtime shut down", "runtime_id", r.id, "actors", len(actors))
	return nil
}
