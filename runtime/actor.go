package runtime

import (
	"context"
	"errors"
	"sync"

	"github.com/agentrun/agentrun/core"
	"github.com/agentrun/agentrun/logging"
)

// ErrActorStopped is returned when a message is sent to an actor whose
// mailbox has been closed by Stop or Kill.
var ErrActorStopped = errors.New("runtime: actor stopped")

// Actor processes messages of type M delivered one at a time from a bounded
// mailbox. Receive is never invoked concurrently for the same actor, so
// implementations need no internal locking for state touched only there.
type Actor[M any] interface {
	// PreStart runs before the first message is delivered. Returning an
	// error aborts registration.
	PreStart(ctx context.Context) error

	// Receive handles one message. Errors are logged by the runtime and do
	// not stop the actor.
	Receive(ctx context.Context, msg M) error

	// PostStop runs after the mailbox is drained (Stop) or closed (Kill).
	PostStop(ctx context.Context) error
}

// ActorRef is a handle to a spawned actor bound to its message type. Sends
// block when the mailbox is full; the mailbox never drops messages.
type ActorRef[M any] struct {
	id   string
	name string

	mu      sync.RWMutex
	closed  bool
	mailbox chan M

	kill chan struct{}
	done chan struct{}

	stopOnce sync.Once
	killOnce sync.Once
}

// ID returns the actor's unique identifier.
func (r *ActorRef[M]) ID() string { return r.id }

// Name returns the name the actor was registered under.
func (r *ActorRef[M]) Name() string { return r.name }

// Tell enqueues a message, blocking while the mailbox is full. It fails once
// the actor has been stopped or the context is done.
func (r *ActorRef[M]) Tell(ctx context.Context, msg M) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrActorStopped
	}
	select {
	case r.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the mailbox and lets the actor drain messages already
// enqueued before it exits.
func (r *ActorRef[M]) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		r.closed = true
		close(r.mailbox)
	})
}

// Kill stops the actor without draining: pending mailbox messages are
// discarded and the actor exits after the in-flight message, if any.
func (r *ActorRef[M]) Kill() {
	r.killOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.kill)
	})
}

// Done is closed once the actor's processing loop has exited and PostStop
// has run.
func (r *ActorRef[M]) Done() <-chan struct{} { return r.done }

// Register spawns an actor on the runtime: PreStart runs synchronously, then
// the processing loop starts on its own goroutine. The returned ref is the
// only way to reach the actor.
func Register[M any](ctx context.Context, rt *Runtime, name string, actor Actor[M]) (*ActorRef[M], error) {
	if err := actor.PreStart(ctx); err != nil {
		return nil, err
	}
	ref := &ActorRef[M]{
		id:      core.NewID(),
		name:    name,
		mailbox: make(chan M, rt.mailboxCapacity),
		kill:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	rt.track(ref.id, name, ref.Stop, ref.done)
	go run(ctx, rt.logger, actor, ref)

	rt.logger.Debug("actor registered", "actor_id", ref.id, "actor_name", name)
	return ref, nil
}

// run is the actor's processing loop: one message at a time, FIFO, until the
// mailbox closes or the actor is killed.
func run[M any](ctx context.Context, logger logging.Logger, actor Actor[M], ref *ActorRef[M]) {
	defer close(ref.done)
	defer func() {
		if err := actor.PostStop(ctx); err != nil {
			logger.Error("actor post-stop failed", "actor_id", ref.id, "actor_name", ref.name, "error", err)
		}
	}()
	for {
		select {
		case <-ref.kill:
			return
		case msg, ok := <-ref.mailbox:
			if !ok {
				return
			}
			if err := actor.Receive(ctx, msg); err != nil {
				logger.Error("actor receive failed", "actor_id", ref.id, "actor_name", ref.name, "error", err)
			}
		}
	}
}

// Send delivers a message directly to an actor, bypassing topics.
func Send[M any](ctx context.Context, ref *ActorRef[M], msg M) error {
	return ref.Tell(ctx, msg)
}
