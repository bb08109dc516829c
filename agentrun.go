// Package agentrun provides a high-level facade over the actor runtime and
// environment for building LLM agent systems. Most applications interact
// with this package by:
//  1. Creating a System via New() (optionally overriding the logger and
//     buffer sizes)
//  2. Building agents bound to the system's runtime (see the agent package)
//  3. Publishing tasks to topics and consuming the event stream
//
// Direct, runtime-free agents do not need a System at all; construct them
// with the agent package and call Run.
package agentrun

import (
	"context"

	"github.com/agentrun/agentrun/core"
	"github.com/agentrun/agentrun/environment"
	"github.com/agentrun/agentrun/logging"
	"github.com/agentrun/agentrun/runtime"
)

// Options configure a System.
type Options struct {
	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
	// MailboxCapacity bounds each actor mailbox.
	MailboxCapacity int
	// EventBufferSize bounds the event stream buffers.
	EventBufferSize int
}

// System aggregates an environment with a single default runtime. It covers
// the common case; applications needing several runtimes compose the
// environment and runtime packages directly.
type System struct {
	env *environment.Environment
	rt  *runtime.Runtime
}

// New creates a System with one registered runtime.
func New(optFns ...func(o *Options)) *System {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	rt := runtime.New(func(o *runtime.Options) {
		o.Logger = opts.Logger
		o.MailboxCapacity = opts.MailboxCapacity
		o.EventBufferSize = opts.EventBufferSize
	})
	env := environment.New(func(o *environment.Options) {
		o.Logger = opts.Logger
	})
	env.RegisterRuntime(rt)

	return &System{env: env, rt: rt}
}

// Runtime returns the default runtime, for registering agents and topics.
func (s *System) Runtime() *runtime.Runtime { return s.rt }

// Environment returns the underlying environment.
func (s *System) Environment() *environment.Environment { return s.env }

// Start runs the system in the background. Call Shutdown to stop it.
func (s *System) Start(ctx context.Context) error {
	return s.env.RunBackground(ctx)
}

// Run drives the system until Shutdown is called or the context is
// cancelled.
func (s *System) Run(ctx context.Context) error {
	return s.env.Run(ctx)
}

// Events hands out the primary event stream. It may be taken at most once.
func (s *System) Events() (<-chan core.Event, error) {
	return s.env.TakeEventReceiver()
}

// SubscribeEvents returns an independent fan-out event stream.
func (s *System) SubscribeEvents() <-chan core.Event {
	return s.rt.SubscribeEvents()
}

// Shutdown stops all actors, drains their mailboxes and closes the event
// streams.
func (s *System) Shutdown(ctx context.Context) error {
	return s.env.Shutdown(ctx)
}
