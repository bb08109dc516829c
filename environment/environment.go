// Package environment hosts one or more actor runtimes and drives their
// event pumps. An Environment is the top-level handle an application uses to
// run agent systems: register runtimes, start them in the foreground or
// background, consume events and shut everything down.
package environment

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentrun/agentrun/core"
	"github.com/agentrun/agentrun/logging"
	"github.com/agentrun/agentrun/runtime"
)

// ErrNoRuntime is returned by operations that need at least one registered
// runtime.
var ErrNoRuntime = errors.New("environment: no runtime registered")

// ErrAlreadyRunning is returned when Run or RunBackground is called while
// the environment is running.
var ErrAlreadyRunning = errors.New("environment: already running")

// Options configure an Environment.
type Options struct {
	// Logger receives environment diagnostics.
	Logger logging.Logger
}

// Environment owns a set of runtimes and their lifecycles.
type Environment struct {
	logger logging.Logger

	mu       sync.Mutex
	runtimes []*runtime.Runtime
	running  bool
	cancel   context.CancelFunc
	group    *errgroup.Group
}

// New creates an empty environment.
func New(optFns ...func(o *Options)) *Environment {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Environment{logger: logging.OrNoop(opts.Logger)}
}

// RegisterRuntime adds a runtime to the environment. The first registered
// runtime becomes the default for event consumption.
func (e *Environment) RegisterRuntime(rt *runtime.Runtime) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtimes = append(e.runtimes, rt)
	e.logger.Debug("runtime registered", "runtime_id", rt.ID(), "runtime_name", rt.Name())
}

// Default returns the default runtime, or nil when none is registered.
func (e *Environment) Default() *runtime.Runtime {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.runtimes) == 0 {
		return nil
	}
	return e.runtimes[0]
}

// Run drives every registered runtime until Shutdown is called or the
// context is cancelled, then returns the first pump error, if any.
func (e *Environment) Run(ctx context.Context) error {
	if err := e.start(ctx); err != nil {
		return err
	}
	return e.wait()
}

// RunBackground starts every registered runtime and returns immediately.
// Call Shutdown to stop them and collect the result.
func (e *Environment) RunBackground(ctx context.Context) error {
	return e.start(ctx)
}

func (e *Environment) start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	if len(e.runtimes) == 0 {
		return ErrNoRuntime
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	for _, rt := range e.runtimes {
		group.Go(func() error {
			return rt.Run(groupCtx)
		})
	}

	e.running = true
	e.cancel = cancel
	e.group = group
	e.logger.Info("environment started", "runtimes", len(e.runtimes))
	return nil
}

func (e *Environment) wait() error {
	e.mu.Lock()
	group := e.group
	e.mu.Unlock()
	if group == nil {
		return nil
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// TakeEventReceiver hands out the default runtime's primary event stream.
func (e *Environment) TakeEventReceiver() (<-chan core.Event, error) {
	rt := e.Default()
	if rt == nil {
		return nil, ErrNoRuntime
	}
	return rt.TakeEventReceiver()
}

// SubscribeEvents returns an independent fan-out stream from the default
// runtime.
func (e *Environment) SubscribeEvents() (<-chan core.Event, error) {
	rt := e.Default()
	if rt == nil {
		return nil, ErrNoRuntime
	}
	return rt.SubscribeEvents(), nil
}

// Shutdown stops every runtime and waits for their pumps to exit.
func (e *Environment) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	runtimes := make([]*runtime.Runtime, len(e.runtimes))
	copy(runtimes, e.runtimes)
	cancel := e.cancel
	running := e.running
	e.mu.Unlock()

	var firstErr error
	for _, rt := range runtimes {
		if err := rt.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if running {
		if err := e.wait(); err != nil && firstErr == nil {
			firstErr = err
		}
		if cancel != nil {
			cancel()
		}
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.group = nil
		e.mu.Unlock()
	}

	e.logger.Info("environment shut down")
	return firstErr
}
