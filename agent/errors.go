package agent

import (
	"errors"
	"fmt"
)

// ErrAborted marks a run rejected by an OnRunStart hook. It is wrapped in
// the run error so callers can differentiate aborts from executor failures
// with errors.Is.
var ErrAborted = errors.New("agent: run aborted")

// ErrNoSink is returned by PublishTo when the agent has no event sink to
// route through.
var ErrNoSink = errors.New("agent: no event sink attached")

// MaxTurnsError reports a run that exhausted its turn budget without
// producing a final answer.
type MaxTurnsError struct {
	MaxTurns int
}

func (e *MaxTurnsError) Error() string {
	return fmt.Sprintf("agent: maximum turns exceeded (%d)", e.MaxTurns)
}

// BuildError reports construction-time misconfiguration. It is raised
// synchronously by New and never reaches the event stream.
type BuildError struct {
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("agent: build failed: %s", e.Reason)
}

func buildErrorf(format string, args ...any) *BuildError {
	return &BuildError{Reason: fmt.Sprintf(format, args...)}
}
