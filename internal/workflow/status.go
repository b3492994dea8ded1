// Package workflow implements the step state machine, the two-phase
// validate-then-run executor, and the monitor step, grounded on the
// teacher's internal/engine executor/planner and internal/model step
// status types, generalized from Streamy's fixed apply/verify pipeline
// into the spec's single-threaded cooperative scheduler.
package workflow

import (
	"sync"

	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// StageKind is the closed set of lifecycle stages a Status can hold.
type StageKind int

const (
	StagePending StageKind = iota
	StageValidated
	StageRunning
	StageFinished
	StageFailed
)

func (k StageKind) String() string {
	switch k {
	case StagePending:
		return "pending"
	case StageValidated:
		return "validated"
	case StageRunning:
		return "running"
	case StageFinished:
		return "finished"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stage is the sum type described in §9: a StageKind, plus a Cause populated
// only when Kind is StageFailed.
type Stage struct {
	Kind  StageKind
	Cause error
}

// Callback is the step-specific poll invoked by Status.Check between
// executor iterations.
type Callback func() error

// Status holds a step's lifecycle stage behind a mutex and dispatches a
// polling callback on Check. The zero value is not usable; use NewStatus.
//
// The callback is invoked without the mutex held: the engine is single-
// threaded cooperative (§5), so the only writer during a run phase is the
// executor's control goroutine, and a callback mutating its own Status via
// SetRunning/SetFinished/etc. simply reacquires the (released) mutex rather
// than needing a literal reentrant lock. A step that spawns its own worker
// (RunCommandStep) keeps it off Status entirely: the worker only records the
// exit result and closes a channel, and the Set* call happens later in
// CheckStatus on the executor's goroutine.
type Status struct {
	mu       sync.Mutex
	owner    string // RefName of the owning step, for logging only
	stage    Stage
	callback Callback
	onChange func(Stage)
}

// NewStatus constructs a Status for the named owning step (used in logs
// only; Status holds no strong reference back to the step).
func NewStatus(owner string) *Status {
	return &Status{stage: Stage{Kind: StagePending}, owner: owner}
}

// SetCallback wires the step's check-status poll. Must be called before the
// first Check.
func (s *Status) SetCallback(cb Callback) {
	s.mu.Lock()
	s.callback = cb
	s.mu.Unlock()
}

// OnTransition registers a hook invoked after every stage change. Neither
// the executor nor the logger registers one; the executor's status-count
// lines are emitted per run pass instead.
func (s *Status) OnTransition(fn func(Stage)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Status) setStage(stage Stage) {
	s.mu.Lock()
	s.stage = stage
	hook := s.onChange
	s.mu.Unlock()
	if hook != nil {
		hook(stage)
	}
}

// SetPending transitions to Pending.
func (s *Status) SetPending() { s.setStage(Stage{Kind: StagePending}) }

// SetValidated transitions to Validated.
func (s *Status) SetValidated() { s.setStage(Stage{Kind: StageValidated}) }

// SetRunning transitions to Running.
func (s *Status) SetRunning() { s.setStage(Stage{Kind: StageRunning}) }

// SetFinished transitions to Finished.
func (s *Status) SetFinished() { s.setStage(Stage{Kind: StageFinished}) }

// SetFailed transitions to Failed, carrying err as the Cause.
func (s *Status) SetFailed(err error) { s.setStage(Stage{Kind: StageFailed, Cause: err}) }

// Get returns a snapshot of the current stage.
func (s *Status) Get() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Pending reports exact equality to StagePending.
func (s *Status) Pending() bool { return s.Get().Kind == StagePending }

// Validated reports exact equality to StageValidated.
func (s *Status) Validated() bool { return s.Get().Kind == StageValidated }

// Running reports exact equality to StageRunning.
func (s *Status) Running() bool { return s.Get().Kind == StageRunning }

// Finished reports exact equality to StageFinished.
func (s *Status) Finished() bool { return s.Get().Kind == StageFinished }

// Failed reports whether the stage is Failed (the only stage carrying data).
func (s *Status) Failed() bool { return s.Get().Kind == StageFailed }

// Cause returns the failure cause, or nil if not Failed.
func (s *Status) Cause() error {
	st := s.Get()
	if st.Kind != StageFailed {
		return nil
	}
	return st.Cause
}

// Check invokes the wired callback if the stage is still Pending, Validated,
// or Running. A no-op once Failed or Finished. A callback error is wrapped
// in a CheckStatusException carrying the stage held immediately before the
// call, and the Status transitions to Failed with that exception as Cause.
func (s *Status) Check() {
	s.mu.Lock()
	previous := s.stage
	cb := s.callback
	s.mu.Unlock()

	switch previous.Kind {
	case StagePending, StageValidated, StageRunning:
	default:
		return
	}
	if cb == nil {
		return
	}

	if err := cb(); err != nil {
		wrapped := streamyerrors.NewCheckStatusException(s.owner, previous.Kind.String(), err)
		s.SetFailed(wrapped)
	}
}

// RevertStage restores the stage a CheckStatusException recorded as
// "previous", used by the Prompt recovery path to undo a failed status
// check.
func RevertStage(e *streamyerrors.CheckStatusException) Stage {
	switch e.PreviousStage {
	case StageValidated.String():
		return Stage{Kind: StageValidated}
	case StageRunning.String():
		return Stage{Kind: StageRunning}
	default:
		return Stage{Kind: StagePending}
	}
}
