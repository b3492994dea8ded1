package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/ductwork/ductwork/internal/graph"
	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// FailurePolicy selects how the Executor reacts when a step fails, either
// during validation or during a run phase.
type FailurePolicy int

const (
	// PolicyRaise unwinds execute() with the failing step's cause.
	PolicyRaise FailurePolicy = iota
	// PolicySkip records the failure and lets the step's consumers starve
	// out of readiness; the rest of the graph still runs to completion.
	PolicySkip
	// PolicyGracefulShutdown aborts new work but drains in-flight steps.
	PolicyGracefulShutdown
	// PolicyPrompt interactively asks the user to retry, mark-finished, or
	// abort.
	PolicyPrompt
)

func (p FailurePolicy) String() string {
	switch p {
	case PolicyRaise:
		return "raise"
	case PolicySkip:
		return "skip"
	case PolicyGracefulShutdown:
		return "graceful_shutdown"
	case PolicyPrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// PromptFunc is the interactive backend an Executor delegates to. stepName
// identifies the asking step; validChoices and def mirror UserInputStep's
// contract. Executors without an interactive terminal (e.g. running under a
// CI pipeline) should leave Prompt nil, which auto-accepts def.
type PromptFunc func(stepName, prompt string, validChoices []string, def string) (string, error)

// StatusLogger receives status-count lines after any pass that changed
// step state, and is intentionally minimal so this package does not import
// a concrete logging backend.
type StatusLogger interface {
	Info(msg string, kv ...any)
}

// Execution is the per-run bookkeeping record described in §3: the working
// set the executor is currently polling, the steps it has finished or
// failed, and the consumer map used to release newly-ready steps.
type Execution struct {
	workingSet map[Step]bool
	finished   map[Step]bool
	failed     map[Step]bool
	consumers  map[Step][]Step
	allRefs    []Step
	aborted    bool
	updated    bool
}

// Aborted reports whether the execution has been cancelled, cooperatively,
// by a failure policy or an interactive abort choice.
func (ex *Execution) Aborted() bool { return ex.aborted }

// AllSteps returns every step reachable from the executor's roots.
func (ex *Execution) AllSteps() []Step { return append([]Step(nil), ex.allRefs...) }

// Finished reports whether step has reached Finished bookkeeping in this
// execution (distinct from the step's own Status, which a Monitor or test
// may also inspect directly).
func (ex *Execution) Finished(step Step) bool { return ex.finished[step] }

// Failed reports whether step was recorded as failed in this execution.
func (ex *Execution) Failed(step Step) bool { return ex.failed[step] }

func (ex *Execution) snapshot() []Step {
	out := make([]Step, 0, len(ex.workingSet))
	for s := range ex.workingSet {
		out = append(out, s)
	}
	return out
}

// anchorStep is the synthetic root used to walk the reference graph from the
// Executor's own declared dependencies; it is never itself a member of any
// Execution bookkeeping.
type anchorStep struct {
	BaseStep
}

// Executor is the two-phase validate-then-run scheduler described in §4.5.
// The zero value is usable once Dependencies has at least been appended to
// via AddDependency.
type Executor struct {
	// OnFailure selects the failure policy applied to both phases.
	OnFailure FailurePolicy
	// DryRun, when true, skips the run phase after a successful validation.
	DryRun bool
	// ScanInterval sleeps this long between run-phase passes while the
	// working set is non-empty. Zero disables sleeping (busy-poll).
	ScanInterval time.Duration
	// Prompt is the interactive backend for PromptUser/PromptUserForStatus.
	// A nil Prompt auto-accepts the default choice.
	Prompt PromptFunc
	// Sleep is injectable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)
	// Logger receives status-count lines; nil disables logging.
	Logger StatusLogger

	roots  []Step
	exec   *Execution
	execMu sync.Mutex
}

// NewExecutor constructs an Executor over the given top-level dependencies.
func NewExecutor(deps ...Step) *Executor {
	return &Executor{roots: append([]Step(nil), deps...), Sleep: time.Sleep}
}

// AddDependency appends a top-level step the executor should run.
func (e *Executor) AddDependency(s Step) { e.roots = append(e.roots, s) }

// LastExecution returns the most recently built Execution (the run phase's,
// once Execute has progressed past validation), or nil before any call to
// Execute.
func (e *Executor) LastExecution() *Execution {
	e.execMu.Lock()
	defer e.execMu.Unlock()
	return e.exec
}

// ExecutionSnapshot is a point-in-time stage reading for one step, safe to
// read from a goroutine other than the one driving Execute.
type ExecutionSnapshot struct {
	Name  string
	Stage StageKind
}

// Snapshot reports every reachable step's current stage. Unlike reading
// Execution's bookkeeping maps directly, this is safe to call concurrently
// with a running Execute: the Execution pointer is read behind execMu, and
// each step's own Status guards its stage behind its own mutex. Intended
// for a live dashboard (§4.14) polling a run in progress.
func (e *Executor) Snapshot() []ExecutionSnapshot {
	e.execMu.Lock()
	ex := e.exec
	e.execMu.Unlock()
	if ex == nil {
		return nil
	}
	out := make([]ExecutionSnapshot, 0, len(ex.allRefs))
	for _, s := range ex.allRefs {
		out = append(out, ExecutionSnapshot{Name: s.RefName(), Stage: s.StepStatus().Get().Kind})
	}
	return out
}

// Generations returns the reference-generation waves (§4.3) of the
// executor's full step graph, for visualization only; Execute never
// consults this. Safe to call at any time, including concurrently with a
// running Execute, since it walks each step's fixed References() rather
// than the mutable Execution bookkeeping.
func (e *Executor) Generations() ([][]Step, error) {
	root := e.anchor()
	waves, err := graph.Generations(root)
	if err != nil {
		return nil, err
	}
	out := make([][]Step, 0, len(waves))
	for _, wave := range waves {
		steps := make([]Step, 0, len(wave))
		for _, n := range wave {
			if n == graph.Node(root) {
				continue
			}
			if s, ok := n.(Step); ok {
				steps = append(steps, s)
			}
		}
		if len(steps) > 0 {
			out = append(out, steps)
		}
	}
	return out, nil
}

func (e *Executor) anchor() Step {
	a := &anchorStep{BaseStep: NewBaseStep("__root__")}
	for _, d := range e.roots {
		a.AddDependency(d)
	}
	return a
}

func (e *Executor) buildExecution() (*Execution, error) {
	root := e.anchor()
	m, err := graph.ReverseMapping(root, true, false)
	if err != nil {
		return nil, err
	}

	ex := &Execution{
		workingSet: map[Step]bool{},
		finished:   map[Step]bool{},
		failed:     map[Step]bool{},
		consumers:  map[Step][]Step{},
		allRefs:    make([]Step, 0, len(m.AllRefs)),
	}

	for _, n := range m.AllRefs {
		s, ok := n.(Step)
		if !ok {
			continue
		}
		ex.allRefs = append(ex.allRefs, s)
		s.SetExecutor(e)
		s.StepStatus().SetCallback(s.CheckStatus)
	}

	for _, n := range m.Leaves {
		if n == graph.Node(root) {
			continue
		}
		if s, ok := n.(Step); ok {
			ex.workingSet[s] = true
		}
	}

	for target, consumerNodes := range m.Consumers {
		if target == graph.Node(root) {
			continue
		}
		ts, ok := target.(Step)
		if !ok {
			continue
		}
		cs := make([]Step, 0, len(consumerNodes))
		for _, c := range consumerNodes {
			if c == graph.Node(root) {
				continue
			}
			if sc, ok := c.(Step); ok {
				cs = append(cs, sc)
			}
		}
		ex.consumers[ts] = cs
	}

	return ex, nil
}

// Execute runs the validation phase, then (unless validation aborted or
// DryRun is set) the run phase, per §4.5.
func (e *Executor) Execute() error {
	if err := e.runPhase(true); err != nil {
		return err
	}
	if e.exec != nil && e.exec.aborted {
		// Preserves the documented open-question behavior: an execution
		// that aborted during validation skips the run phase outright, so
		// every unvalidated step is left exactly as validation left it.
		return nil
	}
	if e.DryRun {
		return nil
	}
	return e.runPhase(false)
}

func (e *Executor) runPhase(forValidation bool) error {
	ex, err := e.buildExecution()
	if err != nil {
		return err
	}
	e.execMu.Lock()
	e.exec = ex
	e.execMu.Unlock()

	for len(ex.workingSet) > 0 {
		ex.updated = false
		for _, step := range ex.snapshot() {
			if !ex.workingSet[step] {
				continue
			}
			var raiseErr error
			if forValidation {
				raiseErr = e.processValidation(ex, step)
			} else {
				raiseErr = e.processRun(ex, step)
			}
			if raiseErr != nil {
				return raiseErr
			}
		}
		if ex.updated && e.Logger != nil {
			e.Logger.Info("status", "finished", len(ex.finished), "failed", len(ex.failed), "working", len(ex.workingSet))
		}
		if !forValidation && e.ScanInterval > 0 && len(ex.workingSet) > 0 {
			sleep := e.Sleep
			if sleep == nil {
				sleep = time.Sleep
			}
			sleep(e.ScanInterval)
		}
	}
	return nil
}

func (e *Executor) processValidation(ex *Execution, step Step) error {
	st := step.StepStatus()
	if !ex.aborted && st.Pending() {
		if err := step.Validate(); err != nil {
			st.SetFailed(err)
			if raiseErr := e.handleFailure(ex, step, err); raiseErr != nil {
				return raiseErr
			}
		} else {
			st.SetValidated()
		}
	}
	e.completeStep(ex, step)
	return nil
}

func (e *Executor) processRun(ex *Execution, step Step) error {
	st := step.StepStatus()

	if ex.aborted {
		switch st.Get().Kind {
		case StagePending, StageValidated:
			delete(ex.workingSet, step)
			ex.updated = true
			return nil
		}
	}

	st.Check()
	stage := st.Get()
	switch stage.Kind {
	case StageRunning:
		return nil
	case StageFinished:
		e.completeStep(ex, step)
		return nil
	case StagePending:
		if err := step.Validate(); err != nil {
			st.SetFailed(err)
			return e.handleFailure(ex, step, err)
		}
		st.SetValidated()
		return nil
	case StageValidated:
		if err := step.Run(); err != nil {
			st.SetFailed(err)
			return e.handleFailure(ex, step, err)
		}
		st.SetRunning()
		return nil
	case StageFailed:
		return e.handleFailure(ex, step, stage.Cause)
	}
	return nil
}

// completeStep moves step into the execution's finished bookkeeping and
// releases any consumer whose order-affecting references are now entirely
// finished.
func (e *Executor) completeStep(ex *Execution, step Step) {
	delete(ex.workingSet, step)
	ex.finished[step] = true
	ex.updated = true

	for _, consumer := range ex.consumers[step] {
		if ex.finished[consumer] || ex.failed[consumer] || ex.workingSet[consumer] {
			continue
		}
		ready := true
		for _, dep := range graph.DirectReferences(consumer, true) {
			ds, ok := dep.(Step)
			if !ok {
				continue
			}
			if !ex.finished[ds] {
				ready = false
				break
			}
		}
		if ready {
			ex.workingSet[consumer] = true
		}
	}
}

func (e *Executor) handleFailure(ex *Execution, step Step, cause error) error {
	switch e.OnFailure {
	case PolicyRaise:
		ex.aborted = true
		ex.failed[step] = true
		delete(ex.workingSet, step)
		ex.updated = true
		return cause
	case PolicyGracefulShutdown:
		ex.aborted = true
		ex.failed[step] = true
		delete(ex.workingSet, step)
		ex.updated = true
		return nil
	case PolicyPrompt:
		msg := fmt.Sprintf("step %q failed: %v", step.RefName(), cause)
		return PromptUserForStatus(step, msg, cause)
	case PolicySkip:
		fallthrough
	default:
		ex.failed[step] = true
		delete(ex.workingSet, step)
		ex.updated = true
		return nil
	}
}

// PromptUser is the interactive entry point steps call through
// BaseStep.PromptUser. A prompt issued after the execution has already
// aborted is auto-declined with ExecutorAbortedError.
func (e *Executor) PromptUser(stepName, prompt string, validChoices []string, def string) (string, error) {
	if e.exec != nil && e.exec.aborted {
		return "", streamyerrors.NewExecutorAbortedError(stepName)
	}
	if e.Prompt == nil {
		return def, nil
	}
	return e.Prompt(stepName, prompt, validChoices, def)
}

func (e *Executor) abortWithCause(step Step, cause error) {
	if e.exec == nil {
		return
	}
	e.exec.aborted = true
	e.exec.failed[step] = true
	delete(e.exec.workingSet, step)
	e.exec.updated = true
}

func (e *Executor) requeue(step Step) {
	if e.exec == nil {
		return
	}
	e.exec.workingSet[step] = true
	e.exec.updated = true
}

func (e *Executor) markFinished(step Step) {
	if e.exec == nil {
		return
	}
	e.completeStep(e.exec, step)
}
