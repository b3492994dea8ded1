package workflow

import (
	"fmt"
	"sync"

	"github.com/ductwork/ductwork/internal/graph"
	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// Step defines the contract every unit of work in a workflow satisfies.
// Concrete step types embed BaseStep for the common machinery (status,
// dependency bookkeeping, prompting) and override Validate, Run, and
// CheckStatus with their own behavior; BaseStep's defaults are no-ops
// suitable for steps with nothing to validate or poll.
type Step interface {
	graph.Node

	// Validate checks unsatisfiable preconditions before the step is allowed
	// to run. The default marks the step Validated without further checks.
	Validate() error
	// Run begins or performs the step's work. Long-running steps start work
	// here and return immediately; completion is detected by CheckStatus.
	Run() error
	// CheckStatus is wired as the step's Status callback, invoked by
	// Status.Check between executor iterations.
	CheckStatus() error

	StepStatus() *Status
	Dependencies() []Step
	AddDependency(Step)

	SetExecutor(*Executor)
	GetExecutor() *Executor
}

// BaseStep supplies the machinery common to every step: identity, the
// implicit dependencies reference-list, a Status, an executor back-pointer,
// and the prompt plumbing described in §4.4. Embed it in a concrete step
// type and override Validate/Run/CheckStatus as needed.
type BaseStep struct {
	Name string

	deps     []Step
	status   *Status
	executor *Executor
}

// NewBaseStep constructs a BaseStep with a freshly wired Status. name
// defaults to "step" if empty; concrete constructors should always supply
// one.
func NewBaseStep(name string) BaseStep {
	if name == "" {
		name = "step"
	}
	b := BaseStep{Name: name}
	b.status = NewStatus(name)
	return b
}

// RefName satisfies graph.Node.
func (b *BaseStep) RefName() string { return b.Name }

// References satisfies graph.Node, exposing the implicit dependencies
// reference-list as order-affecting edges. Concrete step types with
// additional reference-typed fields should override References to append
// their own edges to this slice.
func (b *BaseStep) References() []graph.Edge {
	edges := make([]graph.Edge, 0, len(b.deps))
	for _, d := range b.deps {
		edges = append(edges, graph.Edge{Attr: "dependencies", Target: d, AffectsExecutionOrder: true})
	}
	return edges
}

// Dependencies returns the step's declared dependency list.
func (b *BaseStep) Dependencies() []Step { return append([]Step(nil), b.deps...) }

// AddDependency appends s to the implicit dependencies reference-list.
func (b *BaseStep) AddDependency(s Step) { b.deps = append(b.deps, s) }

// StepStatus returns the step's Status.
func (b *BaseStep) StepStatus() *Status { return b.status }

// SetExecutor attaches the step to an executor, recording the back-pointer
// used by prompt plumbing. Called when the step becomes reachable from a
// live Executor.
func (b *BaseStep) SetExecutor(e *Executor) { b.executor = e }

// GetExecutor returns the attached executor, or nil if unattached.
func (b *BaseStep) GetExecutor() *Executor { return b.executor }

// Validate is the default no-op precondition check: mark validated.
func (b *BaseStep) Validate() error { return nil }

// Run is the default no-op: the step has no work of its own (e.g. Monitor,
// which does all of its work in CheckStatus).
func (b *BaseStep) Run() error { return nil }

// CheckStatus is the default no-op poll.
func (b *BaseStep) CheckStatus() error { return nil }

// PromptUser delegates to the attached executor's interactive prompt,
// requiring an attached executor. validChoices and def follow the same
// auto-detection rules as UserInputStep (see internal/steps).
func (b *BaseStep) PromptUser(prompt string, validChoices []string, def string) (string, error) {
	if b.executor == nil {
		return "", fmt.Errorf("step %q has no attached executor to prompt through", b.Name)
	}
	return b.executor.PromptUser(b.Name, prompt, validChoices, def)
}

// Factory is the shape every registered step class exposes to the
// Instantiator: build one step instance from its name and resolved keyword
// arguments, with reference-typed entries already substituted for the
// actual Step they name.
type Factory func(name string, kwargs map[string]any) (Step, error)

// ReferenceDecl declares one reference-typed construction attribute of a
// step type, for the Instantiator (§4.7) to discover statically: each
// registered class carries its reference attribute table (see
// RegisterReferenceDecls, called from steps.RegisterClasses) the way a
// Field table (internal/field) declares a
// type's validated plain attributes.
type ReferenceDecl struct {
	// Attr is the config key naming this attribute.
	Attr string
	// List marks the attribute as a ReferenceList (a named sequence of
	// references) rather than a single scalar Reference.
	List bool
	// Optional permits the attribute to be absent from the config.
	Optional bool
}

var (
	refDeclsMu sync.Mutex
	refDecls   = map[string][]ReferenceDecl{}
)

// RegisterReferenceDecls records the reference attribute table for a
// resolved class path (e.g. "steps.FileOutput", the moduleName+"."+className
// classpath.Resolve returns), so the Instantiator can discover a class's
// reference-typed construction attributes before any instance of it exists.
// Call once per class, typically alongside its classpath registration.
func RegisterReferenceDecls(classKey string, decls []ReferenceDecl) {
	refDeclsMu.Lock()
	defer refDeclsMu.Unlock()
	refDecls[classKey] = append([]ReferenceDecl(nil), decls...)
}

// ReferenceDeclsFor returns the reference attribute table registered for
// classKey, or nil if the class declared none (every construction attribute
// is a plain value).
func ReferenceDeclsFor(classKey string) []ReferenceDecl {
	refDeclsMu.Lock()
	defer refDeclsMu.Unlock()
	return append([]ReferenceDecl(nil), refDecls[classKey]...)
}

// recoveryChoice is the fixed three-way menu PromptUserForStatus presents.
type recoveryChoice string

const (
	recoveryRetry        recoveryChoice = "r"
	recoveryMarkFinished recoveryChoice = "f"
	recoveryAbort        recoveryChoice = "a"
)

// PromptUserForStatus implements the §4.4 recovery prompt: presents
// abort/mark-finished/retry, and applies the user's choice to the step and
// (for abort) the owning execution. self is the concrete Step so the retry
// path can re-evaluate it under its own type; cause is the failure that
// triggered the prompt.
func PromptUserForStatus(self Step, message string, cause error) error {
	b := self.StepStatus()
	exec := self.GetExecutor()
	if exec == nil {
		return fmt.Errorf("step %q has no attached executor to prompt through", self.RefName())
	}

	choice, err := exec.PromptUser(self.RefName(), message, []string{string(recoveryRetry), string(recoveryMarkFinished), string(recoveryAbort)}, string(recoveryAbort))
	if err != nil {
		exec.abortWithCause(self, err)
		return err
	}

	switch recoveryChoice(choice) {
	case recoveryRetry:
		if cse, ok := cause.(*streamyerrors.CheckStatusException); ok {
			b.setStage(RevertStage(cse))
		} else {
			b.SetPending()
		}
		exec.requeue(self)
		return nil
	case recoveryMarkFinished:
		b.SetFinished()
		exec.markFinished(self)
		return nil
	case recoveryAbort:
		if !b.Failed() {
			b.SetFailed(cause)
		}
		exec.abortWithCause(self, cause)
		return nil
	default:
		return fmt.Errorf("unexpected recovery choice %q", choice)
	}
}
