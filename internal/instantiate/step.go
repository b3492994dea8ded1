package instantiate

import (
	"fmt"

	"github.com/ductwork/ductwork/internal/classpath"
	"github.com/ductwork/ductwork/internal/config"
	"github.com/ductwork/ductwork/internal/workflow"
	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// InstantiationStep is itself a workflow.Step: its Run constructs exactly
// one target step, substituting each reference-typed kwarg with the already-
// instantiated step it names (guaranteed built first by the dependency
// edges wireDependencies attached), then stores the result on the parent
// Instantiator under its own name.
type InstantiationStep struct {
	workflow.BaseStep

	parent       *Instantiator
	class        string
	kwargs       map[string]any
	dependencies []string

	classKey string
	factory  workflow.Factory
}

func newInstantiationStep(parent *Instantiator, name string, sc config.StepConfig) *InstantiationStep {
	return &InstantiationStep{
		BaseStep:     workflow.NewBaseStep(name),
		parent:       parent,
		class:        sc.Class,
		kwargs:       sc.Kwargs,
		dependencies: sc.Dependencies,
	}
}

// Validate resolves the target class, surfacing a ClassLookupError before
// any construction is attempted.
func (s *InstantiationStep) Validate() error {
	moduleName, class, err := classpath.Resolve(s.class, s.parent.namespaces)
	if err != nil {
		return err
	}
	factory, ok := class.(workflow.Factory)
	if !ok {
		return streamyerrors.NewPluginError(s.class, fmt.Errorf("resolved class is not a step factory"))
	}
	s.classKey = moduleName + "." + lastSegment(s.class)
	s.factory = factory
	return nil
}

// Run substitutes reference-typed kwargs with their instantiated targets and
// calls the resolved factory, recording the result on the parent.
func (s *InstantiationStep) Run() error {
	resolved := make(map[string]any, len(s.kwargs))
	for k, v := range s.kwargs {
		resolved[k] = v
	}

	for _, decl := range workflow.ReferenceDeclsFor(s.classKey) {
		raw, ok := s.kwargs[decl.Attr]
		if !ok {
			continue
		}
		if decl.List {
			items, _ := raw.([]any)
			targets := make([]any, 0, len(items))
			for _, item := range items {
				name, _ := item.(string)
				target, err := s.parent.resolvedStep(name)
				if err != nil {
					return streamyerrors.NewExecutionError(s.RefName(), err)
				}
				targets = append(targets, target)
			}
			resolved[decl.Attr] = targets
			continue
		}
		name, _ := raw.(string)
		target, err := s.parent.resolvedStep(name)
		if err != nil {
			return streamyerrors.NewExecutionError(s.RefName(), err)
		}
		resolved[decl.Attr] = target
	}

	step, err := s.factory(s.RefName(), resolved)
	if err != nil {
		return streamyerrors.NewExecutionError(s.RefName(), err)
	}

	for _, depName := range s.dependencies {
		dep, err := s.parent.resolvedStep(depName)
		if err != nil {
			return streamyerrors.NewExecutionError(s.RefName(), err)
		}
		step.AddDependency(dep)
	}

	s.parent.steps[s.RefName()] = step
	return nil
}

// CheckStatus is a one-shot construction: it finishes as soon as Run has
// run, with no asynchronous completion to poll for.
func (s *InstantiationStep) CheckStatus() error {
	if s.StepStatus().Running() {
		s.StepStatus().SetFinished()
	}
	return nil
}

// resolvedStep looks up a step a reference attribute named, failing if the
// referenced InstantiationStep has not produced a result yet — which would
// indicate a dependency-wiring bug rather than a configuration error, since
// wireDependencies guarantees the referenced step runs first.
func (in *Instantiator) resolvedStep(name string) (workflow.Step, error) {
	step, ok := in.steps[name]
	if !ok {
		return nil, fmt.Errorf("step %q has not been instantiated yet", name)
	}
	return step, nil
}
