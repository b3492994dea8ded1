package compile

import (
	"fmt"
	"sort"

	"github.com/ductwork/ductwork/internal/classpath"
	"github.com/ductwork/ductwork/internal/config"
	"github.com/ductwork/ductwork/internal/steps"
	"github.com/ductwork/ductwork/internal/workflow"
	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// Pipeline is the assembled compiler chain: one compilerStep per
// config.CompilerConfig entry, wired into a dependency graph by input_step
// references, ready to run as a nested workflow.Executor.
type Pipeline struct {
	namespaces []string
	compilers  map[string]*compilerStep
	order      []string
	outputs    map[string]steps.Input
	finalName  string
}

// BuildCompilerWorkflow assembles a Pipeline from a parsed compilers
// section, per §4.10: the list form chains consecutive entries implicitly
// (an entry with no explicit input_step takes the previous entry's output);
// the mapping form requires every input_step wired explicitly. Exactly one
// entry must carry RunFromHere as the pipeline's final output; this function
// applies no default (config.Parse marks a list's last entry when none is).
func BuildCompilerWorkflow(namespaces []string, compilers config.Compilers) (*Pipeline, error) {
	entries, err := orderedEntries(compilers)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, streamyerrors.NewValidationError("compilers", "pipeline has no compiler entries", nil)
	}

	p := &Pipeline{
		namespaces: append([]string(nil), namespaces...),
		compilers:  map[string]*compilerStep{},
		outputs:    map[string]steps.Input{},
	}

	for i, cc := range entries {
		inputName := cc.InputStep
		if inputName == "" && compilers.IsList && i > 0 {
			inputName = entries[i-1].Name
		}
		p.compilers[cc.Name] = &compilerStep{
			BaseStep:  workflow.NewBaseStep(cc.Name),
			pipeline:  p,
			class:     cc.Class,
			kwargs:    cc.Kwargs,
			inputName: inputName,
		}
		if cc.RunFromHere {
			if p.finalName != "" {
				return nil, streamyerrors.NewValidationError("compilers", fmt.Sprintf("both %q and %q are marked run_from_here", p.finalName, cc.Name), nil)
			}
			p.finalName = cc.Name
		}
		p.order = append(p.order, cc.Name)
	}

	if p.finalName == "" {
		return nil, streamyerrors.NewValidationError("compilers", "no compiler entry is marked run_from_here", nil)
	}

	for _, name := range p.order {
		step := p.compilers[name]
		if step.inputName == "" {
			continue
		}
		target, ok := p.compilers[step.inputName]
		if !ok {
			return nil, streamyerrors.NewValidationError(fmt.Sprintf("compilers.%s.input_step", name), fmt.Sprintf("reference to undefined compiler %q", step.inputName), nil)
		}
		step.AddDependency(target)
	}

	return p, nil
}

func orderedEntries(compilers config.Compilers) ([]config.CompilerConfig, error) {
	if compilers.IsList {
		return compilers.List, nil
	}
	names := make([]string, 0, len(compilers.Mapping))
	for name := range compilers.Mapping {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]config.CompilerConfig, 0, len(names))
	for _, name := range names {
		out = append(out, compilers.Mapping[name])
	}
	return out, nil
}

// Run executes the compiler chain via a nested workflow.Executor and
// returns the final compiler's output bytes, ready for config.Parse.
func (p *Pipeline) Run() ([]byte, error) {
	ex := workflow.NewExecutor()
	for _, name := range p.order {
		ex.AddDependency(p.compilers[name])
	}
	if err := ex.Execute(); err != nil {
		return nil, err
	}
	final, ok := p.outputs[p.finalName]
	if !ok {
		return nil, streamyerrors.NewExecutionError(p.finalName, fmt.Errorf("final compiler did not produce output"))
	}
	return final.Output(), nil
}

// compilerStep is one pipeline stage: resolves its class dynamically (C8),
// substitutes its input_step reference with the upstream compiler's already-
// built result, and records its own result on the pipeline for downstream
// stages or the final Run to consume.
type compilerStep struct {
	workflow.BaseStep

	pipeline  *Pipeline
	class     string
	kwargs    map[string]any
	inputName string

	factory workflow.Factory
}

func (s *compilerStep) Validate() error {
	_, class, err := classpath.Resolve(s.class, s.pipeline.namespaces)
	if err != nil {
		return err
	}
	factory, ok := class.(workflow.Factory)
	if !ok {
		return streamyerrors.NewPluginError(s.class, fmt.Errorf("resolved class is not a step factory"))
	}
	s.factory = factory
	return nil
}

func (s *compilerStep) Run() error {
	kwargs := make(map[string]any, len(s.kwargs)+1)
	for k, v := range s.kwargs {
		kwargs[k] = v
	}
	if s.inputName != "" {
		input, ok := s.pipeline.outputs[s.inputName]
		if !ok {
			return streamyerrors.NewExecutionError(s.RefName(), fmt.Errorf("upstream compiler %q has not produced output yet", s.inputName))
		}
		kwargs["input_step"] = input
	}

	built, err := s.factory(s.RefName(), kwargs)
	if err != nil {
		return streamyerrors.NewExecutionError(s.RefName(), err)
	}
	if err := built.Validate(); err != nil {
		return streamyerrors.NewExecutionError(s.RefName(), err)
	}
	if err := built.Run(); err != nil {
		return streamyerrors.NewExecutionError(s.RefName(), err)
	}
	input, ok := built.(steps.Input)
	if !ok {
		return streamyerrors.NewExecutionError(s.RefName(), fmt.Errorf("compiler class %q does not produce a step exposing Output()", s.class))
	}
	s.pipeline.outputs[s.RefName()] = input
	return nil
}

func (s *compilerStep) CheckStatus() error {
	if s.StepStatus().Running() {
		s.StepStatus().SetFinished()
	}
	return nil
}
