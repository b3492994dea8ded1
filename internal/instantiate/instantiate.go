// Package instantiate implements the §4.7 Instantiator: turning a parsed
// steps mapping (internal/config.Document.Steps) into live workflow.Step
// instances, resolving each entry's class dynamically (internal/classpath)
// and its reference-typed construction attributes against sibling entries —
// including anonymous inline step configs, which are lifted into synthetic
// named entries before construction.
//
// Grounded on the teacher's internal/plugin registry construction flow
// (resolve class, validate config, build instance) generalized with a
// dependency pass so reference-typed attributes resolve to already-built
// steps, run as a nested workflow.Executor exactly like any other step
// graph (reusing §4.3's cycle and depth guards for free).
package instantiate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ductwork/ductwork/internal/classpath"
	"github.com/ductwork/ductwork/internal/config"
	"github.com/ductwork/ductwork/internal/workflow"
	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// Instantiator builds a named set of workflow.Step instances from a steps
// mapping. It is itself driven by a nested workflow.Executor over one
// InstantiationStep per (possibly synthesized) entry, so construction order
// follows the same dependency-resolution rules as any other workflow.
type Instantiator struct {
	namespaces []string
	work       map[string]config.StepConfig
	order      []string
	instSteps  map[string]*InstantiationStep
	steps      map[string]workflow.Step
}

// New builds an Instantiator over configs, lifting any anonymous inline step
// configs found in reference-typed attributes into synthetic named entries
// and wiring the construction-order dependency graph. It does not run
// anything; call Instantiate to do that.
func New(namespaces []string, configs map[string]config.StepConfig) (*Instantiator, error) {
	in := &Instantiator{
		namespaces: append([]string(nil), namespaces...),
		work:       cloneConfigs(configs),
		instSteps:  map[string]*InstantiationStep{},
		steps:      map[string]workflow.Step{},
	}

	if err := in.lift(); err != nil {
		return nil, err
	}
	if err := in.buildSteps(); err != nil {
		return nil, err
	}
	if err := in.wireDependencies(); err != nil {
		return nil, err
	}
	return in, nil
}

// Instantiate runs the nested executor over every InstantiationStep and
// returns the resulting named steps, keyed by their final (possibly
// synthesized) names.
func (in *Instantiator) Instantiate() (map[string]workflow.Step, error) {
	ex := workflow.NewExecutor()
	for _, name := range in.order {
		ex.AddDependency(in.instSteps[name])
	}
	if err := ex.Execute(); err != nil {
		return nil, err
	}
	return in.steps, nil
}

func cloneConfigs(in map[string]config.StepConfig) map[string]config.StepConfig {
	out := make(map[string]config.StepConfig, len(in))
	for name, sc := range in {
		kwargs := make(map[string]any, len(sc.Kwargs))
		for k, v := range sc.Kwargs {
			kwargs[k] = v
		}
		sc.Kwargs = kwargs
		sc.Dependencies = append([]string(nil), sc.Dependencies...)
		out[name] = sc
	}
	return out
}

// lift walks every entry (including entries synthesized by earlier lifts)
// and replaces each inline anonymous step config found in a reference-typed
// attribute with a synthesized name, recording the synthesized entry in
// in.work. Processing order is deterministic (sorted queue) so synthesized
// names are stable across runs of the same configuration.
func (in *Instantiator) lift() error {
	queue := in.sortedNames()
	seen := map[string]bool{}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true

		sc := in.work[name]
		_, decls, err := in.referenceDecls(sc.Class)
		if err != nil {
			return err
		}

		changed := false
		for _, decl := range decls {
			raw, ok := sc.Kwargs[decl.Attr]
			if !ok {
				continue
			}

			if decl.List {
				rawList, ok := raw.([]any)
				if !ok {
					return streamyerrors.NewValidationError(fmt.Sprintf("%s.%s", name, decl.Attr), "must be a list of step names or inline step configs", nil)
				}
				names := make([]any, 0, len(rawList))
				for idx, item := range rawList {
					if s, ok := item.(string); ok {
						names = append(names, s)
						continue
					}
					childName, err := in.liftInline(name, decl.Attr, fmt.Sprintf("%d", idx), item, &queue)
					if err != nil {
						return err
					}
					names = append(names, childName)
				}
				sc.Kwargs[decl.Attr] = names
				changed = true
				continue
			}

			if _, ok := raw.(string); ok {
				continue
			}
			childName, err := in.liftInline(name, decl.Attr, "", raw, &queue)
			if err != nil {
				return err
			}
			sc.Kwargs[decl.Attr] = childName
			changed = true
		}

		if changed {
			in.work[name] = sc
		}
	}
	return nil
}

// liftInline parses an inline mapping as a StepConfig, assigns it the
// deterministic synthesized name "<owner>.<attr>[.<index>].reference", and
// records it in in.work. Collision with an existing entry name is fatal.
func (in *Instantiator) liftInline(owner, attr, index string, raw any, queue *[]string) (string, error) {
	m, ok := config.AsMap(raw)
	if !ok {
		return "", streamyerrors.NewValidationError(fmt.Sprintf("%s.%s", owner, attr), "must be a step name or an inline step config", nil)
	}

	childName := fmt.Sprintf("%s.%s.reference", owner, attr)
	if index != "" {
		childName = fmt.Sprintf("%s.%s.%s.reference", owner, attr, index)
	}
	if _, exists := in.work[childName]; exists {
		return "", streamyerrors.NewValidationError(childName, "synthesized name for an inline step config collides with an existing step name", nil)
	}

	childCfg, err := config.ParseStepConfig(childName, m)
	if err != nil {
		return "", err
	}
	in.work[childName] = childCfg
	*queue = append(*queue, childName)
	return childName, nil
}

// buildSteps constructs one InstantiationStep skeleton per entry in in.work,
// without yet resolving reference-typed attributes (wireDependencies does
// that, once every entry — including lifted ones — exists).
func (in *Instantiator) buildSteps() error {
	for _, name := range in.sortedNames() {
		sc := in.work[name]
		in.instSteps[name] = newInstantiationStep(in, name, sc)
	}
	in.order = in.sortedNames()
	return nil
}

// wireDependencies resolves every named reference (explicit dependencies
// and reference-typed construction attributes) against in.instSteps,
// failing fatally on a dangling name, and records the resulting ordering
// edges via AddDependency so the nested executor runs referenced steps
// before their referencers.
func (in *Instantiator) wireDependencies() error {
	for _, name := range in.order {
		sc := in.work[name]
		step := in.instSteps[name]

		for _, depName := range sc.Dependencies {
			target, ok := in.instSteps[depName]
			if !ok {
				return streamyerrors.NewValidationError(fmt.Sprintf("%s.dependencies", name), fmt.Sprintf("reference to undefined step %q", depName), nil)
			}
			step.AddDependency(target)
		}

		_, decls, err := in.referenceDecls(sc.Class)
		if err != nil {
			return err
		}
		for _, decl := range decls {
			raw, ok := sc.Kwargs[decl.Attr]
			if !ok {
				continue
			}
			if decl.List {
				items, _ := raw.([]any)
				for _, item := range items {
					refName, _ := item.(string)
					target, ok := in.instSteps[refName]
					if !ok {
						return streamyerrors.NewValidationError(fmt.Sprintf("%s.%s", name, decl.Attr), fmt.Sprintf("reference to undefined step %q", refName), nil)
					}
					step.AddDependency(target)
				}
				continue
			}
			refName, _ := raw.(string)
			target, ok := in.instSteps[refName]
			if !ok {
				return streamyerrors.NewValidationError(fmt.Sprintf("%s.%s", name, decl.Attr), fmt.Sprintf("reference to undefined step %q", refName), nil)
			}
			step.AddDependency(target)
		}
	}
	return nil
}

// referenceDecls resolves classPath against the Instantiator's namespaces
// and returns the resolved class key (the form reference decls and
// factories are registered under) plus its declared reference attributes.
func (in *Instantiator) referenceDecls(classPath string) (string, []workflow.ReferenceDecl, error) {
	moduleName, _, err := classpath.Resolve(classPath, in.namespaces)
	if err != nil {
		return "", nil, err
	}
	classKey := moduleName + "." + lastSegment(classPath)
	return classKey, workflow.ReferenceDeclsFor(classKey), nil
}

func lastSegment(classPath string) string {
	parts := strings.Split(classPath, ".")
	return parts[len(parts)-1]
}

func (in *Instantiator) sortedNames() []string {
	names := make([]string, 0, len(in.work))
	for name := range in.work {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
