// Package compile implements the §4.10 compiler pipeline: a chain of
// Pipe-shaped compiler steps producing the document the Instantiator (§4.7)
// consumes, run as its own nested workflow.Executor exactly like the
// Instantiator runs its InstantiationSteps.
//
// Grounded on the teacher's apply/verify two-phase pipeline service and its
// template plugin's text/template rendering, generalized into a reusable
// compiler chain instead of a fixed two-step apply/verify flow.
package compile

import (
	"bytes"
	"reflect"
	"text/template"

	"github.com/ductwork/ductwork/internal/classpath"
	"github.com/ductwork/ductwork/internal/field"
	"github.com/ductwork/ductwork/internal/graph"
	"github.com/ductwork/ductwork/internal/steps"
	"github.com/ductwork/ductwork/internal/workflow"
	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// RegisterClasses registers this package's built-in compiler classes with
// the process-wide classpath cache under the "compilers" module.
func RegisterClasses() {
	classpath.RegisterModule("compilers", map[string]classpath.Class{
		"Identity": classpath.Class(workflow.Factory(buildIdentityCompiler)),
		"Template": classpath.Class(workflow.Factory(buildTemplateCompiler)),
	})
}

// IdentityCompiler passes its upstream Input's Output through unchanged; the
// simplest possible compiler, useful as a pipeline's sole stage when a
// document needs no transformation before instantiation.
type IdentityCompiler struct {
	workflow.BaseStep

	InputStep steps.Input
	output    []byte
}

func (c *IdentityCompiler) References() []graph.Edge {
	edges := c.BaseStep.References()
	if c.InputStep != nil {
		edges = append(edges, graph.Edge{Attr: "input_step", Target: c.InputStep, AffectsExecutionOrder: true})
	}
	return edges
}

func (c *IdentityCompiler) Validate() error {
	if c.InputStep == nil {
		return streamyerrors.NewValidationError("input_step", "identity compiler requires an input step", nil)
	}
	return nil
}

func (c *IdentityCompiler) Run() error {
	c.output = c.InputStep.Output()
	return nil
}

func (c *IdentityCompiler) CheckStatus() error {
	c.StepStatus().SetFinished()
	return nil
}

func (c *IdentityCompiler) Output() []byte { return c.output }

var identityCompilerFields = field.Table{
	{Name: "input_step", Optional: false, Type: reflect.TypeOf((*steps.Input)(nil)).Elem()},
}

func buildIdentityCompiler(name string, kwargs map[string]any) (workflow.Step, error) {
	resolved, err := field.Build(identityCompilerFields, nil, kwargs)
	if err != nil {
		return nil, err
	}
	input, ok := resolved["input_step"].(steps.Input)
	if !ok {
		return nil, streamyerrors.NewValidationError("input_step", "must resolve to a step exposing Output()", nil)
	}
	return &IdentityCompiler{BaseStep: workflow.NewBaseStep(name), InputStep: input}, nil
}

// TemplateCompiler renders its upstream Input's Output, interpreted as a
// Go text/template, against Vars as the data context (an empty map when
// Vars is nil), grounded on the
// teacher's internal/plugins/template/template.go rendering idiom. Used to
// substitute fixed placeholders (e.g. environment-independent constants)
// into a config document before it is parsed and instantiated.
type TemplateCompiler struct {
	workflow.BaseStep

	InputStep steps.Input
	Vars      map[string]any
	output    []byte
}

func (c *TemplateCompiler) References() []graph.Edge {
	edges := c.BaseStep.References()
	if c.InputStep != nil {
		edges = append(edges, graph.Edge{Attr: "input_step", Target: c.InputStep, AffectsExecutionOrder: true})
	}
	return edges
}

func (c *TemplateCompiler) Validate() error {
	if c.InputStep == nil {
		return streamyerrors.NewValidationError("input_step", "template compiler requires an input step", nil)
	}
	return nil
}

func (c *TemplateCompiler) Run() error {
	tmpl, err := template.New(c.RefName()).Parse(string(c.InputStep.Output()))
	if err != nil {
		return streamyerrors.NewExecutionError(c.RefName(), err)
	}
	var buf bytes.Buffer
	data := c.Vars
	if data == nil {
		data = map[string]any{}
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return streamyerrors.NewExecutionError(c.RefName(), err)
	}
	c.output = buf.Bytes()
	return nil
}

func (c *TemplateCompiler) CheckStatus() error {
	c.StepStatus().SetFinished()
	return nil
}

func (c *TemplateCompiler) Output() []byte { return c.output }

var templateCompilerFields = field.Table{
	{Name: "input_step", Optional: false, Type: reflect.TypeOf((*steps.Input)(nil)).Elem()},
	{Name: "vars", Optional: true, Default: map[string]any{}},
}

func buildTemplateCompiler(name string, kwargs map[string]any) (workflow.Step, error) {
	resolved, err := field.Build(templateCompilerFields, nil, kwargs)
	if err != nil {
		return nil, err
	}
	input, ok := resolved["input_step"].(steps.Input)
	if !ok {
		return nil, streamyerrors.NewValidationError("input_step", "must resolve to a step exposing Output()", nil)
	}
	vars, _ := resolved["vars"].(map[string]any)
	return &TemplateCompiler{BaseStep: workflow.NewBaseStep(name), InputStep: input, Vars: vars}, nil
}
