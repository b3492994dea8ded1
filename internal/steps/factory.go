package steps

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/ductwork/ductwork/internal/classpath"
	"github.com/ductwork/ductwork/internal/field"
	"github.com/ductwork/ductwork/internal/workflow"
	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// Factory aliases workflow.Factory: the shape every registered step class
// exposes to the Instantiator.
type Factory = workflow.Factory

var (
	stringType = reflect.TypeOf("")
	intType    = reflect.TypeOf(0)
)

// RegisterClasses registers every leaf step type in this package with the
// process-wide classpath cache (C8) under the "steps" module, so
// instantiate.Instantiator can resolve class paths like "steps.RunCommand".
func RegisterClasses() {
	classpath.RegisterModule("steps", map[string]classpath.Class{
		"BufferInput":   classpath.Class(Factory(buildBufferInput)),
		"FileInput":     classpath.Class(Factory(buildFileInput)),
		"StdinInput":    classpath.Class(Factory(buildStdinInput)),
		"FileOutput":    classpath.Class(Factory(buildFileOutput)),
		"StdoutOutput":  classpath.Class(Factory(buildStdoutOutput)),
		"UserInput":     classpath.Class(Factory(buildUserInput)),
		"RunCommand":    classpath.Class(Factory(buildRunCommand)),
		"RepoClone":     classpath.Class(Factory(buildRepoClone)),
		"JSONTransform": classpath.Class(Factory(buildJSONTransform)),
		"Wait":          classpath.Class(Factory(buildWait)),
	})

	// Each reference-bearing type's own ReferenceDecls is the single source
	// of truth; register it under the classpath name here rather than
	// duplicating the attribute table.
	workflow.RegisterReferenceDecls("steps.FileOutput", (&FileOutput{}).ReferenceDecls())
	workflow.RegisterReferenceDecls("steps.StdoutOutput", (&StdoutOutput{}).ReferenceDecls())
	workflow.RegisterReferenceDecls("steps.JSONTransform", (&JSONTransformStep{}).ReferenceDecls())
}

var bufferInputFields = field.Table{
	{Name: "data", Optional: false, Type: stringType},
}

func buildBufferInput(name string, kwargs map[string]any) (workflow.Step, error) {
	resolved, err := field.Build(bufferInputFields, nil, kwargs)
	if err != nil {
		return nil, err
	}
	return NewBufferInput(name, []byte(resolved["data"].(string))), nil
}

var fileInputFields = field.Table{
	{Name: "path", Optional: false, Type: stringType},
}

func buildFileInput(name string, kwargs map[string]any) (workflow.Step, error) {
	resolved, err := field.Build(fileInputFields, nil, kwargs)
	if err != nil {
		return nil, err
	}
	return NewFileInput(name, resolved["path"].(string)), nil
}

var emptyFields = field.Table{}

func buildStdinInput(name string, kwargs map[string]any) (workflow.Step, error) {
	if _, err := field.Build(emptyFields, nil, kwargs); err != nil {
		return nil, err
	}
	return NewStdinInput(name), nil
}

var fileOutputFields = field.Table{
	{Name: "input_step", Optional: false, Type: reflect.TypeOf((*Input)(nil)).Elem()},
	{Name: "path", Optional: false, Type: stringType},
	{Name: "mode", Optional: true, Default: 0, Type: intType},
}

func buildFileOutput(name string, kwargs map[string]any) (workflow.Step, error) {
	resolved, err := field.Build(fileOutputFields, nil, kwargs)
	if err != nil {
		return nil, err
	}
	input, ok := resolved["input_step"].(Input)
	if !ok {
		return nil, streamyerrors.NewValidationError("input_step", "must resolve to a step exposing Output()", nil)
	}
	out := NewFileOutput(name, input, resolved["path"].(string))
	if mode, _ := resolved["mode"].(int); mode != 0 {
		out.Mode = pathModeFromInt(mode)
	}
	return out, nil
}

var stdoutOutputFields = field.Table{
	{Name: "input_step", Optional: false, Type: reflect.TypeOf((*Input)(nil)).Elem()},
}

func buildStdoutOutput(name string, kwargs map[string]any) (workflow.Step, error) {
	resolved, err := field.Build(stdoutOutputFields, nil, kwargs)
	if err != nil {
		return nil, err
	}
	input, ok := resolved["input_step"].(Input)
	if !ok {
		return nil, streamyerrors.NewValidationError("input_step", "must resolve to a step exposing Output()", nil)
	}
	return NewStdoutOutput(name, input), nil
}

var userInputFields = field.Table{
	{Name: "prompt", Optional: false, Type: stringType},
	{Name: "default", Optional: true, Default: "", Type: stringType},
	{Name: "valid_choices", Optional: true, Default: []any{}, Type: stringType, List: true},
}

func buildUserInput(name string, kwargs map[string]any) (workflow.Step, error) {
	resolved, err := field.Build(userInputFields, nil, kwargs)
	if err != nil {
		return nil, err
	}
	var choices []string
	for _, c := range resolved["valid_choices"].([]any) {
		choices = append(choices, c.(string))
	}
	return NewUserInputStep(name, resolved["prompt"].(string), choices, resolved["default"].(string)), nil
}

var runCommandFields = field.Table{
	{Name: "command", Optional: false, Type: stringType},
	{Name: "shell", Optional: true, Default: "", Type: stringType},
	{Name: "work_dir", Optional: true, Default: "", Type: stringType},
	{Name: "cache_interval", Optional: true, Default: "", Type: stringType},
	{Name: "env", Optional: true},
}

func buildRunCommand(name string, kwargs map[string]any) (workflow.Step, error) {
	resolved, err := field.Build(runCommandFields, nil, kwargs)
	if err != nil {
		return nil, err
	}
	step := NewRunCommandStep(name, resolved["command"].(string))
	step.Shell = resolved["shell"].(string)
	step.WorkDir = resolved["work_dir"].(string)
	if raw := resolved["cache_interval"].(string); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, streamyerrors.NewValidationError("cache_interval", err.Error(), err)
		}
		step.CacheInterval = d
	}
	if env, ok := kwargs["env"].(map[string]any); ok {
		step.Env = map[string]string{}
		for k, v := range env {
			step.Env[k] = fmt.Sprintf("%v", v)
		}
	}
	return step, nil
}

var repoCloneFields = field.Table{
	{Name: "url", Optional: false, Type: stringType},
	{Name: "destination", Optional: false, Type: stringType},
	{Name: "branch", Optional: true, Default: "", Type: stringType},
	{Name: "depth", Optional: true, Default: 0, Type: intType},
}

func buildRepoClone(name string, kwargs map[string]any) (workflow.Step, error) {
	resolved, err := field.Build(repoCloneFields, nil, kwargs)
	if err != nil {
		return nil, err
	}
	step := NewRepoCloneStep(name, resolved["url"].(string), resolved["destination"].(string))
	step.Branch = resolved["branch"].(string)
	step.Depth = resolved["depth"].(int)
	return step, nil
}

var jsonTransformFields = field.Table{
	{Name: "input_step", Optional: false, Type: reflect.TypeOf((*Input)(nil)).Elem()},
	{Name: "query", Optional: true, Default: "", Type: stringType},
	{Name: "template", Optional: true, Default: "", Type: stringType},
}

func buildJSONTransform(name string, kwargs map[string]any) (workflow.Step, error) {
	resolved, err := field.Build(jsonTransformFields, nil, kwargs)
	if err != nil {
		return nil, err
	}
	input, ok := resolved["input_step"].(Input)
	if !ok {
		return nil, streamyerrors.NewValidationError("input_step", "must resolve to a step exposing Output()", nil)
	}
	step := &JSONTransformStep{
		BaseStep:  workflow.NewBaseStep(name),
		InputStep: input,
		Query:     resolved["query"].(string),
		Template:  resolved["template"].(string),
	}
	return step, nil
}

var waitFields = field.Table{
	{Name: "duration", Optional: false, Type: stringType},
}

func buildWait(name string, kwargs map[string]any) (workflow.Step, error) {
	resolved, err := field.Build(waitFields, nil, kwargs)
	if err != nil {
		return nil, err
	}
	d, err := time.ParseDuration(resolved["duration"].(string))
	if err != nil {
		return nil, streamyerrors.NewValidationError("duration", err.Error(), err)
	}
	return NewWaitStep(name, d), nil
}

func pathModeFromInt(mode int) os.FileMode {
	return os.FileMode(mode)
}
