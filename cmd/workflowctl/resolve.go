package main

import (
	"github.com/ductwork/ductwork/internal/compile"
	"github.com/ductwork/ductwork/internal/config"
)

// resolveSteps loads a configuration document and, if it declares a
// compiler pipeline (§4.10), runs that pipeline and re-parses its output as
// the document the Instantiator actually consumes. Shared by run and graph
// so both see the exact same resolved step mapping.
func resolveSteps(cfgPath string) ([]string, map[string]config.StepConfig, error) {
	doc, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	namespaces := doc.Namespaces
	stepsMap := doc.Steps

	if len(doc.Compilers.List) > 0 || len(doc.Compilers.Mapping) > 0 {
		pipeline, err := compile.BuildCompilerWorkflow(namespaces, doc.Compilers)
		if err != nil {
			return nil, nil, err
		}
		out, err := pipeline.Run()
		if err != nil {
			return nil, nil, err
		}
		compiled, err := config.Parse(cfgPath, out)
		if err != nil {
			return nil, nil, err
		}
		stepsMap = compiled.Steps
		if len(compiled.Namespaces) > 0 {
			namespaces = compiled.Namespaces
		}
	}

	return namespaces, stepsMap, nil
}
