package main

import (
	"sync"

	"github.com/ductwork/ductwork/internal/compile"
	"github.com/ductwork/ductwork/internal/steps"
)

var registerOnce sync.Once

// registerBuiltinClasses populates the process-wide classpath cache (C8)
// with every built-in leaf step and compiler class, the way Streamy's
// plugin registry is populated once at process startup rather than per
// command. Every subcommand that resolves a class path calls this first.
func registerBuiltinClasses() {
	registerOnce.Do(func() {
		steps.RegisterClasses()
		compile.RegisterClasses()
	})
}
