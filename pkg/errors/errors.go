package errors

import (
	"fmt"
	"strings"
)

// ParseError represents a configuration document parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures field-level construction or configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure while executing a step.
type ExecutionError struct {
	StepID string
	Err    error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(stepID string, err error) error {
	return &ExecutionError{StepID: stepID, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.StepID != "" {
		return fmt.Sprintf("execution error on step %s: %v", e.StepID, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PluginError indicates issues resolving or constructing a dynamically looked-up class.
type PluginError struct {
	Plugin  string
	Message string
	Err     error
}

// NewPluginError constructs a PluginError for the given plugin/class name.
func NewPluginError(plugin string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &PluginError{Plugin: plugin, Message: message, Err: err}
}

func (e *PluginError) Error() string {
	if e == nil {
		return ""
	}
	if e.Plugin != "" {
		return fmt.Sprintf("plugin error [%s]: %s", e.Plugin, e.Message)
	}
	return fmt.Sprintf("plugin error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *PluginError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CircularReferenceError reports a cycle discovered while walking a reference graph.
// Path lists the node names along the cycle in traversal order, closed on itself
// (Path[0] == Path[len(Path)-1]); Attrs lists the attribute name traversed between
// consecutive nodes in Path.
type CircularReferenceError struct {
	Path  []string
	Attrs []string
}

// NewCircularReferenceError constructs a CircularReferenceError from a closed path.
func NewCircularReferenceError(path, attrs []string) error {
	return &CircularReferenceError{Path: append([]string(nil), path...), Attrs: append([]string(nil), attrs...)}
}

func (e *CircularReferenceError) Error() string {
	if e == nil || len(e.Path) == 0 {
		return "circular reference detected"
	}

	var b strings.Builder
	b.WriteString("circular reference detected: ")
	for i, node := range e.Path {
		if i > 0 {
			if i-1 < len(e.Attrs) && e.Attrs[i-1] != "" {
				fmt.Fprintf(&b, " -(%s)-> ", e.Attrs[i-1])
			} else {
				b.WriteString(" -> ")
			}
		}
		b.WriteString(node)
	}
	return b.String()
}

// ExceedsMaximumDepthError reports that a reference chain exceeded the configured
// maximum depth; this guards against stack exhaustion on pathological graphs.
type ExceedsMaximumDepthError struct {
	Node     string
	MaxDepth int
}

// NewExceedsMaximumDepthError constructs an ExceedsMaximumDepthError.
func NewExceedsMaximumDepthError(node string, maxDepth int) error {
	return &ExceedsMaximumDepthError{Node: node, MaxDepth: maxDepth}
}

func (e *ExceedsMaximumDepthError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("maximum recursion depth exceeded at %q (limit %d): guards against stack exhaustion", e.Node, e.MaxDepth)
}

// CheckStatusException wraps an error raised from a step's status-check callback,
// recording the stage the step held immediately before the check ran so a retry
// path can restore it via workflow.RevertStage.
type CheckStatusException struct {
	StepName      string
	PreviousStage string
	Err           error
}

// NewCheckStatusException constructs a CheckStatusException.
func NewCheckStatusException(stepName, previousStage string, err error) *CheckStatusException {
	return &CheckStatusException{StepName: stepName, PreviousStage: previousStage, Err: err}
}

func (e *CheckStatusException) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("status check failed for %q (was %s): %v", e.StepName, e.PreviousStage, e.Err)
}

// Unwrap exposes the underlying check-status failure.
func (e *CheckStatusException) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutorAbortedError is raised when interactive recovery is attempted on an
// execution that has already been aborted.
type ExecutorAbortedError struct {
	StepName string
}

// NewExecutorAbortedError constructs an ExecutorAbortedError.
func NewExecutorAbortedError(stepName string) error {
	return &ExecutorAbortedError{StepName: stepName}
}

func (e *ExecutorAbortedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("execution already aborted: prompt for %q auto-declined", e.StepName)
}

// ClassLookupError reports a dynamic class-path resolution failure.
type ClassLookupError struct {
	ClassPath  string
	Namespaces []string
}

// NewClassLookupError constructs a ClassLookupError.
func NewClassLookupError(classPath string, namespaces []string) error {
	return &ClassLookupError{ClassPath: classPath, Namespaces: append([]string(nil), namespaces...)}
}

func (e *ClassLookupError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Namespaces) == 0 {
		return fmt.Sprintf("class lookup error: %q not found", e.ClassPath)
	}
	return fmt.Sprintf("class lookup error: %q not found in namespaces %s", e.ClassPath, strings.Join(e.Namespaces, ", "))
}
