// Package steps implements the concrete leaf steps §6 describes as external
// collaborators: Input/Output/Pipe/UserInput/RunCommand plus the domain
// extensions SPEC_FULL.md adds (RepoClone, JSONTransform, Wait), grounded on
// the teacher's internal/plugins/{command,repo,template,copy,lineinfile}.
package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"text/template"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/ductwork/ductwork/internal/graph"
	"github.com/ductwork/ductwork/internal/workflow"
	"github.com/ductwork/ductwork/pkg/diff"
	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// Diffable is implemented by steps that can report a unified diff against
// the previous revision of whatever they wrote, for workflowctl run's
// post-execution summary.
type Diffable interface {
	LastDiff() string
}

// Input is a step that exposes its result as Output once Finished.
type Input interface {
	workflow.Step
	Output() []byte
}

// Pipe is both an Input and something wired to an upstream Input, per §6.
type Pipe interface {
	Input
}

// ---- BufferInput -----------------------------------------------------

// BufferInput wraps an in-memory buffer supplied at construction, used
// heavily by tests and by the compiler pipeline to chain in-memory
// documents without touching disk.
type BufferInput struct {
	workflow.BaseStep

	data   []byte
	output []byte
}

// NewBufferInput constructs a BufferInput over data.
func NewBufferInput(name string, data []byte) *BufferInput {
	return &BufferInput{BaseStep: workflow.NewBaseStep(name), data: data}
}

func (b *BufferInput) Run() error {
	b.output = b.data
	return nil
}

func (b *BufferInput) CheckStatus() error {
	if b.StepStatus().Running() {
		b.StepStatus().SetFinished()
	}
	return nil
}

// Output returns the buffered content once Run has completed.
func (b *BufferInput) Output() []byte { return b.output }

// ---- FileInput ---------------------------------------------------------

// FileInput reads a file path into memory, grounded on the teacher's
// copy/lineinfile plugins' os.ReadFile idiom.
type FileInput struct {
	workflow.BaseStep

	Path   string
	output []byte
}

// NewFileInput constructs a FileInput over path.
func NewFileInput(name, path string) *FileInput {
	return &FileInput{BaseStep: workflow.NewBaseStep(name), Path: path}
}

func (f *FileInput) Validate() error {
	if f.Path == "" {
		return streamyerrors.NewValidationError("path", "file input requires a path", nil)
	}
	if _, err := os.Stat(f.Path); err != nil {
		return streamyerrors.NewValidationError("path", fmt.Sprintf("%q is not accessible: %v", f.Path, err), err)
	}
	return nil
}

func (f *FileInput) Run() error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return streamyerrors.NewExecutionError(f.RefName(), err)
	}
	f.output = data
	return nil
}

func (f *FileInput) CheckStatus() error {
	if f.StepStatus().Running() {
		f.StepStatus().SetFinished()
	}
	return nil
}

func (f *FileInput) Output() []byte { return f.output }

// ---- StdinInput ----------------------------------------------------------

// StdinInput reads os.Stdin once.
type StdinInput struct {
	workflow.BaseStep

	Reader io.Reader // defaults to os.Stdin; overridable for tests
	output []byte
}

// NewStdinInput constructs a StdinInput reading from os.Stdin.
func NewStdinInput(name string) *StdinInput {
	return &StdinInput{BaseStep: workflow.NewBaseStep(name), Reader: os.Stdin}
}

func (s *StdinInput) Run() error {
	data, err := io.ReadAll(s.Reader)
	if err != nil {
		return streamyerrors.NewExecutionError(s.RefName(), err)
	}
	s.output = data
	return nil
}

func (s *StdinInput) CheckStatus() error {
	if s.StepStatus().Running() {
		s.StepStatus().SetFinished()
	}
	return nil
}

func (s *StdinInput) Output() []byte { return s.output }

// ---- FileOutput ----------------------------------------------------------

// FileOutput writes an upstream Input's Output to a file path on finishing.
type FileOutput struct {
	workflow.BaseStep

	InputStep Input
	Path      string
	Mode      os.FileMode

	lastDiff string
}

// NewFileOutput constructs a FileOutput writing input's output to path.
func NewFileOutput(name string, input Input, path string) *FileOutput {
	mode := os.FileMode(0o644)
	return &FileOutput{BaseStep: workflow.NewBaseStep(name), InputStep: input, Path: path, Mode: mode}
}

func (o *FileOutput) References() []graph.Edge {
	edges := o.BaseStep.References()
	if o.InputStep != nil {
		edges = append(edges, graph.Edge{Attr: "input_step", Target: o.InputStep, AffectsExecutionOrder: true})
	}
	return edges
}

// ReferenceDecls mirrors the static table registered for this class via
// workflow.RegisterReferenceDecls in factory.go, kept here too as the
// type's own self-description.
func (o *FileOutput) ReferenceDecls() []workflow.ReferenceDecl {
	return []workflow.ReferenceDecl{{Attr: "input_step"}}
}

func (o *FileOutput) Validate() error {
	if o.InputStep == nil {
		return streamyerrors.NewValidationError("input_step", "file output requires an input step", nil)
	}
	if o.Path == "" {
		return streamyerrors.NewValidationError("path", "file output requires a path", nil)
	}
	return nil
}

// Run overwrites Path with the upstream Input's Output. If Path already
// exists with different content, the previous revision's unified diff
// against the new content is captured for LastDiff before the overwrite,
// grounded on the teacher's copy plugin's drift-diff check
// (internal/plugins/copy/copy.go's GenerateUnifiedDiff call before
// reporting a content mismatch).
func (o *FileOutput) Run() error {
	mode := o.Mode
	if mode == 0 {
		mode = 0o644
	}
	newContent := o.InputStep.Output()
	if existing, err := os.ReadFile(o.Path); err == nil {
		o.lastDiff = diff.GenerateUnifiedDiff(existing, newContent, o.Path, o.Path)
	}
	if err := os.WriteFile(o.Path, newContent, mode); err != nil {
		return streamyerrors.NewExecutionError(o.RefName(), err)
	}
	return nil
}

func (o *FileOutput) CheckStatus() error {
	if o.StepStatus().Running() {
		o.StepStatus().SetFinished()
	}
	return nil
}

// LastDiff returns the unified diff between the file's previous revision
// and what Run wrote, empty if the file didn't previously exist or its
// content was unchanged. Satisfies the Diffable interface consumed by
// workflowctl run's post-execution summary.
func (o *FileOutput) LastDiff() string { return o.lastDiff }

// ---- StdoutOutput ----------------------------------------------------------

// StdoutOutput writes an upstream Input's Output to os.Stdout (or Writer, in
// tests) on finishing.
type StdoutOutput struct {
	workflow.BaseStep

	InputStep Input
	Writer    io.Writer
}

// NewStdoutOutput constructs a StdoutOutput over input, writing to os.Stdout.
func NewStdoutOutput(name string, input Input) *StdoutOutput {
	return &StdoutOutput{BaseStep: workflow.NewBaseStep(name), InputStep: input, Writer: os.Stdout}
}

func (o *StdoutOutput) References() []graph.Edge {
	edges := o.BaseStep.References()
	if o.InputStep != nil {
		edges = append(edges, graph.Edge{Attr: "input_step", Target: o.InputStep, AffectsExecutionOrder: true})
	}
	return edges
}

// ReferenceDecls mirrors the static table registered for this class via
// workflow.RegisterReferenceDecls in factory.go, kept here too as the
// type's own self-description.
func (o *StdoutOutput) ReferenceDecls() []workflow.ReferenceDecl {
	return []workflow.ReferenceDecl{{Attr: "input_step"}}
}

func (o *StdoutOutput) Validate() error {
	if o.InputStep == nil {
		return streamyerrors.NewValidationError("input_step", "stdout output requires an input step", nil)
	}
	return nil
}

func (o *StdoutOutput) Run() error {
	w := o.Writer
	if w == nil {
		w = os.Stdout
	}
	if _, err := w.Write(o.InputStep.Output()); err != nil {
		return streamyerrors.NewExecutionError(o.RefName(), err)
	}
	return nil
}

func (o *StdoutOutput) CheckStatus() error {
	if o.StepStatus().Running() {
		o.StepStatus().SetFinished()
	}
	return nil
}

// ---- UserInputStep ----------------------------------------------------

var choiceGroupPattern = regexp.MustCompile(`\(([^)]+)\)`)

// UserInputStep presents a prompt, repeatedly re-prompting through the
// attached executor until the answer is one of ValidChoices, applying
// Default on an empty answer. ValidChoices auto-detects from any `(x)`
// group in Prompt when left nil, mirroring the teacher's
// regexp.MustCompile idiom for deriving structure from free text.
type UserInputStep struct {
	workflow.BaseStep

	Prompt       string
	ValidChoices []string
	Default      string

	output []byte
}

// NewUserInputStep constructs a UserInputStep.
func NewUserInputStep(name, prompt string, validChoices []string, def string) *UserInputStep {
	return &UserInputStep{BaseStep: workflow.NewBaseStep(name), Prompt: prompt, ValidChoices: validChoices, Default: def}
}

func (u *UserInputStep) resolveChoices() []string {
	if len(u.ValidChoices) > 0 {
		return u.ValidChoices
	}
	groups := choiceGroupPattern.FindAllStringSubmatch(u.Prompt, -1)
	if groups == nil {
		return nil
	}
	var out []string
	for _, m := range groups {
		for _, p := range strings.Split(m[1], "/") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (u *UserInputStep) Run() error {
	choices := u.resolveChoices()
	for attempts := 0; attempts < 1000; attempts++ {
		answer, err := u.PromptUser(u.Prompt, choices, u.Default)
		if err != nil {
			return streamyerrors.NewExecutionError(u.RefName(), err)
		}
		if answer == "" {
			answer = u.Default
		}
		if len(choices) == 0 || containsString(choices, answer) {
			u.output = []byte(answer)
			return nil
		}
	}
	return streamyerrors.NewExecutionError(u.RefName(), fmt.Errorf("no valid answer received for prompt %q", u.Prompt))
}

func (u *UserInputStep) CheckStatus() error {
	if u.StepStatus().Running() {
		u.StepStatus().SetFinished()
	}
	return nil
}

func (u *UserInputStep) Output() []byte { return u.output }

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ---- RunCommandStep --------------------------------------------------

// RunCommandStep validates that its shell is on PATH, launches the command
// in Run, and polls the subprocess's completion in CheckStatus, caching the
// last poll result for CacheInterval to avoid hammering the OS with Wait()
// calls, grounded on internal/plugins/command/command.go and
// internal/plugins/internalexec.
type RunCommandStep struct {
	workflow.BaseStep

	Command       string
	Shell         string
	WorkDir       string
	Env           map[string]string
	CacheInterval time.Duration

	done       chan struct{}
	exitErr    error
	cachedAt   time.Time
	haveResult bool
}

// NewRunCommandStep constructs a RunCommandStep.
func NewRunCommandStep(name, command string) *RunCommandStep {
	return &RunCommandStep{BaseStep: workflow.NewBaseStep(name), Command: command}
}

func (r *RunCommandStep) Validate() error {
	shell, _, err := determineShell(r.Shell)
	if err != nil {
		return streamyerrors.NewValidationError("shell", err.Error(), err)
	}
	if _, err := exec.LookPath(shell); err != nil {
		return streamyerrors.NewValidationError("shell", fmt.Sprintf("shell %q not found on PATH", shell), err)
	}
	return nil
}

func (r *RunCommandStep) Run() error {
	shell, shellArgs, err := determineShell(r.Shell)
	if err != nil {
		return streamyerrors.NewExecutionError(r.RefName(), err)
	}

	cmd := exec.Command(shell, append(append([]string(nil), shellArgs...), r.Command)...)
	cmd.Env = buildEnv(r.Env)
	if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}

	r.done = make(chan struct{})
	if err := cmd.Start(); err != nil {
		return streamyerrors.NewExecutionError(r.RefName(), err)
	}

	go func() {
		r.exitErr = cmd.Wait()
		close(r.done)
	}()
	return nil
}

func (r *RunCommandStep) CheckStatus() error {
	if r.haveResult {
		return r.finishOrFail()
	}
	if r.CacheInterval > 0 && !r.cachedAt.IsZero() && time.Since(r.cachedAt) < r.CacheInterval {
		return nil
	}
	r.cachedAt = time.Now()

	select {
	case <-r.done:
		r.haveResult = true
		return r.finishOrFail()
	default:
		return nil
	}
}

func (r *RunCommandStep) finishOrFail() error {
	if r.exitErr != nil {
		return streamyerrors.NewExecutionError(r.RefName(), r.exitErr)
	}
	r.StepStatus().SetFinished()
	return nil
}

func determineShell(explicit string) (string, []string, error) {
	if explicit != "" {
		return explicit, []string{"-c"}, nil
	}
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C"}, nil
	}
	if path, err := exec.LookPath("bash"); err == nil {
		return path, []string{"-c"}, nil
	}
	if path, err := exec.LookPath("sh"); err == nil {
		return path, []string{"-c"}, nil
	}
	return "", nil, fmt.Errorf("no suitable shell found")
}

func buildEnv(custom map[string]string) []string {
	env := os.Environ()
	for k, v := range custom {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// ---- RepoCloneStep -----------------------------------------------------

// RepoCloneStep is an Input that clones a git repository with go-git,
// exposing the checked-out path as Output. Grounded on
// internal/plugins/repo/repo.go.
type RepoCloneStep struct {
	workflow.BaseStep

	URL         string
	Destination string
	Branch      string
	Depth       int
}

// NewRepoCloneStep constructs a RepoCloneStep.
func NewRepoCloneStep(name, url, destination string) *RepoCloneStep {
	return &RepoCloneStep{BaseStep: workflow.NewBaseStep(name), URL: url, Destination: destination}
}

func (r *RepoCloneStep) Validate() error {
	if r.URL == "" {
		return streamyerrors.NewValidationError("url", "repo clone requires a url", nil)
	}
	if r.Destination == "" {
		return streamyerrors.NewValidationError("destination", "repo clone requires a destination", nil)
	}
	return nil
}

func (r *RepoCloneStep) Run() error {
	opts := &git.CloneOptions{URL: r.URL, Depth: r.Depth}
	if r.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(r.Branch)
		opts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(context.Background(), r.Destination, false, opts); err != nil {
		return streamyerrors.NewExecutionError(r.RefName(), err)
	}
	return nil
}

func (r *RepoCloneStep) CheckStatus() error {
	if r.StepStatus().Running() {
		r.StepStatus().SetFinished()
	}
	return nil
}

func (r *RepoCloneStep) Output() []byte { return []byte(r.Destination) }

// ---- JSONTransformStep --------------------------------------------------

// JSONTransformStep is a Pipe that decodes an upstream Input's Output as
// JSON and applies either a dotted-path extraction (grounded on gjson-style
// lookups) or a text/template render (grounded on
// internal/plugins/template/template.go's text/template use), re-encoding
// the result as JSON (extraction) or raw bytes (template).
type JSONTransformStep struct {
	workflow.BaseStep

	InputStep Input
	Query     string
	Template  string

	output []byte
}

// NewJSONTransformQuery constructs a JSONTransformStep that extracts query.
func NewJSONTransformQuery(name string, input Input, query string) *JSONTransformStep {
	return &JSONTransformStep{BaseStep: workflow.NewBaseStep(name), InputStep: input, Query: query}
}

// NewJSONTransformTemplate constructs a JSONTransformStep that renders tmpl
// against the decoded JSON document.
func NewJSONTransformTemplate(name string, input Input, tmpl string) *JSONTransformStep {
	return &JSONTransformStep{BaseStep: workflow.NewBaseStep(name), InputStep: input, Template: tmpl}
}

func (j *JSONTransformStep) References() []graph.Edge {
	edges := j.BaseStep.References()
	if j.InputStep != nil {
		edges = append(edges, graph.Edge{Attr: "input_step", Target: j.InputStep, AffectsExecutionOrder: true})
	}
	return edges
}

// ReferenceDecls mirrors the static table registered for this class via
// workflow.RegisterReferenceDecls in factory.go, kept here too as the
// type's own self-description.
func (j *JSONTransformStep) ReferenceDecls() []workflow.ReferenceDecl {
	return []workflow.ReferenceDecl{{Attr: "input_step"}}
}

func (j *JSONTransformStep) Validate() error {
	if j.InputStep == nil {
		return streamyerrors.NewValidationError("input_step", "json transform requires an input step", nil)
	}
	if j.Query == "" && j.Template == "" {
		return streamyerrors.NewValidationError("query", "json transform requires a query or a template", nil)
	}
	return nil
}

func (j *JSONTransformStep) Run() error {
	var decoded any
	if err := json.Unmarshal(j.InputStep.Output(), &decoded); err != nil {
		return streamyerrors.NewExecutionError(j.RefName(), fmt.Errorf("decode input: %w", err))
	}

	if j.Query != "" {
		result, err := extractPath(decoded, j.Query)
		if err != nil {
			return streamyerrors.NewExecutionError(j.RefName(), err)
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return streamyerrors.NewExecutionError(j.RefName(), err)
		}
		j.output = encoded
		return nil
	}

	tmpl, err := template.New(j.RefName()).Parse(j.Template)
	if err != nil {
		return streamyerrors.NewExecutionError(j.RefName(), fmt.Errorf("parse template: %w", err))
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, decoded); err != nil {
		return streamyerrors.NewExecutionError(j.RefName(), fmt.Errorf("render template: %w", err))
	}
	j.output = buf.Bytes()
	return nil
}

func (j *JSONTransformStep) CheckStatus() error {
	if j.StepStatus().Running() {
		j.StepStatus().SetFinished()
	}
	return nil
}

func (j *JSONTransformStep) Output() []byte { return j.output }

// extractPath walks a decoded JSON value along a dotted path, indexing into
// maps by key and into slices by integer index.
func extractPath(value any, path string) (any, error) {
	cur := value
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("path %q: key %q not found", path, seg)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("path %q: invalid index %q", path, seg)
			}
			cur = v[idx]
		default:
			return nil, fmt.Errorf("path %q: cannot descend into %T", path, cur)
		}
	}
	return cur, nil
}

// ---- WaitStep ----------------------------------------------------------

// WaitStep has no references; its CheckStatus transitions Running to
// Finished once Duration has elapsed since Run began, the simplest example
// of the "long-running step polled via status callback" pattern in §4.4.
type WaitStep struct {
	workflow.BaseStep

	Duration time.Duration

	startedAt time.Time
	now       func() time.Time
}

// NewWaitStep constructs a WaitStep that finishes after d has elapsed.
func NewWaitStep(name string, d time.Duration) *WaitStep {
	return &WaitStep{BaseStep: workflow.NewBaseStep(name), Duration: d, now: time.Now}
}

func (w *WaitStep) Run() error {
	if w.now == nil {
		w.now = time.Now
	}
	w.startedAt = w.now()
	return nil
}

func (w *WaitStep) CheckStatus() error {
	if w.StepStatus().Running() && w.now().Sub(w.startedAt) >= w.Duration {
		w.StepStatus().SetFinished()
	}
	return nil
}
