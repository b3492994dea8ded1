package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ductwork/ductwork/internal/dashboard"
	"github.com/ductwork/ductwork/internal/instantiate"
	"github.com/ductwork/ductwork/internal/logging"
	"github.com/ductwork/ductwork/internal/steps"
	"github.com/ductwork/ductwork/internal/workflow"
)

type runOptions struct {
	ConfigPath   string
	DryRun       bool
	ScanInterval time.Duration
	OnFailure    string
	Watch        bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Parse, compile, instantiate, and execute a workflow configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := parseFailurePolicy(opts.OnFailure)
			if err != nil {
				return err
			}
			return runWorkflow(cmd.OutOrStdout(), opts, policy, root.verbose)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "-", "path to the configuration document, or - for stdin")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "validate every step without running any of them")
	cmd.Flags().DurationVar(&opts.ScanInterval, "scan-interval", 0, "sleep between run-phase passes while steps are in flight")
	cmd.Flags().StringVar(&opts.OnFailure, "on-failure", "raise", "failure policy: raise, skip, graceful, or prompt")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "render a live dashboard instead of log lines")

	return cmd
}

func parseFailurePolicy(s string) (workflow.FailurePolicy, error) {
	switch s {
	case "", "raise":
		return workflow.PolicyRaise, nil
	case "skip":
		return workflow.PolicySkip, nil
	case "graceful":
		return workflow.PolicyGracefulShutdown, nil
	case "prompt":
		return workflow.PolicyPrompt, nil
	default:
		return 0, fmt.Errorf("unknown --on-failure policy %q", s)
	}
}

// runWorkflow drives the §4.11 chain: parse (C12) -> compile (C10, if
// present) -> instantiate (C7) -> a top-level Executor (C5) over the
// resulting steps, exiting non-zero on abort or any step failure. On a
// successful, non-dry-run pass it prints the unified diff of any Diffable
// step (e.g. FileOutput) that overwrote a file whose previous content
// differed.
func runWorkflow(out io.Writer, opts runOptions, policy workflow.FailurePolicy, verbose bool) error {
	registerBuiltinClasses()

	namespaces, stepsMap, err := resolveSteps(opts.ConfigPath)
	if err != nil {
		return err
	}

	inst, err := instantiate.New(namespaces, stepsMap)
	if err != nil {
		return err
	}
	built, err := inst.Instantiate()
	if err != nil {
		return err
	}

	ex := workflow.NewExecutor()
	for _, name := range sortedStepNames(built) {
		ex.AddDependency(built[name])
	}
	ex.OnFailure = policy
	ex.DryRun = opts.DryRun
	ex.ScanInterval = opts.ScanInterval

	interactive := opts.Watch && term.IsTerminal(int(os.Stdout.Fd()))
	if !interactive {
		level := "info"
		if verbose {
			level = "debug"
		}
		ex.Logger = logging.New(logging.Options{Level: level})
		if err := ex.Execute(); err != nil {
			return err
		}
		printDiffs(out, built)
		return failureExitError(ex)
	}

	done := make(chan error, 1)
	go func() { done <- ex.Execute() }()

	dashErr := dashboard.Run(ex)
	if execErr := <-done; execErr != nil {
		return execErr
	}
	if dashErr != nil {
		return dashErr
	}
	printDiffs(out, built)
	return failureExitError(ex)
}

// printDiffs writes the captured diff of every Diffable step, in sorted
// step-name order, skipping steps that overwrote nothing or wrote
// unchanged content.
func printDiffs(out io.Writer, built map[string]workflow.Step) {
	for _, name := range sortedStepNames(built) {
		d, ok := built[name].(steps.Diffable)
		if !ok {
			continue
		}
		if diffText := d.LastDiff(); diffText != "" {
			fmt.Fprintf(out, "--- diff for %s ---\n%s", name, diffText)
		}
	}
}

// failureExitError reports whether the finished execution should exit
// non-zero: an outright abort, or any step left in the Failed stage (the
// PolicySkip/PolicyGracefulShutdown case, where Execute itself returns nil).
func failureExitError(ex *workflow.Executor) error {
	last := ex.LastExecution()
	if last == nil {
		return nil
	}
	if last.Aborted() {
		return fmt.Errorf("execution aborted")
	}
	for _, s := range last.AllSteps() {
		if last.Failed(s) {
			return fmt.Errorf("step %q failed", s.RefName())
		}
	}
	return nil
}

func sortedStepNames(m map[string]workflow.Step) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
