package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ductwork/ductwork/internal/instantiate"
	"github.com/ductwork/ductwork/internal/workflow"
)

func newGraphCmd() *cobra.Command {
	var cfgPath, format string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the reference-generation waves of a configuration's resolved step graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			registerBuiltinClasses()

			namespaces, stepsMap, err := resolveSteps(cfgPath)
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
			waves, err := ex.Generations()
			if err != nil {
				return err
			}

			if format == "json" {
				return printGraphJSON(cmd.OutOrStdout(), waves)
			}
			return printGraphDot(cmd.OutOrStdout(), waves)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "-", "path to the configuration document, or - for stdin")
	cmd.Flags().StringVar(&format, "format", "dot", "output format: dot or json")
	return cmd
}

func printGraphDot(w io.Writer, waves [][]workflow.Step) error {
	fmt.Fprintln(w, "digraph workflow {")
	for wi, wave := range waves {
		fmt.Fprintf(w, "  subgraph cluster_wave_%d {\n    label=%q;\n", wi, fmt.Sprintf("wave %d", wi))
		for _, s := range wave {
			fmt.Fprintf(w, "    %q;\n", s.RefName())
		}
		fmt.Fprintln(w, "  }")
	}
	for _, wave := range waves {
		for _, s := range wave {
			for _, edge := range s.References() {
				if edge.Target == nil {
					continue
				}
				fmt.Fprintf(w, "  %q -> %q [label=%q];\n", edge.Target.RefName(), s.RefName(), edge.Attr)
			}
		}
	}
	fmt.Fprintln(w, "}")
	return nil
}

func printGraphJSON(w io.Writer, waves [][]workflow.Step) error {
	out := make([][]string, len(waves))
	for i, wave := range waves {
		names := make([]string, len(wave))
		for j, s := range wave {
			names[j] = s.RefName()
		}
		out[i] = names
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
