package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ductwork/ductwork/internal/compile"
	"github.com/ductwork/ductwork/internal/config"
	"github.com/ductwork/ductwork/internal/instantiate"
)

func newValidateCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse and statically validate a configuration document without running any step",
		RunE: func(cmd *cobra.Command, args []string) error {
			registerBuiltinClasses()

			doc, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			if len(doc.Compilers.List) > 0 || len(doc.Compilers.Mapping) > 0 {
				if _, err := compile.BuildCompilerWorkflow(doc.Namespaces, doc.Compilers); err != nil {
					return err
				}
			}

			if _, err := instantiate.New(doc.Namespaces, doc.Steps); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "valid: %d step(s)\n", len(doc.Steps))
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "-", "path to the configuration document, or - for stdin")
	return cmd
}
