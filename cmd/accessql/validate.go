package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compile the configured rules against the mapping",
	Example: `  # Validate rules.yaml against mapping.yaml
  accessql validate

  # Validate rules stored in Postgres
  ACCESSQL_RULES_SOURCE=postgres accessql validate`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		rules := env.Filter.Rules()
		fmt.Fprintf(out, "Rules are valid. Found %d rules over %d entities:\n", len(rules), env.Cache.EntityCount())
		for _, r := range rules {
			cond := r.Condition()
			if r.Unrestricted() {
				cond = "(unrestricted)"
			}
			fmt.Fprintf(out, "  - %s: %s %s %s\n", r.Name, r.Access, r.Entity.Name, cond)
		}
		return nil
	},
}
