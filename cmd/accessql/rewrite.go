package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/atlekbai/accessql/internal/cli"
)

var (
	rewriteFlags  securityFlags
	rewriteFormat string
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [query]",
	Short: "Inject the access restrictions into a query",
	Example: `  accessql rewrite -p alice -r admin "SELECT d FROM Document d"
  accessql rewrite --access DELETE --format json "DELETE FROM Document d"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := inputText(cmd, args)
		if err != nil {
			return err
		}
		at, err := rewriteFlags.accessType()
		if err != nil {
			return err
		}
		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Filter.FilterQuery(text, at, rewriteFlags.context())
		if err != nil {
			return cli.Classify("rewriting query", err)
		}

		out := cmd.OutOrStdout()
		if rewriteFormat == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"query":          res.Query,
				"parameters":     res.Parameters,
				"selected_paths": res.SelectedPaths,
				"always_false":   res.AlwaysFalse,
				"modified":       res.Modified,
			})
		}
		fmt.Fprintln(out, res.Query)
		names := make([]string, 0, len(res.Parameters))
		for n := range res.Parameters {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(out, "  :%s = %v\n", n, res.Parameters[n])
		}
		if res.AlwaysFalse {
			fmt.Fprintln(out, "  (no entity is accessible)")
		}
		return nil
	},
}

func init() {
	rewriteFlags.register(rewriteCmd)
	rewriteCmd.Flags().StringVar(&rewriteFormat, "format", "text", "output format: text or json")
}
