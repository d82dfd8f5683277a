package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atlekbai/accessql/internal/cli"
	"github.com/atlekbai/accessql/internal/oql"
)

var parseRule bool

var parseCmd = &cobra.Command{
	Use:   "parse [query]",
	Short: "Parse a query or rule and print its normal form",
	Example: `  accessql parse "select t from T t where not t.a like 'x%'"
  echo "GRANT READ ACCESS TO T t" | accessql parse --rule`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := inputText(cmd, args)
		if err != nil {
			return err
		}
		parse := oql.Parse
		if parseRule {
			parse = oql.ParseRule
		}
		tree, err := parse(text)
		if err != nil {
			return cli.RuleParseError("parsing", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tree.String())
		return nil
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseRule, "rule", false, "parse an access rule instead of a query")
}

// inputText returns the single argument, or stdin when there is none.
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", cli.GeneralError("reading stdin", err)
	}
	return strings.TrimSpace(string(data)), nil
}
