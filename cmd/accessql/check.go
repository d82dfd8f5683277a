package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atlekbai/accessql/internal/access"
	"github.com/atlekbai/accessql/internal/cli"
)

var checkFlags securityFlags

var checkCmd = &cobra.Command{
	Use:   "check <entity> [file]",
	Short: "Decide whether one entity instance is accessible",
	Long: `Decide whether one entity instance is accessible.

The instance is read as JSON or YAML from file, or from stdin. Nested objects
under relationship properties are instances of the related entity; set
"$entity" on a nested object to name a subtype. Exits with 5 when access is
denied.`,
	Example: `  echo '{"owner": "alice"}' | accessql check Document -p alice`,
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := checkFlags.accessType()
		if err != nil {
			return err
		}
		values, err := readInstance(cmd, args[1:])
		if err != nil {
			return err
		}
		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		entity, err := access.NewMapEntity(env.Cache, args[0], values)
		if err != nil {
			return cli.GeneralError("decoding instance", err)
		}
		err = env.Filter.CheckAccess(entity, at, checkFlags.context())
		switch {
		case access.IsSecurityViolationErr(err):
			return &cli.ExitError{Code: cli.ExitDenied, Message: "access denied", Err: err}
		case err != nil:
			return cli.Classify("checking access", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s access to %s granted\n", at, entity.EntityName())
		return nil
	},
}

func init() {
	checkFlags.register(checkCmd)
}

func readInstance(cmd *cobra.Command, args []string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return nil, cli.GeneralError("reading instance", err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, cli.GeneralError("decoding instance", err)
	}
	return values, nil
}
