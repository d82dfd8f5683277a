package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/atlekbai/accessql/internal/access"
	"github.com/atlekbai/accessql/internal/app"
	"github.com/atlekbai/accessql/internal/cli"
	"github.com/atlekbai/accessql/internal/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "accessql",
	Short: "Entity-level access rules for object queries",
	Long: `accessql - entity-level access rules for object queries

accessql compiles GRANT ... ACCESS TO rules against an entity mapping and
rewrites queries so that they only return entities the caller may access.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "parse" {
			return nil
		}
		var err error
		cfg, _, err = config.Load(cfgFile)
		if err != nil {
			return cli.ConfigError("loading configuration", err)
		}
		logger = cfg.Logger()
		if verbose {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover accessql.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(checkCmd)
}

// Execute runs the root command and returns the exit code.
func Execute() int {
	return cli.Report(os.Stderr, rootCmd.Execute())
}

// openEnv loads the mapping and the rules from the configuration.
func openEnv(cmd *cobra.Command) (*app.Env, error) {
	env, err := app.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, cli.Classify("loading rules", err)
	}
	return env, nil
}

// securityFlags are the flags describing the caller of rewrite and check.
type securityFlags struct {
	principal string
	roles     []string
	values    map[string]string
	access    string
}

func (f *securityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.principal, "principal", "p", "", "value of CURRENT_PRINCIPAL")
	cmd.Flags().StringSliceVarP(&f.roles, "role", "r", nil, "value of CURRENT_ROLES (repeatable)")
	cmd.Flags().StringToStringVar(&f.values, "set", nil, "extra placeholder values, NAME=VALUE")
	cmd.Flags().StringVarP(&f.access, "access", "a", "READ", "access type: CREATE, READ, UPDATE or DELETE")
}

func (f *securityFlags) context() access.StaticContext {
	sc := access.StaticContext{Principal: f.principal, Roles: f.roles}
	if len(f.values) > 0 {
		sc.Values = make(map[string]any, len(f.values))
		for k, v := range f.values {
			sc.Values[k] = v
		}
	}
	return sc
}

func (f *securityFlags) accessType() (access.AccessType, error) {
	a, err := access.ParseAccessType(f.access)
	if err != nil {
		return 0, cli.GeneralError("invalid --access", err)
	}
	return a, nil
}
