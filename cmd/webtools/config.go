package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// redactedPassword replaces a configured redis password in printed output.
const redactedPassword = "********"

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, config file, .env and
WEBTOOLS_* environment overrides are applied. The redis password is masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := *a.cfg
			if shown.Redis.Password != "" {
				shown.Redis.Password = redactedPassword
			}

			out, err := shown.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
