package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solarecho3/web-tools/pkg/snapshot"
)

func newSnapshotCmd(a *app) *cobra.Command {
	var opts snapshot.Options

	cmd := &cobra.Command{
		Use:   "snapshot <username>",
		Short: "Capture a user's profile, tweets and optionally a relationship list",
		Long: `Capture one account: the profile metrics, the timeline and, with
--following or --followers, one relationship list. Each stage is appended
to data/<user id>.db as soon as it completes.

Only one relationship list is collected per run; --following wins when
both flags are given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}

			report, runErr := a.runner(sess).Run(contextOf(cmd), args[0], opts)

			out := cmd.OutOrStdout()
			if report != nil {
				fmt.Fprintln(out, renderReport(report))
			}
			fmt.Fprintln(out, renderLimits(sess.Limits().Log()))

			return runErr
		},
	}

	cmd.Flags().BoolVar(&opts.Following, "following", false, "collect the accounts the user follows")
	cmd.Flags().BoolVar(&opts.Followers, "followers", false, "collect the accounts following the user")
	cmd.Flags().BoolVar(&opts.Throttle, "throttle", false, "pause between pages to stay inside the rate limit")

	return cmd
}
