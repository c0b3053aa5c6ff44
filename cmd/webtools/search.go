package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solarecho3/web-tools/pkg/client"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		pages    int
		throttle bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search recent tweets and store the results",
		Long: `Search recent tweets for a query. Results are appended to
data/twitter_queries.db in a table named after the response's transaction
id, tagged with the query term.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pages < 0 {
				return fmt.Errorf("--pages must not be negative (got %d)", pages)
			}

			sess, err := a.session()
			if err != nil {
				return err
			}

			term := strings.Join(args, " ")
			cfg := a.cfg.Collection(client.SearchEndpoint.Name)
			if pages > 0 {
				cfg.MaxPages = pages
			}
			cfg.Throttle = cfg.Throttle || throttle

			stage, entry, runErr := a.runner(sess).Query(contextOf(cmd), term, cfg)

			out := cmd.OutOrStdout()
			if runErr == nil {
				fmt.Fprintln(out, panelStyle.Render(
					titleStyle.Render(fmt.Sprintf("#%d %s", entry.Seq, term))+"\n"+
						labelStyle.Render("transaction")+" "+entry.TransactionID+"\n"+
						renderStage(stage),
				))
			}
			fmt.Fprintln(out, renderLimits(sess.Limits().Log()))

			return runErr
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 0, "maximum pages to request (0 uses the configured default)")
	cmd.Flags().BoolVar(&throttle, "throttle", false, "pause between pages to stay inside the rate limit")

	return cmd
}
