package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/solarecho3/web-tools/pkg/logging"
	"github.com/solarecho3/web-tools/pkg/store"
)

func newTablesCmd(a *app) *cobra.Command {
	var glob string

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of every store",
		Long: `List the stores matching the dashboard glob (or --glob) with their
tables and row counts. Stores are opened read-only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if glob == "" {
				glob = a.cfg.Dashboard.Glob
			}

			files, err := store.Discover(glob)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintf(out, "no stores match %s\n", glob)
				return nil
			}

			logger := logging.NewLogger("store")
			ctx := contextOf(cmd)
			for _, path := range files {
				fmt.Fprintln(out, titleStyle.Render(filepath.Base(path)))

				s, err := store.OpenReadOnly(path, logger)
				if err != nil {
					fmt.Fprintf(out, "  %s\n", warnStyle.Render(err.Error()))
					continue
				}

				names, err := s.Tables(ctx)
				if err != nil {
					s.Close()
					return fmt.Errorf("list tables of %s: %w", path, err)
				}
				for _, name := range names {
					n, err := s.Count(ctx, name)
					if err != nil {
						s.Close()
						return fmt.Errorf("count %s in %s: %w", name, path, err)
					}
					fmt.Fprintf(out, "  %s %d rows\n", labelStyle.Render(name), n)
				}
				s.Close()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&glob, "glob", "", "store file pattern (default is dashboard.glob)")

	return cmd
}
