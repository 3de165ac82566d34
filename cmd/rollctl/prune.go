package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune-gallery",
	Short: "Remove gallery entries whose enrollment photo is missing on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		svc, done, err := e.pipeline(ctx)
		if err != nil {
			return err
		}
		defer done()

		res, err := svc.PruneGallery(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Checked %d entries, removed %d\n", res.Checked, len(res.Removed))
		for _, id := range res.Removed {
			fmt.Fprintf(out, "  %s\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
