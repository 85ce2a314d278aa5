package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lyallcooper/dupdeleter/internal/types"
)

func newPruneCmd(opts *options) *cobra.Command {
	var yes, dryRun bool

	cmd := &cobra.Command{
		Use:   "prune <folder>",
		Short: "Scan a folder and delete every duplicate except each group's first file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, p, err := scanFolder(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			if p.Status != types.StatusCompleted {
				return errors.New("scan did not complete; nothing deleted")
			}

			out := cmd.OutOrStdout()
			groups := session.ListGroups("")
			if len(groups) == 0 {
				fmt.Fprintln(out, "No duplicates found.")
				return nil
			}

			if dryRun || !yes {
				for _, g := range groups {
					for _, c := range g.Children {
						fmt.Fprintf(out, "would delete %s (keeping %s)\n", c.Ref.Path(), g.Parent.Ref.Name)
					}
				}
				if dryRun {
					return nil
				}
				return errors.New("pass --yes to delete these files")
			}

			res, err := session.AutoPrune()
			if err != nil {
				return err
			}
			for _, f := range res.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to delete %s: %v\n", f.Path, f.Err)
			}
			fmt.Fprintf(out, "Deleted %s files from %s groups\n",
				humanize.Comma(int64(res.Deleted)), humanize.Comma(int64(res.GroupsRemoved)))

			if len(res.Failures) > 0 {
				return fmt.Errorf("%d files could not be deleted", len(res.Failures))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without listing first")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be deleted")
	return cmd
}
