package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lyallcooper/dupdeleter/internal/forest"
	"github.com/lyallcooper/dupdeleter/internal/services"
	"github.com/lyallcooper/dupdeleter/internal/types"
)

func newScanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <folder>",
		Short: "Scan a folder for duplicate images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, p, err := scanFolder(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			groups := session.ListGroups("")
			printGroups(cmd.OutOrStdout(), groups)
			printSummary(cmd.OutOrStdout(), p, groups)
			return nil
		},
	}
}

// scanFolder runs one scan to completion, reporting progress on stderr.
// Interrupting the process cancels the scan and keeps what was found.
func scanFolder(cmd *cobra.Command, opts *options, root string) (*services.Session, types.ScanProgress, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, types.ScanProgress{}, err
	}

	session := services.NewSession(nil, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := session.StartScan(ctx, services.ScanRequest{Root: root}); err != nil {
		session.Close()
		return nil, types.ScanProgress{}, err
	}
	stopCancel := context.AfterFunc(ctx, func() { session.CancelScan() })
	defer stopCancel()

	errOut := cmd.ErrOrStderr()
	done, stopped := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := session.PollProgress()
				fmt.Fprintf(errOut, "\rScanned %s files, %s groups", humanize.Comma(p.FilesScanned), humanize.Comma(p.GroupsFound))
			}
		}
	}()

	waitErr := session.Wait(context.Background())
	close(done)
	<-stopped

	p := session.PollProgress()
	fmt.Fprintln(errOut)
	switch p.Status {
	case types.StatusCancelled:
		fmt.Fprintln(errOut, "Scan cancelled; showing groups found so far")
	case types.StatusFailed:
		session.Close()
		return nil, p, fmt.Errorf("scan failed: %w", waitErr)
	}
	return session, p, nil
}

func printGroups(w io.Writer, groups []forest.GroupView) {
	for _, g := range groups {
		fmt.Fprintf(w, "Group %d (%s)\n", g.Index+1, g.Fingerprint)
		fmt.Fprintf(w, "  * %s\n", g.Parent.Ref.Path())
		for _, c := range g.Children {
			fmt.Fprintf(w, "    %s\n", c.Ref.Path())
		}
	}
}

func printSummary(w io.Writer, p types.ScanProgress, groups []forest.GroupView) {
	dups := 0
	for _, g := range groups {
		dups += g.DupCount
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Files scanned:    %s\n", humanize.Comma(p.FilesScanned))
	fmt.Fprintf(w, "Duplicate groups: %s\n", humanize.Comma(int64(len(groups))))
	fmt.Fprintf(w, "Duplicates:       %s\n", humanize.Comma(int64(dups)))
	if p.Warnings > 0 {
		fmt.Fprintf(w, "Unreadable files: %s\n", humanize.Comma(p.Warnings))
	}
}
