// Command dupdeleter scans a directory for duplicate images from the command
// line and optionally prunes them.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/dupdeleter/internal/config"
	"github.com/lyallcooper/dupdeleter/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the flags shared by every subcommand
type options struct {
	strategy   string
	threshold  int
	gridWidth  int
	gridHeight int
	extensions []string
	workers    int
	logLevel   string
}

func newRootCmd() *cobra.Command {
	defaults := config.Load()
	opts := &options{}

	root := &cobra.Command{
		Use:   "dupdeleter",
		Short: "Find and delete duplicate images",
		Long: `Find duplicate images under a directory, either byte-identical (exact)
or visually similar (perceptual), and delete the redundant copies.

Example:
  dupdeleter scan ~/Pictures
  dupdeleter scan ~/Pictures --strategy exact --ext .jpg --ext .png
  dupdeleter prune ~/Pictures --threshold 5 --yes`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Setup(logging.Options{Level: opts.logLevel})
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.strategy, "strategy", defaults.Strategy, "fingerprint strategy: exact or perceptual")
	f.IntVar(&opts.threshold, "threshold", defaults.Threshold, "max differing bits for a perceptual match")
	f.IntVar(&opts.gridWidth, "grid-width", defaults.GridWidth, "perceptual grid width")
	f.IntVar(&opts.gridHeight, "grid-height", defaults.GridHeight, "perceptual grid height")
	f.StringSliceVar(&opts.extensions, "ext", defaults.Extensions, "file name suffixes to scan (case-sensitive)")
	f.IntVar(&opts.workers, "workers", defaults.Workers, "number of fingerprint workers")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")

	root.AddCommand(newScanCmd(opts), newPruneCmd(opts), newHashCmd(opts))
	return root
}

// config builds a session configuration from the flags. Roots are unrestricted.
func (o *options) config() (*config.Config, error) {
	cfg := config.Load()
	cfg.AllowedPaths = nil
	cfg.Strategy = o.strategy
	cfg.Threshold = o.threshold
	cfg.GridWidth = o.gridWidth
	cfg.GridHeight = o.gridHeight
	cfg.Extensions = o.extensions
	cfg.Workers = o.workers

	if _, err := cfg.StrategyConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}
