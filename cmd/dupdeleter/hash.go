package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/dupdeleter/internal/fingerprint"
)

func newHashCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file>...",
		Short: "Print the fingerprint of each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			fc, err := cfg.StrategyConfig()
			if err != nil {
				return err
			}
			strategy, err := fingerprint.New(fc)
			if err != nil {
				return err
			}

			failed := 0
			for _, path := range args {
				fp, err := strategy.Fingerprint(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", fp, path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be fingerprinted", failed, len(args))
			}
			return nil
		},
	}
}
