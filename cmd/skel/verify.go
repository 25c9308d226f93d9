package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/skel/internal/stats"
	"github.com/bamsammich/skel/internal/ui"
	"github.com/bamsammich/skel/internal/verify"
)

func newVerifyCmd(quiet *bool) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "verify <source> <destination>",
		Short: "Check a copied tree against its source",
		Long: `Compare a previously copied tree against its source: file content by
BLAKE3 checksum, symlink targets with the tree rewrite applied, and
hardlink topology. Entries the source never had are ignored.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector := stats.NewCollector()
			events, stopDrain := drainEvents()

			result := verify.Verify(ctx, verify.Config{
				SrcRoot: src,
				DstRoot: dst,
				Workers: workers,
				Events:  events,
				Stats:   collector,
			})
			stopDrain()

			for _, m := range result.Mismatches {
				fmt.Fprintf(os.Stdout, "MISMATCH: %s\n", m)
			}
			if !*quiet {
				fmt.Fprintf(os.Stderr, "verified %s  failed %s\n",
					ui.FormatCount(result.Verified), ui.FormatCount(result.Failed))
			}

			if result.Failed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "checksum workers (default 4)")

	return cmd
}
