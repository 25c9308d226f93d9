package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/skel/internal/copytree"
	"github.com/bamsammich/skel/internal/stats"
	"github.com/bamsammich/skel/internal/ui"
	"github.com/bamsammich/skel/internal/verify"
)

func newCopyCmd(quiet, verbose *bool) *cobra.Command {
	var (
		copyRoot    bool
		resetLabels bool
		verifyFlag  bool
		oldUID      int
		newUID      int
		oldGID      int
		newGID      int
	)

	cmd := &cobra.Command{
		Use:   "copy <source> <destination>",
		Short: "Recursively copy a directory tree, remapping ownership",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]

			cfg := loadConfig()
			if !cmd.Flags().Changed("reset-selinux") && cfg.Copy.ResetLabels != nil {
				resetLabels = *cfg.Copy.ResetLabels
			}
			if !cmd.Flags().Changed("verify") && cfg.Copy.Verify != nil {
				verifyFlag = *cfg.Copy.Verify
			}

			collector := stats.NewCollector()
			events, stopDrain := drainEvents()

			slog.Debug("starting copy",
				"src", src,
				"dst", dst,
				"copy_root", copyRoot,
				"reset_selinux", resetLabels,
			)

			err := copytree.CopyTree(src, dst, copytree.Options{
				CopyRoot:    copyRoot,
				ResetLabels: resetLabels,
				OldUID:      oldUID,
				NewUID:      newUID,
				OldGID:      oldGID,
				NewGID:      newGID,
				Events:      events,
				Stats:       collector,
			})

			if err == nil && verifyFlag {
				result := verify.Verify(context.Background(), verify.Config{
					SrcRoot: src,
					DstRoot: dst,
					Events:  events,
					Stats:   collector,
				})
				if result.Failed > 0 {
					for _, m := range result.Mismatches {
						slog.Error("verify mismatch", "path", m.Path, "detail", m.Detail)
					}
					err = fmt.Errorf("verification failed for %d entries", result.Failed)
				}
			}
			stopDrain()

			snap := collector.Snapshot()
			if !*quiet {
				if *verbose {
					fmt.Fprint(os.Stderr, ui.Report(snap))
				}
				fmt.Fprintln(os.Stderr, ui.Summary(snap))
			}

			if err != nil {
				slog.Error("copy failed", "error", err)
				if snap.FilesCopied > 0 || snap.DirsCreated > 0 {
					return &exitError{code: 1} // partial failure
				}
				return &exitError{code: 2} // total failure
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&copyRoot, "copy-root", false, "create the destination root itself instead of copying into it")
	cmd.Flags().BoolVar(&resetLabels, "reset-selinux", false, "give copied entries default SELinux labels instead of the source's")
	cmd.Flags().BoolVar(&verifyFlag, "verify", false, "verify the copied tree against the source (BLAKE3)")
	cmd.Flags().IntVar(&oldUID, "old-uid", copytree.UnchangedID, "remap files owned by this uid (-1 matches all)")
	cmd.Flags().IntVar(&newUID, "new-uid", copytree.UnchangedID, "uid to remap matching files to (-1 keeps ownership)")
	cmd.Flags().IntVar(&oldGID, "old-gid", copytree.UnchangedID, "remap files owned by this gid (-1 matches all)")
	cmd.Flags().IntVar(&newGID, "new-gid", copytree.UnchangedID, "gid to remap matching files to (-1 keeps ownership)")

	return cmd
}
