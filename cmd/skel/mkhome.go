package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bamsammich/skel/internal/config"
	"github.com/bamsammich/skel/internal/provision"
	"github.com/bamsammich/skel/internal/stats"
	"github.com/bamsammich/skel/internal/ui"
)

const defaultSkelDir = "/etc/skel"

func newMkhomeCmd(quiet, verbose *bool) *cobra.Command {
	var (
		skelDir     string
		uid         int
		gid         int
		modeStr     string
		resetLabels bool
		verifyFlag  bool
	)

	cmd := &cobra.Command{
		Use:   "mkhome <home>",
		Short: "Create a home directory and populate it from a skeleton",
		Long: `Create a home directory owned by the given account and populate it
from a skeleton tree, remapping every copied entry to the new owner.

A relative home is resolved against home_base from the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			home := args[0]

			cfg := loadConfig()
			if !cmd.Flags().Changed("skel") && cfg.Provision.SkelDir != nil {
				skelDir = *cfg.Provision.SkelDir
			}
			if !cmd.Flags().Changed("mode") && cfg.Provision.HomeMode != nil {
				modeStr = *cfg.Provision.HomeMode
			}
			if !cmd.Flags().Changed("reset-selinux") && cfg.Copy.ResetLabels != nil {
				resetLabels = *cfg.Copy.ResetLabels
			}
			if !cmd.Flags().Changed("verify") && cfg.Copy.Verify != nil {
				verifyFlag = *cfg.Copy.Verify
			}

			if !filepath.IsAbs(home) && cfg.Provision.HomeBase != nil {
				home = filepath.Join(*cfg.Provision.HomeBase, home)
			}

			mode, err := config.ParseMode(modeStr)
			if err != nil {
				return fmt.Errorf("--mode: %w", err)
			}
			if uid < 0 || gid < 0 {
				return errors.New("--uid and --gid are required")
			}

			collector := stats.NewCollector()
			events, stopDrain := drainEvents()

			slog.Info("provisioning home",
				"home", home,
				"skel", skelDir,
				"uid", uid,
				"gid", gid,
			)

			err = provision.Mkhome(context.Background(), provision.Params{
				SkelDir:     skelDir,
				HomePath:    home,
				UID:         uid,
				GID:         gid,
				Mode:        mode,
				ResetLabels: resetLabels,
				Verify:      verifyFlag,
				Events:      events,
				Stats:       collector,
			})
			stopDrain()

			if !*quiet {
				if *verbose {
					fmt.Fprint(os.Stderr, ui.Report(collector.Snapshot()))
				}
				fmt.Fprintln(os.Stderr, ui.Summary(collector.Snapshot()))
			}

			if err != nil {
				slog.Error("provisioning failed", "home", home, "error", err)
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&skelDir, "skel", defaultSkelDir, "skeleton directory to copy from")
	cmd.Flags().IntVar(&uid, "uid", -1, "owner uid for the new home")
	cmd.Flags().IntVar(&gid, "gid", -1, "owner gid for the new home")
	cmd.Flags().StringVar(&modeStr, "mode", "0700", "permission bits for the home directory (octal)")
	cmd.Flags().BoolVar(&resetLabels, "reset-selinux", false, "give copied entries default SELinux labels instead of the skeleton's")
	cmd.Flags().BoolVar(&verifyFlag, "verify", false, "verify the provisioned tree against the skeleton (BLAKE3)")

	return cmd
}
