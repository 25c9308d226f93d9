// Command skel copies skeleton directory trees and provisions home
// directories from them, preserving ownership, permissions, hardlink
// topology, special files, and extended metadata.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bamsammich/skel/internal/config"
	"github.com/bamsammich/skel/internal/event"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		verbose bool
		quiet   bool
	)

	rootCmd := &cobra.Command{
		Use:           "skel",
		Short:         "Privilege-aware skeleton tree copier for account provisioning",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			} else if !quiet {
				logLevel = slog.LevelInfo
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			}))
			slog.SetDefault(logger)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.AddCommand(newCopyCmd(&quiet, &verbose))
	rootCmd.AddCommand(newMkhomeCmd(&quiet, &verbose))
	rootCmd.AddCommand(newVerifyCmd(&quiet))

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// loadConfig reads the optional config file, downgrading a load failure
// to a warning so a broken file never blocks provisioning.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "path", config.Path(), "error", err)
		return config.Config{}
	}
	return cfg
}

// drainEvents starts a goroutine that logs structured records for every
// event. The returned stop function closes the channel and waits for the
// drain to finish.
func drainEvents() (chan event.Event, func()) {
	events := make(chan event.Event, 256)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			attrs := []slog.Attr{
				slog.String("type", ev.Type.String()),
				slog.String("path", ev.Path),
			}
			if ev.Size > 0 {
				attrs = append(attrs, slog.Int64("size", ev.Size))
			}
			level := slog.LevelDebug
			if ev.Error != nil {
				level = slog.LevelWarn
				attrs = append(attrs, slog.String("error", ev.Error.Error()))
			}
			slog.LogAttrs(context.Background(), level, "skel.event", attrs...)
		}
	}()
	return events, func() {
		close(events)
		wg.Wait()
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
