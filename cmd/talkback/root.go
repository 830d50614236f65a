package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// newRootCmd creates the root talkback command with all subcommands
// attached.
func newRootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:           "talkback",
		Short:         "Spoken playback for AI coding-assistant sessions",
		Long:          "talkback watches coding-assistant session logs, rewrites new assistant\nturns into speech-friendly text, and plays them aloud.",
		Version:       fmt.Sprintf("talkback %s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newStopCmd(),
		newSkipCmd(),
		newReplayCmd(),
		newMuteCmd(),
		newFavCmd(),
		newProfileCmd(),
		newResetCmd(),
		newSweepCmd(),
	)

	return cmd
}
