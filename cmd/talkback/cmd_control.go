package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// newPauseCmd creates the "talkback pause" subcommand. Pause is
// destructive: it discards the pending queue like stop does.
func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause playback (discards the pending queue)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().post("/control/pause", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "paused")
			return nil
		},
	}
}

// newResumeCmd creates the "talkback resume" subcommand.
func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume playback of future items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().post("/control/resume", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "resumed")
			return nil
		},
	}
}

// newStopCmd creates the "talkback stop" subcommand.
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the current playback and clear the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().post("/control/stop", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stopped")
			return nil
		},
	}
}

// newSkipCmd creates the "talkback skip" subcommand.
func newSkipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the current playback",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().post("/control/skip", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "skipped")
			return nil
		},
	}
}

// newReplayCmd creates the "talkback replay <id>" subcommand.
func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <id>",
		Short: "Replay a finished record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid record id %q", args[0])
			}
			if err := newAPIClient().post(fmt.Sprintf("/records/%d/replay", id), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replaying %d\n", id)
			return nil
		},
	}
}

// newMuteCmd creates the "talkback mute on|off" subcommand.
func newMuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "mute on|off",
		Short:     "Toggle global mute",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			muted := args[0] == "on"
			body := map[string]bool{"muted": muted}
			if err := newAPIClient().post("/control/mute", body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mute %s\n", args[0])
			return nil
		},
	}
}
