package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"talkback/pkg/models"
)

// newStatusCmd creates the "talkback status" subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status models.StatusSnapshot
			if err := newAPIClient().get("/status", &status); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "muted:   %v\n", status.Muted)
			fmt.Fprintf(out, "paused:  %v\n", status.Paused)
			fmt.Fprintf(out, "playing: %v\n", status.IsPlaying)
			fmt.Fprintf(out, "queued:  %d\n", status.QueueSize)
			fmt.Fprintln(out, "profiles:")
			for _, p := range status.Profiles {
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(out, "  %s (%s, %s)\n", p.ID, p.Parser, state)
			}
			return nil
		},
	}
}
