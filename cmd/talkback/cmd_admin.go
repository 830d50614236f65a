package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"talkback/internal/config"
)

// newFavCmd creates the "talkback fav <id> [on|off]" subcommand.
func newFavCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fav <id> [on|off]",
		Short: "Mark or unmark a record as favorite",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid record id %q", args[0])
			}
			fav := true
			if len(args) == 2 {
				switch args[1] {
				case "on":
				case "off":
					fav = false
				default:
					return fmt.Errorf("expected on or off, got %q", args[1])
				}
			}
			body := map[string]bool{"favorite": fav}
			if err := newAPIClient().post(fmt.Sprintf("/records/%d/favorite", id), body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "record %d favorite=%v\n", id, fav)
			return nil
		},
	}
}

// newProfileCmd creates the "talkback profile" subcommand group.
func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect and toggle watch profiles",
	}
	cmd.AddCommand(newProfileEnableCmd(true), newProfileEnableCmd(false), newProfileListCmd())
	return cmd
}

func newProfileEnableCmd(enable bool) *cobra.Command {
	verb := "enable"
	if !enable {
		verb = "disable"
	}
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: capitalize(verb) + " a profile at runtime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]bool{"enabled": enable}
			if err := newAPIClient().post("/profiles/"+args[0]+"/enabled", body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s %sd\n", args[0], verb)
			return nil
		},
	}
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			for _, p := range cfg.Profiles {
				state := "enabled"
				if !p.IsEnabled() {
					state = "disabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-10s %s\n", p.ID, state, p.Parser)
			}
			return nil
		},
	}
}

// newResetCmd creates the "talkback reset <profile>" subcommand. It
// clears the profile's stored file offsets so changed files are treated
// as first-sight again.
func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <profile>",
		Short: "Clear a profile's watch state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Removed int64 `json:"removed"`
			}
			if err := newAPIClient().del("/profiles/"+args[0]+"/watch-state", &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d watch state rows for %s\n", resp.Removed, args[0])
			return nil
		},
	}
}

// newSweepCmd creates the "talkback sweep" subcommand.
func newSweepCmd() *cobra.Command {
	var olderThanDays int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete old records and cached audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]int{"olderThanDays": olderThanDays}
			var resp struct {
				Records   int64 `json:"records"`
				Artifacts int64 `json:"artifacts"`
			}
			if err := newAPIClient().post("/control/sweep", body, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records, %d cached artifacts\n", resp.Records, resp.Artifacts)
			return nil
		},
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than", config.DefaultRetentionDays, "delete records older than this many days")
	return cmd
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
