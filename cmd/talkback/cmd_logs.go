package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"talkback/pkg/models"
)

// newLogsCmd creates the "talkback logs" subcommand.
func newLogsCmd() *cobra.Command {
	var (
		limit     int
		offset    int
		profile   string
		cwd       string
		favorites bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the playback log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			params.Set("limit", strconv.Itoa(limit))
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}
			if profile != "" {
				params.Set("profile", profile)
			}
			if cwd != "" {
				params.Set("cwd", cwd)
			}
			if favorites {
				params.Set("favorites", "true")
			}

			var resp struct {
				Records []models.QueueRecord `json:"records"`
			}
			if err := newAPIClient().get("/logs?"+params.Encode(), &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, rec := range resp.Records {
				ts := time.UnixMilli(rec.Timestamp).Format("2006-01-02 15:04:05")
				marker := " "
				if rec.IsFavorite {
					marker = "*"
				}
				text := rec.FilteredText
				if text == "" {
					text = rec.OriginalText
				}
				fmt.Fprintf(out, "%s%6d  %s  %-7s  [%s] %s\n", marker, rec.ID, ts, rec.State, rec.ProfileID, text)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	cmd.Flags().StringVar(&profile, "profile", "", "filter by profile id")
	cmd.Flags().StringVar(&cwd, "cwd", "", "filter by working directory")
	cmd.Flags().BoolVar(&favorites, "favorites", false, "favorites only")
	return cmd
}
