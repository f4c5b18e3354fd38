package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bryan-buckman/cringecast/internal/database"
	"github.com/bryan-buckman/cringecast/internal/progress"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runs bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently downloaded episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := database.New(cfg.CatalogPath)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer db.Close()

			if runs {
				return printRuns(cmd, db, limit)
			}
			return printDownloads(cmd, ctx, db, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of rows to show")
	cmd.Flags().BoolVar(&runs, "runs", false, "List sync runs instead of downloads")
	return cmd
}

func printDownloads(cmd *cobra.Command, ctx *commandContext, db database.Store, limit int) error {
	names := ctx.feedNames()
	var feed string
	switch len(names) {
	case 0:
	case 1:
		feed = names[0]
	default:
		return fmt.Errorf("history accepts at most one --feed")
	}

	downloads, err := db.RecentDownloads(feed, limit)
	if err != nil {
		return fmt.Errorf("list downloads: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(downloads) == 0 {
		fmt.Fprintln(out, "No downloads recorded.")
		return nil
	}

	rows := make([][]string, 0, len(downloads))
	for _, d := range downloads {
		rows = append(rows, []string{
			humanize.Time(d.DownloadedAt),
			d.Feed,
			progress.Title(d.Title, 48),
			humanize.IBytes(uint64(max(d.Bytes, 0))),
			filepath.Base(d.Path),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"When", "Podcast", "Episode", "Size", "File"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func printRuns(cmd *cobra.Command, db database.Store, limit int) error {
	runs, err := db.RecentRuns(limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		duration := "running"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		rows = append(rows, []string{
			r.ID[:min(8, len(r.ID))],
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			duration,
			strconv.Itoa(r.Downloaded),
			strconv.Itoa(r.FailedFeeds),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Started", "Took", "Downloaded", "Failed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	return nil
}
