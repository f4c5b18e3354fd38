package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/cringecast/internal/hook"
	"github.com/bryan-buckman/cringecast/internal/model"
	"github.com/bryan-buckman/cringecast/internal/podcast"
	"github.com/bryan-buckman/cringecast/internal/progress"
	"github.com/bryan-buckman/cringecast/internal/rss"
	"github.com/bryan-buckman/cringecast/internal/transfer"
)

var errSyncRunning = errors.New("another sync is already running")

type syncFlags struct {
	print bool
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download new episodes of every podcast once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncCommand(cmd, ctx, flags)
		},
	}
	cmd.Flags().BoolVarP(&flags.print, "print", "p", false, "Print the path of every downloaded file")
	return cmd
}

func runSyncCommand(cmd *cobra.Command, ctx *commandContext, flags syncFlags) error {
	logger, err := ctx.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if ctx.created {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote default configuration to %s\n", ctx.dir)
	}

	var catalog podcast.Catalog
	if db := ctx.openCatalog(logger); db != nil {
		defer db.Close()
		catalog = db
	}

	report, err := runSync(cmd.Context(), ctx, logger, catalog, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(report.Results) > 0 {
		fmt.Fprintln(out, renderSummary(report))
	}
	fmt.Fprintf(out, "%d episodes downloaded.\n", report.Downloaded())
	if flags.print {
		for _, p := range report.Paths() {
			fmt.Fprintf(out, "%q\n", p)
		}
	}
	if failed := report.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d podcasts failed", failed, len(report.Results))
	}
	return nil
}

// runSync performs one locked run over the configured feeds. catalog may be
// nil.
func runSync(ctx context.Context, cc *commandContext, logger *slog.Logger, catalog podcast.Catalog, progressOut io.Writer) (podcast.Report, error) {
	feeds, err := cc.loadFeeds()
	if err != nil {
		return podcast.Report{}, err
	}

	lock, err := runLock()
	if err != nil {
		return podcast.Report{}, err
	}
	locked, err := lock.TryLock()
	if err != nil {
		return podcast.Report{}, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return podcast.Report{}, fmt.Errorf("%w (lock %s)", errSyncRunning, lock.Path())
	}
	defer lock.Unlock()

	syncer, reporter, err := newSyncer(cc, logger, catalog, progressOut, feeds)
	if err != nil {
		return podcast.Report{}, err
	}
	report := syncer.Run(ctx, feeds)
	reporter.Close()
	return report, nil
}

func newSyncer(cc *commandContext, logger *slog.Logger, catalog podcast.Catalog, progressOut io.Writer, feeds []model.Feed) (*podcast.Syncer, *progress.Reporter, error) {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := cc.httpClient()
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, 0, len(feeds))
	for _, f := range feeds {
		names = append(names, f.Name)
	}
	reporter := progress.New(progress.Options{
		Writer:    progressOut,
		Logger:    logger,
		FeedNames: names,
	})

	policy := cfg.RetryPolicy()
	return podcast.New(podcast.Options{
		Listings: rss.NewFetcher(rss.Options{
			Client: client,
			Retry:  policy,
			Logger: logger,
		}),
		Transfers: transfer.New(transfer.Options{
			Client:    client,
			Retry:     policy,
			Logger:    logger,
			UserAgent: rss.UserAgent,
		}),
		Tagger:   podcast.MetadataTagger{},
		Hooks:    hook.New(logger),
		Catalog:  catalog,
		Progress: reporter,
		Logger:   logger,
	}), reporter, nil
}

func renderSummary(report podcast.Report) string {
	rows := make([][]string, 0, len(report.Results))
	for _, res := range report.Results {
		var status string
		switch {
		case res.Failed():
			status = "failed while " + res.FailedIn.String()
		case len(res.Paths) == 0:
			status = "no new episodes"
		default:
			status = "ok"
		}
		rows = append(rows, []string{
			res.Feed,
			fmt.Sprintf("%d", len(res.Paths)),
			status,
		})
	}
	table := renderTable(
		[]string{"Podcast", "New", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft},
	)
	return table + "\nFinished in " + report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String()
}
