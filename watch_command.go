package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/cringecast/internal/database"
	"github.com/bryan-buckman/cringecast/internal/model"
	"github.com/bryan-buckman/cringecast/internal/podcast"
	"github.com/bryan-buckman/cringecast/internal/server"
)

const fallbackWatchInterval = time.Hour

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var listen string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync periodically, optionally serving a status API",
		Long: "Sync every podcast, wait, and repeat until interrupted.\n" +
			"The interval is at least 15 minutes. Without --interval the interval stored in the\n" +
			"catalog is used (60 minutes unless changed through the API).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, ctx, interval, listen)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Time between syncs (minimum 15m)")
	cmd.Flags().StringVar(&listen, "listen", "", "Serve the status API on this address, e.g. 127.0.0.1:8080")
	return cmd
}

func runWatch(cmd *cobra.Command, cc *commandContext, interval time.Duration, listen string) error {
	logger, err := cc.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	// Validate the podcast list up front; each cycle reloads it.
	feeds, err := cc.loadFeeds()
	if err != nil {
		return err
	}

	var catalog database.Store
	if db := cc.openCatalog(logger); db != nil {
		defer db.Close()
		catalog = db
		if interval > 0 {
			mins := max(int(interval/time.Minute), database.MinPollingInterval)
			if err := db.SetSetting(model.SettingPollingInterval, strconv.Itoa(mins)); err != nil {
				logger.Warn("store polling interval failed", "error", err)
			}
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	poller := podcast.NewPoller(
		func(ctx context.Context) error {
			return watchCycle(ctx, cc, logger, catalog)
		},
		watchInterval(catalog, interval, logger),
		logger,
	)
	poller.Start(ctx)
	defer poller.Stop()

	if listen == "" {
		<-ctx.Done()
		return nil
	}
	srv := server.New(server.Options{
		Catalog: catalog,
		Feeds:   feeds,
		Poller:  poller,
		Logger:  logger,
	})
	if err := srv.Start(ctx, listen); err != nil {
		return fmt.Errorf("serve %s: %w", listen, err)
	}
	return nil
}

func watchCycle(ctx context.Context, cc *commandContext, logger *slog.Logger, catalog database.Store) error {
	var cat podcast.Catalog
	if catalog != nil {
		cat = catalog
	}
	report, err := runSync(ctx, cc, logger, cat, io.Discard)
	if err != nil {
		if errors.Is(err, errSyncRunning) {
			logger.Warn("skipping cycle", "reason", err)
		}
		return err
	}
	if failed := report.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d podcasts failed", failed, len(report.Results))
	}
	return nil
}

// watchInterval prefers the catalog setting so the API can change it; the
// flag applies when there is no catalog.
func watchInterval(catalog database.Store, flag time.Duration, logger *slog.Logger) func() time.Duration {
	return func() time.Duration {
		if catalog != nil {
			mins, err := catalog.GetPollingInterval()
			if err == nil {
				return time.Duration(mins) * time.Minute
			}
			logger.Warn("read polling interval failed", "error", err)
		}
		if flag > 0 {
			return flag
		}
		return fallbackWatchInterval
	}
}
