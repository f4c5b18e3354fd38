package podcast

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bryan-buckman/cringecast/internal/model"
)

func newRunID() string { return uuid.NewString() }

// Report summarizes one invocation over a set of feeds.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []Result
}

// Downloaded returns the number of files produced across all feeds.
func (r Report) Downloaded() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Paths)
	}
	return n
}

// Failed returns the number of feeds whose run ended in error.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// Paths returns every produced file, feed by feed.
func (r Report) Paths() []string {
	var paths []string
	for _, res := range r.Results {
		paths = append(paths, res.Paths...)
	}
	return paths
}

// Run syncs all feeds under a fresh run id and records the run in the
// catalog when one is configured.
func (s *Syncer) Run(ctx context.Context, feeds []model.Feed) Report {
	report := Report{RunID: s.newRunID(), StartedAt: s.now()}
	logger := s.logger.With("run_id", report.RunID)
	if s.catalog != nil {
		if err := s.catalog.StartRun(model.Run{ID: report.RunID, StartedAt: report.StartedAt}); err != nil {
			logger.Warn("catalog start run failed", "error", err)
		}
	}

	logger.Debug("sync started", "feeds", len(feeds))
	report.Results = s.syncAll(ctx, report.RunID, feeds)
	report.FinishedAt = s.now()
	logger.Debug("sync finished",
		"downloaded", report.Downloaded(),
		"failed_feeds", report.Failed(),
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)

	if s.catalog != nil {
		err := s.catalog.FinishRun(model.Run{
			ID:          report.RunID,
			StartedAt:   report.StartedAt,
			FinishedAt:  report.FinishedAt,
			Downloaded:  report.Downloaded(),
			FailedFeeds: report.Failed(),
		})
		if err != nil {
			logger.Warn("catalog finish run failed", "error", err)
		}
	}
	return report
}
