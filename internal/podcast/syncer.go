// Package podcast runs the per-feed sync loop.
//
// Each feed is synced by its own goroutine. Within a feed every step is
// sequential: fetch the listing, select episodes, then for one episode at a
// time transfer, record in the ledger, name, and run the hook. The first
// failing step ends that feed's run; other feeds are unaffected.
package podcast

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryan-buckman/cringecast/internal/ledger"
	"github.com/bryan-buckman/cringecast/internal/logging"
	"github.com/bryan-buckman/cringecast/internal/model"
	"github.com/bryan-buckman/cringecast/internal/naming"
	"github.com/bryan-buckman/cringecast/internal/progress"
	"github.com/bryan-buckman/cringecast/internal/selector"
	"github.com/bryan-buckman/cringecast/internal/transfer"
)

// State is a step of the per-feed loop.
type State int

const (
	Fetching State = iota
	Selecting
	Transferring
	Recording
	Naming
	Hooking
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Selecting:
		return "selecting"
	case Transferring:
		return "transferring"
	case Recording:
		return "recording"
	case Naming:
		return "naming"
	case Hooking:
		return "hooking"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ListingSource fetches and parses a feed.
type ListingSource interface {
	Fetch(ctx context.Context, url string) (*model.Listing, error)
}

// Transferer downloads one enclosure into dir and returns the final path.
type Transferer interface {
	Fetch(ctx context.Context, url, dir, key string, progress transfer.ProgressFunc) (string, error)
}

// TagRequest carries what a Tagger may write into a file.
type TagRequest struct {
	Feed       string
	Episode    model.Episode
	Listing    *model.Listing
	CustomTags map[string]string
}

// Tagger returns the frames that id3:: template tags resolve against for an
// mp3 file. Implementations may also embed them in the file; MetadataTagger
// does not.
type Tagger interface {
	Tag(ctx context.Context, path string, req TagRequest) (naming.TagSet, error)
}

// HookRunner runs the post-download executable.
type HookRunner interface {
	Run(ctx context.Context, executable, path string) error
}

// Catalog records completed downloads. Failures are logged only.
type Catalog interface {
	StartRun(run model.Run) error
	FinishRun(run model.Run) error
	RecordDownload(d *model.Download) (int64, error)
}

// Options wires a Syncer's collaborators. Tagger, Hooks, Catalog and
// Progress are optional.
type Options struct {
	Listings  ListingSource
	Transfers Transferer
	Tagger    Tagger
	Hooks     HookRunner
	Catalog   Catalog
	Progress  *progress.Reporter
	Renderer  *naming.Renderer
	Logger    *slog.Logger
	Now       func() time.Time
	NewRunID  func() string
}

// Syncer drives feeds through the sync loop. It holds no per-run state and
// is safe for concurrent use.
type Syncer struct {
	listings  ListingSource
	transfers Transferer
	tagger    Tagger
	hooks     HookRunner
	catalog   Catalog
	progress  *progress.Reporter
	renderer  *naming.Renderer
	logger    *slog.Logger
	now       func() time.Time
	newRunID  func() string
}

// New creates a Syncer.
func New(opts Options) *Syncer {
	s := &Syncer{
		listings:  opts.Listings,
		transfers: opts.Transfers,
		tagger:    opts.Tagger,
		hooks:     opts.Hooks,
		catalog:   opts.Catalog,
		progress:  opts.Progress,
		renderer:  opts.Renderer,
		logger:    opts.Logger,
		now:       opts.Now,
		newRunID:  opts.NewRunID,
	}
	if s.renderer == nil {
		s.renderer = naming.NewRenderer()
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newRunID == nil {
		s.newRunID = newRunID
	}
	return s
}

// Result is the outcome of one feed's run. Paths holds every file produced,
// including those finished before a failure.
type Result struct {
	Feed     string
	Paths    []string
	Selected int
	State    State
	// FailedIn is the step that failed when State is Failed.
	FailedIn State
	Err      error
}

// Failed reports whether the feed's run ended in error.
func (r Result) Failed() bool { return r.State == Failed }

// SyncFeed runs the loop for one feed.
func (s *Syncer) SyncFeed(ctx context.Context, feed model.Feed) Result {
	return s.syncFeed(ctx, "", feed)
}

// SyncAll runs every feed concurrently and waits for all of them. Results
// are in the order of feeds.
func (s *Syncer) SyncAll(ctx context.Context, feeds []model.Feed) []Result {
	return s.syncAll(ctx, "", feeds)
}

func (s *Syncer) syncAll(ctx context.Context, runID string, feeds []model.Feed) []Result {
	results := make([]Result, len(feeds))
	var wg sync.WaitGroup
	for i, feed := range feeds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.syncFeed(ctx, runID, feed)
		}()
	}
	wg.Wait()
	return results
}

func (s *Syncer) syncFeed(ctx context.Context, runID string, feed model.Feed) Result {
	logger := s.logger.With("feed", feed.Name)
	if runID != "" {
		logger = logger.With("run_id", runID)
	}
	res := Result{Feed: feed.Name, State: Fetching}
	fail := func(state State, err error) Result {
		res.State = Failed
		res.FailedIn = state
		res.Err = fmt.Errorf("%s: %w", state, err)
		logger.Debug("feed sync stopped", "state", state.String(), "error", err)
		s.progress.Send(progress.Event{Kind: progress.FeedFailed, Feed: feed.Name, Err: res.Err})
		return res
	}

	s.progress.Send(progress.Event{Kind: progress.FeedStarted, Feed: feed.Name})
	logger.Debug("fetching listing", "url", feed.URL)
	listing, err := s.listings.Fetch(ctx, feed.URL)
	if err != nil {
		return fail(Fetching, err)
	}

	res.State = Selecting
	ledgerPath := ledger.Path(feed.Dir)
	retrieved, err := ledger.Load(ledgerPath)
	if err != nil {
		return fail(Selecting, err)
	}
	selected := selector.Select(feed.Policy, listing.Episodes, retrieved, len(listing.Episodes), s.now())
	res.Selected = len(selected)
	logger.Debug("episodes selected",
		"policy", model.PolicyName(feed.Policy),
		"available", len(listing.Episodes),
		"selected", len(selected),
	)

	if len(selected) > 0 {
		if err := os.MkdirAll(feed.Dir, 0o755); err != nil {
			return fail(Transferring, fmt.Errorf("create feed directory: %w", err))
		}
	}

	for i, ep := range selected {
		if err := ctx.Err(); err != nil {
			return fail(Transferring, err)
		}
		path, state, err := s.syncEpisode(ctx, runID, feed, listing, ep, i+1, len(selected), logger)
		if err != nil {
			return fail(state, fmt.Errorf("episode %q: %w", ep.Title, err))
		}
		res.Paths = append(res.Paths, path)
	}

	res.State = Done
	s.progress.Send(progress.Event{Kind: progress.FeedDone, Feed: feed.Name, Count: len(res.Paths)})
	return res
}

func (s *Syncer) syncEpisode(ctx context.Context, runID string, feed model.Feed, listing *model.Listing, ep model.Episode, n, count int, logger *slog.Logger) (string, State, error) {
	s.progress.Send(progress.Event{Kind: progress.EpisodeStarted, Feed: feed.Name, Title: ep.Title, Index: n, Count: count})

	path, err := s.transfers.Fetch(ctx, ep.URL, feed.Dir, ep.ID, func(written, total int64) {
		s.progress.Send(progress.Event{Kind: progress.Bytes, Feed: feed.Name, Written: written, Total: total})
	})
	if err != nil {
		return "", Transferring, err
	}

	if err := ledger.Append(ledger.Path(feed.Dir), ep.ID, s.now(), ep.Title); err != nil {
		return "", Recording, err
	}

	var tags naming.TagSet
	if s.tagger != nil && strings.EqualFold(filepath.Ext(path), ".mp3") {
		tags, err = s.tagger.Tag(ctx, path, TagRequest{
			Feed:       feed.Name,
			Episode:    ep,
			Listing:    listing,
			CustomTags: feed.CustomTags,
		})
		if err != nil {
			return "", Naming, fmt.Errorf("write tags: %w", err)
		}
	}
	name := s.renderer.Render(feed.NamePattern, naming.Context{
		Episode: ep,
		Channel: listing.Channel,
		Tags:    tags,
	})
	final, err := naming.Rename(path, name)
	if err != nil {
		return "", Naming, err
	}

	var size int64
	if info, err := os.Stat(final); err == nil {
		size = info.Size()
	}
	logger.Debug("episode stored", "title", ep.Title, "path", final, "bytes", size)
	s.record(runID, feed, ep, final, size, logger)

	if feed.DownloadHook != "" && s.hooks != nil {
		if err := s.hooks.Run(ctx, feed.DownloadHook, final); err != nil {
			logger.Warn("download hook failed", "path", final, "error", err)
		}
	}

	s.progress.Send(progress.Event{Kind: progress.EpisodeDone, Feed: feed.Name, Title: ep.Title, Written: size})
	return final, Done, nil
}

func (s *Syncer) record(runID string, feed model.Feed, ep model.Episode, path string, size int64, logger *slog.Logger) {
	if s.catalog == nil {
		return
	}
	_, err := s.catalog.RecordDownload(&model.Download{
		RunID:        runID,
		Feed:         feed.Name,
		EpisodeID:    ep.ID,
		Title:        ep.Title,
		Path:         path,
		Bytes:        size,
		PublishedAt:  ep.Published,
		DownloadedAt: s.now(),
	})
	if err != nil {
		logger.Warn("catalog record failed", "path", path, "error", err)
	}
}
