// Package model defines shared data structures.
package model

import "time"

// Feed is one configured podcast, fully resolved from global and per-podcast
// configuration. The sync engine never sees unresolved configuration.
type Feed struct {
	Name         string
	URL          string
	Dir          string // destination directory for this feed's episodes
	NamePattern  string
	Policy       RetentionPolicy
	DownloadHook string // empty when disabled
	CustomTags   map[string]string
}

// Metadata is a generic key/value tree converted from a feed document.
// Values are string, Metadata, or []any.
type Metadata map[string]any

// Episode is one usable entry of a feed listing.
type Episode struct {
	Title     string
	URL       string // enclosure location
	ID        string // unique within a feed, used as the ledger key
	Published time.Time
	Index     int // position in chronological order, 0 = oldest
	Raw       Metadata
}

// Listing is the parsed result of fetching a feed.
type Listing struct {
	Title    string
	Channel  Metadata
	Episodes []Episode // ascending Index
}

// RetentionPolicy decides which episodes of a feed are eligible.
// Exactly one of StandardPolicy or BacklogPolicy.
type RetentionPolicy interface {
	policyName() string
}

// StandardPolicy keeps an episode only if every configured bound passes.
// A nil bound always passes.
type StandardPolicy struct {
	MaxAgeDays   *int
	MaxEpisodes  *int
	EarliestDate *time.Time
}

// BacklogPolicy releases one more historical episode every IntervalDays
// starting at Start.
type BacklogPolicy struct {
	Start        time.Time
	IntervalDays int
}

func (StandardPolicy) policyName() string { return "standard" }
func (BacklogPolicy) policyName() string  { return "backlog" }

// PolicyName returns "standard" or "backlog".
func PolicyName(p RetentionPolicy) string {
	if p == nil {
		return "standard"
	}
	return p.policyName()
}

// Download is a catalog record of one retrieved episode.
type Download struct {
	ID           int64
	RunID        string
	Feed         string
	EpisodeID    string
	Title        string
	Path         string
	Bytes        int64
	PublishedAt  time.Time
	DownloadedAt time.Time
}

// Run is a catalog record of one sync invocation.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Downloaded  int
	FailedFeeds int
}

// FeedStats summarizes the catalog for one feed.
type FeedStats struct {
	Feed         string
	Downloads    int
	Bytes        int64
	LastDownload time.Time
}

// SettingPollingInterval is the catalog key of the watch interval in minutes.
const SettingPollingInterval = "polling_interval_minutes"
