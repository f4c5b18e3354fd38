package config

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"time"

	"github.com/bryan-buckman/cringecast/internal/model"
)

// Resolve flattens a podcast's settings against the global configuration.
func Resolve(g *Global, name string, p Podcast) (model.Feed, error) {
	if p.URL == "" {
		return model.Feed{}, errors.New("url is required")
	}

	policy, err := resolvePolicy(g, p)
	if err != nil {
		return model.Feed{}, err
	}

	dir := p.Path
	if dir == "" {
		dir = g.Path
	}

	tags := make(map[string]string, len(g.CustomTags)+len(p.CustomTags))
	maps.Copy(tags, g.CustomTags)
	maps.Copy(tags, p.CustomTags)

	var globalHook *string
	if g.DownloadHook != "" {
		globalHook = &g.DownloadHook
	}
	hook := ""
	if h := p.DownloadHook.Resolve(globalHook); h != nil {
		hook = *h
	}

	return model.Feed{
		Name:         name,
		URL:          p.URL,
		Dir:          filepath.Join(dir, name),
		NamePattern:  g.NamePattern,
		Policy:       policy,
		DownloadHook: hook,
		CustomTags:   tags,
	}, nil
}

func resolvePolicy(g *Global, p Podcast) (model.RetentionPolicy, error) {
	switch {
	case p.BacklogStart == "" && p.BacklogInterval == nil:
		return resolveStandard(g, p)
	case p.BacklogInterval == nil:
		return nil, errors.New("backlog_start requires backlog_interval")
	case p.BacklogStart == "":
		return nil, errors.New("backlog_interval requires backlog_start")
	}

	if p.MaxDays.IsEnabled() {
		return nil, errors.New("max_days is not compatible with backlog mode")
	}
	if p.MaxEpisodes.IsEnabled() {
		return nil, errors.New("max_episodes is not compatible with backlog mode, move backlog_start instead")
	}
	if p.EarliestDate.IsEnabled() {
		return nil, errors.New("earliest_date is not compatible with backlog mode")
	}
	start, err := time.Parse(time.DateOnly, p.BacklogStart)
	if err != nil {
		return nil, fmt.Errorf("invalid backlog_start %q, use YYYY-MM-DD", p.BacklogStart)
	}
	if *p.BacklogInterval <= 0 {
		return nil, errors.New("backlog_interval must be at least 1 day")
	}
	return model.BacklogPolicy{Start: start, IntervalDays: *p.BacklogInterval}, nil
}

func resolveStandard(g *Global, p Podcast) (model.RetentionPolicy, error) {
	policy := model.StandardPolicy{
		MaxAgeDays:  p.MaxDays.Resolve(g.MaxDays),
		MaxEpisodes: p.MaxEpisodes.Resolve(g.MaxEpisodes),
	}
	if policy.MaxAgeDays != nil && *policy.MaxAgeDays < 0 {
		return nil, errors.New("max_days must not be negative")
	}
	if policy.MaxEpisodes != nil && *policy.MaxEpisodes < 0 {
		return nil, errors.New("max_episodes must not be negative")
	}

	var globalDate *string
	if g.EarliestDate != "" {
		globalDate = &g.EarliestDate
	}
	if date := p.EarliestDate.Resolve(globalDate); date != nil {
		t, err := parseDate(*date)
		if err != nil {
			return nil, fmt.Errorf("earliest_date: %w", err)
		}
		policy.EarliestDate = &t
	}
	return policy, nil
}

// Feeds resolves every entry, failing on the first invalid podcast.
func Feeds(g *Global, entries []Entry) ([]model.Feed, error) {
	feeds := make([]model.Feed, 0, len(entries))
	for _, e := range entries {
		feed, err := Resolve(g, e.Name, e.Podcast)
		if err != nil {
			return nil, fmt.Errorf("podcast %q: %w", e.Name, err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, nil
}
