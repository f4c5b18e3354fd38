package rss

import (
	"bytes"
	"sort"

	"github.com/mmcdole/gofeed"

	"github.com/bryan-buckman/cringecast/internal/model"
)

// ParseListing parses a feed document into a Listing.
//
// Entries are ordered by publish time. Unusable entries (missing title,
// enclosure, guid or publish date) are dropped and the rest are indexed
// densely, so Index counts only episodes that can be downloaded.
func ParseListing(data []byte) (*model.Listing, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	channel, raws, err := BuildTree(bytes.NewReader(data))
	if err != nil || len(raws) != len(parsed.Items) {
		// JSON feeds and documents the tree builder cannot mirror item for
		// item still sync; only rss:: lookups degrade.
		channel, raws = nil, nil
	}

	type entry struct {
		item *gofeed.Item
		raw  model.Metadata
	}
	entries := make([]entry, len(parsed.Items))
	for i, item := range parsed.Items {
		entries[i].item = item
		if raws != nil {
			entries[i].raw = raws[i]
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return publishedUnix(entries[i].item) < publishedUnix(entries[j].item)
	})

	listing := &model.Listing{Title: parsed.Title, Channel: channel}
	for _, e := range entries {
		ep, ok := newEpisode(e.item, len(listing.Episodes), e.raw)
		if !ok {
			continue
		}
		listing.Episodes = append(listing.Episodes, ep)
	}
	return listing, nil
}

func publishedUnix(item *gofeed.Item) int64 {
	if item == nil || item.PublishedParsed == nil {
		return 0
	}
	return item.PublishedParsed.Unix()
}

func newEpisode(item *gofeed.Item, index int, raw model.Metadata) (model.Episode, bool) {
	if item == nil || item.Title == "" || item.GUID == "" || item.PublishedParsed == nil {
		return model.Episode{}, false
	}
	var enclosure string
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			enclosure = enc.URL
			break
		}
	}
	if enclosure == "" {
		return model.Episode{}, false
	}
	return model.Episode{
		Title:     item.Title,
		URL:       enclosure,
		ID:        item.GUID,
		Published: item.PublishedParsed.UTC(),
		Index:     index,
		Raw:       raw,
	}, true
}

