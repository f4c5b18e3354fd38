package podcast

import (
	"context"
	"strconv"

	"github.com/bryan-buckman/cringecast/internal/naming"
)

// MetadataTagger derives ID3 frames from the feed without touching the file.
// Custom tags from configuration override the derived frames.
type MetadataTagger struct{}

// Tag implements Tagger.
func (MetadataTagger) Tag(_ context.Context, _ string, req TagRequest) (naming.TagSet, error) {
	frames := naming.Frames{
		"TIT2": req.Episode.Title,
		"TCON": "Podcast",
		"TRCK": strconv.Itoa(req.Episode.Index + 1),
	}
	album := req.Feed
	if req.Listing != nil && req.Listing.Title != "" {
		album = req.Listing.Title
	}
	if album != "" {
		frames["TALB"] = album
	}
	artist := album
	if req.Listing != nil {
		if author, ok := naming.Lookup(req.Listing.Channel, []string{"itunes:author"}); ok && author != "" {
			artist = author
		}
	}
	if artist != "" {
		frames["TPE1"] = artist
	}
	if !req.Episode.Published.IsZero() {
		frames["TDRC"] = req.Episode.Published.UTC().Format("2006-01-02")
	}
	for id, v := range req.CustomTags {
		frames[id] = v
	}
	return frames, nil
}
