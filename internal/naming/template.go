// Package naming renders file-name templates against episode metadata and
// renames downloaded files to the result.
//
// A template is literal text interleaved with {namespace::rest} tags:
//
//	{pubdate::%Y-%m-%d}         publish time, strftime pattern, UTC
//	{id3::TIT2}                 frame of the tag set written to the file
//	{rss::episode::title}       field of the episode's raw metadata
//	{rss::channel::itunes:author}
//
// Rendering never fails. Tags that cannot be resolved become sentinel text
// so one bad tag cannot block a sync.
package naming

import (
	"regexp"
	"strings"
)

// tagPattern matches a non-empty, non-nested {...} span.
var tagPattern = regexp.MustCompile(`\{([^}]+)\}`)

// Segment is one piece of a parsed template. Tag is empty for literal text.
type Segment struct {
	Literal string
	Tag     string
}

// IsTag reports whether the segment is a tag to resolve.
func (s Segment) IsTag() bool { return s.Tag != "" }

// Parse splits tmpl into literal runs and tags, in order.
func Parse(tmpl string) []Segment {
	var out []Segment
	last := 0
	for _, m := range tagPattern.FindAllStringSubmatchIndex(tmpl, -1) {
		if m[0] > last {
			out = append(out, Segment{Literal: tmpl[last:m[0]]})
		}
		out = append(out, Segment{Tag: tmpl[m[2]:m[3]]})
		last = m[1]
	}
	if last < len(tmpl) {
		out = append(out, Segment{Literal: tmpl[last:]})
	}
	return out
}

// splitTag separates the namespace from the remainder at the first "::".
func splitTag(tag string) (namespace, rest string, ok bool) {
	namespace, rest, ok = strings.Cut(tag, "::")
	return namespace, rest, ok
}
