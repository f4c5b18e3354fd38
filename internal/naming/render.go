package naming

import (
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/bryan-buckman/cringecast/internal/model"
)

// Sentinels emitted for tags that cannot be resolved.
const (
	InvalidID3 = "<<invalid id3 tag>>"
	InvalidRSS = "<<invalid rss tag>>"
	UnknownTag = "<<unknown tag>>"
)

// TagSet is the set of embedded tags written to a downloaded file.
type TagSet interface {
	Frame(id string) (string, bool)
}

// Frames is a TagSet backed by a map of frame id to text.
type Frames map[string]string

// Frame implements TagSet.
func (f Frames) Frame(id string) (string, bool) {
	v, ok := f[id]
	return v, ok
}

// Context is everything a template can refer to.
type Context struct {
	Episode model.Episode
	Channel model.Metadata
	// Tags is nil when no tags were written, e.g. for non-mp3 files.
	Tags TagSet
}

// Resolver turns the part of a tag after its namespace into text.
type Resolver func(rest string, c Context) string

// Renderer dispatches tags to resolvers by namespace.
type Renderer struct {
	resolvers map[string]Resolver
}

// NewRenderer returns a renderer with the pubdate, id3 and rss namespaces.
func NewRenderer() *Renderer {
	r := &Renderer{resolvers: map[string]Resolver{}}
	r.Register("pubdate", resolvePubdate)
	r.Register("id3", resolveID3)
	r.Register("rss", resolveRSS)
	return r
}

// Register adds or replaces the resolver for namespace.
func (r *Renderer) Register(namespace string, fn Resolver) {
	r.resolvers[namespace] = fn
}

// Render expands every tag in tmpl.
func (r *Renderer) Render(tmpl string, c Context) string {
	var b strings.Builder
	for _, seg := range Parse(tmpl) {
		if !seg.IsTag() {
			b.WriteString(seg.Literal)
			continue
		}
		b.WriteString(r.resolve(seg.Tag, c))
	}
	return b.String()
}

func (r *Renderer) resolve(tag string, c Context) string {
	namespace, rest, ok := splitTag(tag)
	if !ok {
		return UnknownTag
	}
	fn, ok := r.resolvers[namespace]
	if !ok {
		return UnknownTag
	}
	return fn(rest, c)
}

func resolvePubdate(format string, c Context) string {
	return strftime.Format(format, c.Episode.Published.In(time.UTC))
}

func resolveID3(frame string, c Context) string {
	if c.Tags == nil {
		return ""
	}
	v, ok := c.Tags.Frame(frame)
	if !ok {
		return InvalidID3
	}
	return v
}

func resolveRSS(rest string, c Context) string {
	scope, path, ok := strings.Cut(rest, "::")
	if !ok || path == "" {
		return InvalidRSS
	}
	var tree model.Metadata
	switch scope {
	case "episode":
		tree = c.Episode.Raw
	case "channel":
		tree = c.Channel
	default:
		return InvalidRSS
	}
	v, ok := Lookup(tree, strings.Split(path, "::"))
	if !ok {
		return InvalidRSS
	}
	return v
}

// Lookup walks tree along keys and returns the text found there. Repeated
// elements resolve to their first occurrence and elements with attributes
// resolve to their text content. Anything else is not found.
func Lookup(tree model.Metadata, keys []string) (string, bool) {
	var cur any = tree
	for _, key := range keys {
		node, ok := asMap(firstOf(cur))
		if !ok {
			return "", false
		}
		if cur, ok = node[key]; !ok {
			return "", false
		}
	}
	return scalar(firstOf(cur))
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case model.Metadata, map[string]any:
		node, _ := asMap(t)
		text, ok := node["#text"].(string)
		return text, ok
	default:
		return "", false
	}
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case model.Metadata:
		return t, t != nil
	case map[string]any:
		return t, t != nil
	default:
		return nil, false
	}
}

func firstOf(v any) any {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}
