package naming_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bryan-buckman/cringecast/internal/model"
	"github.com/bryan-buckman/cringecast/internal/naming"
	"github.com/bryan-buckman/cringecast/internal/testsupport"
)

func fixtureContext() naming.Context {
	return naming.Context{
		Episode: model.Episode{
			Title:     "Pilot",
			ID:        "guid-1",
			Published: time.Date(2024, 3, 9, 22, 30, 0, 0, time.FixedZone("PST", -8*3600)),
			Raw: model.Metadata{
				"title": "Pilot",
				"guid":  model.Metadata{"@isPermaLink": "false", "#text": "guid-1"},
				"itunes:image": model.Metadata{
					"@href": "https://example.com/cover.jpg",
				},
				"category":       []any{"Comedy", "News"},
				"itunes:summary": model.Metadata{"b": "bold"},
			},
		},
		Channel: model.Metadata{
			"title":         "The Show",
			"itunes:author": "Someone",
		},
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		tmpl string
		want []naming.Segment
	}{
		{"plain", []naming.Segment{{Literal: "plain"}}},
		{"{a::b}", []naming.Segment{{Tag: "a::b"}}},
		{"x {a} y {b}", []naming.Segment{{Literal: "x "}, {Tag: "a"}, {Literal: " y "}, {Tag: "b"}}},
		{"{} {{x}}", []naming.Segment{{Literal: "{} "}, {Tag: "{x"}, {Literal: "}"}}},
		{"open {never closed", []naming.Segment{{Literal: "open {never closed"}}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := naming.Parse(tt.tmpl); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Parse(%q) = %#v, want %#v", tt.tmpl, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	r := naming.NewRenderer()
	c := fixtureContext()
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"pubdate is UTC", "{pubdate::%Y-%m-%d %H%M}", "2024-03-10 0630"},
		{"episode field", "{rss::episode::title}", "Pilot"},
		{"element text", "{rss::episode::guid}", "guid-1"},
		{"attribute", "{rss::episode::itunes:image::@href}", "https://example.com/cover.jpg"},
		{"repeated element", "{rss::episode::category}", "Comedy"},
		{"channel field", "{rss::channel::itunes:author} - {rss::channel::title}", "Someone - The Show"},
		{"missing field", "{rss::episode::nope}", naming.InvalidRSS},
		{"non-scalar field", "{rss::episode::itunes:summary}", naming.InvalidRSS},
		{"bad scope", "{rss::feed::title}", naming.InvalidRSS},
		{"no tags written", "[{id3::TIT2}]", "[]"},
		{"unknown namespace", "{foo::bar}", naming.UnknownTag},
		{"no namespace", "{title}", naming.UnknownTag},
		{"literal only", "episode.mp3", "episode.mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Render(tt.tmpl, c); got != tt.want {
				t.Fatalf("Render(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestRenderID3(t *testing.T) {
	r := naming.NewRenderer()
	c := fixtureContext()
	c.Tags = naming.Frames{"TIT2": "Pilot Episode"}

	if got := r.Render("{id3::TIT2}", c); got != "Pilot Episode" {
		t.Fatalf("frame lookup = %q", got)
	}
	if got := r.Render("{id3::TALB}", c); got != naming.InvalidID3 {
		t.Fatalf("missing frame = %q, want sentinel", got)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	r := naming.NewRenderer()
	c := fixtureContext()
	tmpl := "{pubdate::%Y-%m-%d} {rss::episode::title}"
	first := r.Render(tmpl, c)
	for i := 0; i < 20; i++ {
		if got := r.Render(tmpl, c); got != first {
			t.Fatalf("render %d = %q, first = %q", i, got, first)
		}
	}
	if first != "2024-03-10 Pilot" {
		t.Fatalf("unexpected render %q", first)
	}
}

func TestRegisterCustomNamespace(t *testing.T) {
	r := naming.NewRenderer()
	r.Register("upper", func(rest string, _ naming.Context) string { return strings.ToUpper(rest) })
	if got := r.Render("{upper::abc}", naming.Context{}); got != "ABC" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a/b\\c", "a-b-c"},
		{"  line\nbreak\t x ", "line break x"},
		{"cafe\u0301", "caf\u00e9"},
		{"..", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := naming.Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenameKeepsExtension(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteFile(t, dir, "0011223344556677.mp3", []byte("audio"))

	got, err := naming.Rename(src, "2024-03-10 Pilot")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if want := filepath.Join(dir, "2024-03-10 Pilot.mp3"); got != want {
		t.Fatalf("Rename = %q, want %q", got, want)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source should be gone, stat err = %v", err)
	}
}

func TestRenameAvoidsOverwrite(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, dir, "Same.mp3", []byte("first"))
	testsupport.WriteFile(t, dir, "Same - dup1.mp3", []byte("second"))
	src := testsupport.WriteFile(t, dir, "x.mp3", []byte("third"))

	got, err := naming.Rename(src, "Same")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if filepath.Base(got) != "Same - dup2.mp3" {
		t.Fatalf("Rename = %q", got)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "Same.mp3"))
	if string(data) != "first" {
		t.Fatal("existing file was overwritten")
	}
}

func TestRenameToSelfIsNoop(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteFile(t, dir, "Pilot.mp3", []byte("audio"))
	got, err := naming.Rename(src, "Pilot")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got != src {
		t.Fatalf("Rename = %q, want %q", got, src)
	}
}

func TestRenameTruncatesLongNames(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteFile(t, dir, "a.m4a", []byte("audio"))
	got, err := naming.Rename(src, strings.Repeat("é", 300))
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	base := filepath.Base(got)
	if len(base) > naming.MaxNameBytes {
		t.Fatalf("name is %d bytes", len(base))
	}
	if !strings.HasSuffix(base, ".m4a") {
		t.Fatalf("extension lost: %q", base)
	}
}

func TestRenameBlankNameKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	src := testsupport.WriteFile(t, dir, "abc.mp3", []byte("audio"))
	got, err := naming.Rename(src, "\n\t ")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got != src {
		t.Fatalf("Rename = %q, want %q", got, src)
	}
}
