package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrNoPodcasts is returned when podcasts.toml does not exist.
var ErrNoPodcasts = errors.New("podcasts.toml not found")

// State is the variant of an overridable podcast field.
type State int

const (
	// UseGlobal defers to config.toml.
	UseGlobal State = iota
	// Enabled uses the podcast's own value.
	Enabled
	// Disabled turns the setting off for this podcast.
	Disabled
)

// Option is a per-podcast override of a global setting.
type Option[T any] struct {
	State State
	Value T
}

// Some returns an enabled option.
func Some[T any](v T) Option[T] { return Option[T]{State: Enabled, Value: v} }

// Off returns a disabled option.
func Off[T any]() Option[T] { return Option[T]{State: Disabled} }

// IsEnabled reports whether the podcast sets its own value.
func (o Option[T]) IsEnabled() bool { return o.State == Enabled }

// Resolve returns the effective value, or nil when the setting is off.
func (o Option[T]) Resolve(global *T) *T {
	switch o.State {
	case Enabled:
		v := o.Value
		return &v
	case Disabled:
		return nil
	default:
		if global == nil {
			return nil
		}
		v := *global
		return &v
	}
}

// Podcast is one table of podcasts.toml.
type Podcast struct {
	URL             string
	Path            string
	MaxDays         Option[int]
	MaxEpisodes     Option[int]
	EarliestDate    Option[string]
	DownloadHook    Option[string]
	BacklogStart    string
	BacklogInterval *int
	CustomTags      map[string]string
}

// Entry is a named podcast in file order of its name.
type Entry struct {
	Name    string
	Podcast Podcast
}

type rawPodcast struct {
	URL             string            `toml:"url"`
	Path            string            `toml:"path,omitempty"`
	MaxDays         any               `toml:"max_days,omitempty"`
	MaxEpisodes     any               `toml:"max_episodes,omitempty"`
	EarliestDate    any               `toml:"earliest_date,omitempty"`
	DownloadHook    any               `toml:"download_hook,omitempty"`
	BacklogStart    string            `toml:"backlog_start,omitempty"`
	BacklogInterval *int              `toml:"backlog_interval,omitempty"`
	CustomTags      map[string]string `toml:"custom_tags,omitempty"`
}

// LoadPodcasts reads dir/podcasts.toml, sorted by podcast name.
func LoadPodcasts(dir string) ([]Entry, error) {
	path := filepath.Join(dir, PodcastsFile)
	raw, err := readPodcasts(path)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(raw))
	for name, r := range raw {
		p, err := r.convert()
		if err != nil {
			return nil, fmt.Errorf("podcast %q: %w", name, err)
		}
		entries = append(entries, Entry{Name: name, Podcast: p})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func readPodcasts(path string) (map[string]rawPodcast, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: create %s to get started", ErrNoPodcasts, path)
		}
		return nil, fmt.Errorf("read podcasts: %w", err)
	}
	raw := map[string]rawPodcast{}
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, describe(err))
	}
	return raw, nil
}

func (r rawPodcast) convert() (Podcast, error) {
	p := Podcast{
		URL:             strings.TrimSpace(r.URL),
		BacklogStart:    strings.TrimSpace(r.BacklogStart),
		BacklogInterval: r.BacklogInterval,
		CustomTags:      r.CustomTags,
	}
	var err error
	if p.Path, err = expandPath(strings.TrimSpace(r.Path)); err != nil {
		return Podcast{}, fmt.Errorf("path: %w", err)
	}
	if p.MaxDays, err = intOption("max_days", r.MaxDays); err != nil {
		return Podcast{}, err
	}
	if p.MaxEpisodes, err = intOption("max_episodes", r.MaxEpisodes); err != nil {
		return Podcast{}, err
	}
	if p.EarliestDate, err = stringOption("earliest_date", r.EarliestDate); err != nil {
		return Podcast{}, err
	}
	if p.DownloadHook, err = stringOption("download_hook", r.DownloadHook); err != nil {
		return Podcast{}, err
	}
	if p.DownloadHook.IsEnabled() {
		if p.DownloadHook.Value, err = expandPath(p.DownloadHook.Value); err != nil {
			return Podcast{}, fmt.Errorf("download_hook: %w", err)
		}
	}
	return p, nil
}

func intOption(field string, v any) (Option[int], error) {
	switch t := v.(type) {
	case nil:
		return Option[int]{}, nil
	case int64:
		return Some(int(t)), nil
	case bool:
		if !t {
			return Off[int](), nil
		}
	}
	return Option[int]{}, fmt.Errorf("%s: expected an integer or false, got %v", field, v)
}

func stringOption(field string, v any) (Option[string], error) {
	switch t := v.(type) {
	case nil:
		return Option[string]{}, nil
	case string:
		return Some(t), nil
	case bool:
		if !t {
			return Off[string](), nil
		}
	}
	return Option[string]{}, fmt.Errorf("%s: expected a string or false, got %v", field, v)
}

// NewPodcast is a subscription to add to podcasts.toml.
type NewPodcast struct {
	Name string
	URL  string
}

// AddPodcasts appends subscriptions to dir/podcasts.toml, creating it when
// needed. Entries whose name or URL is already configured are skipped. The
// existing file is left untouched apart from the appended tables.
func AddPodcasts(dir string, podcasts []NewPodcast) (added []NewPodcast, err error) {
	path := filepath.Join(dir, PodcastsFile)
	existing, err := readPodcasts(path)
	if err != nil && !errors.Is(err, ErrNoPodcasts) {
		return nil, err
	}

	names := map[string]bool{}
	urls := map[string]bool{}
	for name, p := range existing {
		names[name] = true
		urls[strings.TrimSpace(p.URL)] = true
	}

	tables := map[string]rawPodcast{}
	for _, p := range podcasts {
		name := strings.TrimSpace(p.Name)
		url := strings.TrimSpace(p.URL)
		if name == "" || url == "" || names[name] || urls[url] {
			continue
		}
		names[name] = true
		urls[url] = true
		tables[name] = rawPodcast{URL: url}
		added = append(added, NewPodcast{Name: name, URL: url})
	}
	if len(added) == 0 {
		return nil, nil
	}

	data, err := toml.Marshal(tables)
	if err != nil {
		return nil, fmt.Errorf("encode podcasts: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open podcasts: %w", err)
	}
	defer f.Close()
	if len(existing) > 0 {
		data = append([]byte("\n"), data...)
	}
	if _, err := f.Write(data); err != nil {
		return nil, fmt.Errorf("write podcasts: %w", err)
	}
	return added, nil
}
