package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/bryan-buckman/cringecast/internal/config"
	"github.com/bryan-buckman/cringecast/internal/model"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadGlobalCreatesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", "")
	dir := filepath.Join(t.TempDir(), "cfg")

	cfg, created, err := config.LoadGlobal(dir)
	if err != nil {
		t.Fatalf("LoadGlobal returned error: %v", err)
	}
	if !created {
		t.Fatal("expected config.toml to be created")
	}
	if _, err := os.Stat(filepath.Join(dir, config.GlobalFile)); err != nil {
		t.Fatalf("expected config file on disk: %v", err)
	}
	if cfg.NamePattern != config.DefaultNamePattern {
		t.Fatalf("unexpected name pattern %q", cfg.NamePattern)
	}
	if cfg.MaxDays == nil || *cfg.MaxDays != 120 {
		t.Fatalf("expected max_days 120, got %v", cfg.MaxDays)
	}
	if cfg.MaxEpisodes == nil || *cfg.MaxEpisodes != 10 {
		t.Fatalf("expected max_episodes 10, got %v", cfg.MaxEpisodes)
	}
	if cfg.Path != filepath.Join(home, "cringecast") {
		t.Fatalf("unexpected path %q", cfg.Path)
	}
	if cfg.CatalogPath != filepath.Join(home, ".local", "state", "cringecast", "catalog.db") {
		t.Fatalf("unexpected catalog path %q", cfg.CatalogPath)
	}
	policy := cfg.RetryPolicy()
	if policy.Attempts != 4 || policy.Initial != 2*time.Second || policy.Max != 30*time.Second {
		t.Fatalf("unexpected retry policy %+v", policy)
	}
	if cfg.HeaderTimeout() != 30*time.Second {
		t.Fatalf("unexpected header timeout %v", cfg.HeaderTimeout())
	}

	again, created, err := config.LoadGlobal(dir)
	if err != nil {
		t.Fatalf("second LoadGlobal returned error: %v", err)
	}
	if created {
		t.Fatal("expected existing config to be reused")
	}
	if again.Path != cfg.Path {
		t.Fatalf("reload changed path: %q vs %q", again.Path, cfg.Path)
	}
}

func TestLoadGlobalAbsentLimitsStayUnset(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	writeConfig(t, dir, config.GlobalFile, `
path = "/srv/podcasts"

[network]
retries = 0
`)
	cfg, _, err := config.LoadGlobal(dir)
	if err != nil {
		t.Fatalf("LoadGlobal returned error: %v", err)
	}
	if cfg.MaxDays != nil || cfg.MaxEpisodes != nil {
		t.Fatalf("expected unset limits, got %v %v", cfg.MaxDays, cfg.MaxEpisodes)
	}
	if got := cfg.RetryPolicy().Attempts; got != 1 {
		t.Fatalf("expected a single attempt when retries = 0, got %d", got)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults %+v", cfg.Logging)
	}
}

func TestLoadGlobalRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.GlobalFile, "path = \"/x\"\nmax_dayz = 3\n")
	_, _, err := config.LoadGlobal(dir)
	if err == nil || !strings.Contains(err.Error(), "max_dayz") {
		t.Fatalf("expected unknown field error naming max_dayz, got %v", err)
	}
}

func TestLoadGlobalRejectsBadLogFormat(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.GlobalFile, "path = \"/x\"\n[logging]\nformat = \"xml\"\n")
	if _, _, err := config.LoadGlobal(dir); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestDirResolution(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	t.Setenv("XDG_CONFIG_HOME", "")
	dir, err := config.Dir("")
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join(home, ".config", "cringecast") {
		t.Fatalf("unexpected default dir %q", dir)
	}

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	if dir, _ = config.Dir(""); dir != filepath.Join(xdg, "cringecast") {
		t.Fatalf("unexpected XDG dir %q", dir)
	}

	if dir, _ = config.Dir("~/elsewhere"); dir != filepath.Join(home, "elsewhere") {
		t.Fatalf("unexpected override dir %q", dir)
	}
}

func TestLoadPodcastsMissingFile(t *testing.T) {
	_, err := config.LoadPodcasts(t.TempDir())
	if !errors.Is(err, config.ErrNoPodcasts) {
		t.Fatalf("expected ErrNoPodcasts, got %v", err)
	}
}

func TestLoadPodcastsTriState(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.PodcastsFile, `
[zeta]
url = "https://example.com/z.xml"

[alpha]
url = "https://example.com/a.xml"
max_days = false
max_episodes = 3
earliest_date = "2024-01-01"
download_hook = false
custom_tags = { TALB = "Alpha" }
`)
	entries, err := config.LoadPodcasts(dir)
	if err != nil {
		t.Fatalf("LoadPodcasts returned error: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "alpha" || entries[1].Name != "zeta" {
		t.Fatalf("expected entries sorted by name, got %+v", entries)
	}
	alpha := entries[0].Podcast
	if alpha.MaxDays.State != config.Disabled {
		t.Fatalf("expected max_days disabled, got %+v", alpha.MaxDays)
	}
	if alpha.MaxEpisodes != config.Some(3) {
		t.Fatalf("expected max_episodes 3, got %+v", alpha.MaxEpisodes)
	}
	if alpha.EarliestDate != config.Some("2024-01-01") {
		t.Fatalf("unexpected earliest_date %+v", alpha.EarliestDate)
	}
	if alpha.DownloadHook.State != config.Disabled {
		t.Fatalf("expected hook disabled, got %+v", alpha.DownloadHook)
	}
	zeta := entries[1].Podcast
	if zeta.MaxDays.State != config.UseGlobal || zeta.MaxEpisodes.State != config.UseGlobal {
		t.Fatalf("expected zeta to defer to global, got %+v", zeta)
	}
}

func TestLoadPodcastsRejectsBadOption(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.PodcastsFile, "[a]\nurl = \"u\"\nmax_days = true\n")
	if _, err := config.LoadPodcasts(dir); err == nil || !strings.Contains(err.Error(), "max_days") {
		t.Fatalf("expected max_days error, got %v", err)
	}
	writeConfig(t, dir, config.PodcastsFile, "[a]\nurl = \"u\"\nmax_dayz = 3\n")
	if _, err := config.LoadPodcasts(dir); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestOptionResolve(t *testing.T) {
	global := 7
	if got := (config.Option[int]{}).Resolve(&global); got == nil || *got != 7 {
		t.Fatalf("use-global resolved to %v", got)
	}
	if got := (config.Option[int]{}).Resolve(nil); got != nil {
		t.Fatalf("use-global without global resolved to %v", *got)
	}
	if got := config.Some(2).Resolve(&global); got == nil || *got != 2 {
		t.Fatalf("enabled resolved to %v", got)
	}
	if got := config.Off[int]().Resolve(&global); got != nil {
		t.Fatalf("disabled resolved to %v", *got)
	}
}

func globalFixture() *config.Global {
	days, eps := 120, 10
	return &config.Global{
		NamePattern:  config.DefaultNamePattern,
		MaxDays:      &days,
		MaxEpisodes:  &eps,
		Path:         "/srv/podcasts",
		CustomTags:   map[string]string{"TCON": "Podcast", "TALB": "Global"},
		DownloadHook: "/usr/local/bin/hook",
	}
}

func TestResolveStandard(t *testing.T) {
	feed, err := config.Resolve(globalFixture(), "Show", config.Podcast{
		URL:          "https://example.com/feed.xml",
		MaxDays:      config.Off[int](),
		EarliestDate: config.Some("2024-02-03"),
		CustomTags:   map[string]string{"TALB": "Show"},
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if feed.Dir != filepath.Join("/srv/podcasts", "Show") {
		t.Fatalf("unexpected dir %q", feed.Dir)
	}
	if feed.DownloadHook != "/usr/local/bin/hook" {
		t.Fatalf("expected global hook, got %q", feed.DownloadHook)
	}
	if feed.CustomTags["TALB"] != "Show" || feed.CustomTags["TCON"] != "Podcast" {
		t.Fatalf("unexpected tags %v", feed.CustomTags)
	}
	policy, ok := feed.Policy.(model.StandardPolicy)
	if !ok {
		t.Fatalf("expected standard policy, got %T", feed.Policy)
	}
	if policy.MaxAgeDays != nil {
		t.Fatalf("expected max_days disabled, got %d", *policy.MaxAgeDays)
	}
	if policy.MaxEpisodes == nil || *policy.MaxEpisodes != 10 {
		t.Fatalf("expected global max_episodes, got %v", policy.MaxEpisodes)
	}
	want := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	if policy.EarliestDate == nil || !policy.EarliestDate.Equal(want) {
		t.Fatalf("unexpected earliest date %v", policy.EarliestDate)
	}
}

func TestResolveBacklog(t *testing.T) {
	interval := 7
	feed, err := config.Resolve(globalFixture(), "Show", config.Podcast{
		URL:             "https://example.com/feed.xml",
		Path:            "/mnt/other",
		DownloadHook:    config.Off[string](),
		BacklogStart:    "2024-05-01",
		BacklogInterval: &interval,
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	policy, ok := feed.Policy.(model.BacklogPolicy)
	if !ok {
		t.Fatalf("expected backlog policy, got %T", feed.Policy)
	}
	if !policy.Start.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) || policy.IntervalDays != 7 {
		t.Fatalf("unexpected policy %+v", policy)
	}
	if feed.Dir != filepath.Join("/mnt/other", "Show") {
		t.Fatalf("unexpected dir %q", feed.Dir)
	}
	if feed.DownloadHook != "" {
		t.Fatalf("expected hook disabled, got %q", feed.DownloadHook)
	}
}

func TestResolveRejectsInvalidCombinations(t *testing.T) {
	interval, zero := 3, 0
	tests := []struct {
		name    string
		podcast config.Podcast
		want    string
	}{
		{"missing url", config.Podcast{}, "url"},
		{"start without interval", config.Podcast{URL: "u", BacklogStart: "2024-01-01"}, "backlog_interval"},
		{"interval without start", config.Podcast{URL: "u", BacklogInterval: &interval}, "backlog_start"},
		{"bad start", config.Podcast{URL: "u", BacklogStart: "01/02/2024", BacklogInterval: &interval}, "YYYY-MM-DD"},
		{"zero interval", config.Podcast{URL: "u", BacklogStart: "2024-01-01", BacklogInterval: &zero}, "at least 1"},
		{"backlog with max_episodes", config.Podcast{URL: "u", BacklogStart: "2024-01-01", BacklogInterval: &interval, MaxEpisodes: config.Some(2)}, "max_episodes"},
		{"backlog with max_days", config.Podcast{URL: "u", BacklogStart: "2024-01-01", BacklogInterval: &interval, MaxDays: config.Some(2)}, "max_days"},
		{"bad earliest date", config.Podcast{URL: "u", EarliestDate: config.Some("yesterday")}, "earliest_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Resolve(globalFixture(), "Show", tt.podcast)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestAddPodcastsSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.PodcastsFile, "# my shows\n[Existing]\nurl = \"https://example.com/e.xml\"\nmax_days = false\n")

	added, err := config.AddPodcasts(dir, []config.NewPodcast{
		{Name: "Existing", URL: "https://example.com/other.xml"},
		{Name: "Renamed", URL: "https://example.com/e.xml"},
		{Name: "Fresh Show", URL: "https://example.com/f.xml"},
	})
	if err != nil {
		t.Fatalf("AddPodcasts returned error: %v", err)
	}
	if len(added) != 1 || added[0].Name != "Fresh Show" {
		t.Fatalf("unexpected added %+v", added)
	}

	data, err := os.ReadFile(filepath.Join(dir, config.PodcastsFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# my shows\n") {
		t.Fatalf("existing content was rewritten:\n%s", data)
	}
	var decoded map[string]map[string]any
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("result is not valid TOML: %v\n%s", err, data)
	}
	if decoded["Fresh Show"]["url"] != "https://example.com/f.xml" {
		t.Fatalf("new podcast missing: %v", decoded)
	}
	if decoded["Existing"]["max_days"] != false {
		t.Fatalf("existing podcast changed: %v", decoded["Existing"])
	}
}

func TestAddPodcastsCreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "new")
	added, err := config.AddPodcasts(dir, []config.NewPodcast{{Name: "One", URL: "https://example.com/1.xml"}})
	if err != nil {
		t.Fatalf("AddPodcasts returned error: %v", err)
	}
	if len(added) != 1 {
		t.Fatalf("expected one podcast added, got %d", len(added))
	}
	entries, err := config.LoadPodcasts(dir)
	if err != nil {
		t.Fatalf("LoadPodcasts returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].Podcast.URL != "https://example.com/1.xml" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}
