package progress

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestNilReporterIsSafe(t *testing.T) {
	var r *Reporter
	r.Send(Event{Kind: FeedStarted, Feed: "x"})
	r.Close()
}

func TestLogSinkReportsLifecycle(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	off := false
	r := New(Options{Writer: &buf, Logger: logger, Bar: &off})

	r.Send(Event{Kind: FeedStarted, Feed: "Show"})
	r.Send(Event{Kind: EpisodeStarted, Feed: "Show", Title: "Pilot", Index: 1, Count: 2})
	r.Send(Event{Kind: Bytes, Feed: "Show", Written: 10, Total: 20})
	r.Send(Event{Kind: EpisodeDone, Feed: "Show", Title: "Pilot", Written: 2048})
	r.Send(Event{Kind: FeedDone, Feed: "Show", Count: 1})
	r.Send(Event{Kind: FeedFailed, Feed: "Other", Err: errors.New("boom")})
	r.Close()

	out := buf.String()
	for _, want := range []string{
		`msg="downloading episode" feed=Show episode=1/2 title=Pilot`,
		`msg="episode complete" feed=Show title=Pilot size="2.0 kB"`,
		`msg="feed synced" feed=Show downloaded=1`,
		`msg="feed sync failed" feed=Other error=boom`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestConcurrentSendersAndDoubleClose(t *testing.T) {
	var buf bytes.Buffer
	on := true
	r := New(Options{Writer: &buf, FeedNames: []string{"a", "bb"}, Bar: &on})

	var wg sync.WaitGroup
	for _, feed := range []string{"a", "bb"} {
		wg.Add(1)
		go func(feed string) {
			defer wg.Done()
			r.Send(Event{Kind: EpisodeStarted, Feed: feed, Title: "t", Index: 1, Count: 1})
			for i := int64(1); i <= 500; i++ {
				r.Send(Event{Kind: Bytes, Feed: feed, Written: i * 100, Total: 50000})
			}
			r.Send(Event{Kind: FeedDone, Feed: feed, Count: 1})
		}(feed)
	}
	wg.Wait()
	r.Close()
	r.Close()
}

func TestTitleTruncatesByCells(t *testing.T) {
	if got := Title("short", 10); got != "short" {
		t.Fatalf("Title = %q", got)
	}
	got := Title("日本語のタイトルです", 9)
	if w := len([]rune(got)); w > 5 {
		t.Fatalf("Title = %q, too wide", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("Title = %q, want ellipsis", got)
	}
}
