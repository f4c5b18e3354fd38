// Package progress reports sync progress from many feed goroutines through a
// single consumer. On a terminal it draws a byte counter bar, otherwise it
// writes structured log lines.
package progress

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/schollz/progressbar/v3"
)

// Kind identifies a progress event.
type Kind int

const (
	FeedStarted Kind = iota
	EpisodeStarted
	Bytes
	EpisodeDone
	FeedDone
	FeedFailed
)

// Event is one progress update. Index is 1-based within Count.
type Event struct {
	Kind    Kind
	Feed    string
	Title   string
	Index   int
	Count   int
	Written int64
	Total   int64
	Err     error
}

const (
	queueSize     = 256
	maxTitleWidth = 48
)

// Options configures a Reporter.
type Options struct {
	Writer io.Writer
	Logger *slog.Logger
	// FeedNames sizes the feed column of the bar description.
	FeedNames []string
	// Bar forces the terminal bar on or off. Nil detects a terminal.
	Bar *bool
}

// Reporter fans progress events into one consumer goroutine. A nil Reporter
// discards everything.
type Reporter struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

type sink interface {
	handle(Event)
	finish()
}

// New starts a Reporter. Close must be called to flush it.
func New(opts Options) *Reporter {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	useBar := isTerminal(w)
	if opts.Bar != nil {
		useBar = *opts.Bar
	}

	var s sink
	if useBar {
		s = newBarSink(w, opts.FeedNames)
	} else {
		logger := opts.Logger
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(w, nil))
		}
		s = &logSink{logger: logger}
	}

	r := &Reporter{
		events: make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		for ev := range r.events {
			s.handle(ev)
		}
		s.finish()
	}()
	return r
}

// Send queues ev. It blocks only while the queue is full.
func (r *Reporter) Send(ev Event) {
	if r == nil {
		return
	}
	r.events <- ev
}

// Close stops accepting events and waits until all queued ones are handled.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() { close(r.events) })
	<-r.done
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Title shortens s to at most width terminal cells.
func Title(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

type logSink struct {
	logger *slog.Logger
}

func (l *logSink) handle(ev Event) {
	switch ev.Kind {
	case EpisodeStarted:
		l.logger.Info("downloading episode",
			"feed", ev.Feed,
			"episode", fmt.Sprintf("%d/%d", ev.Index, ev.Count),
			"title", ev.Title,
		)
	case EpisodeDone:
		attrs := []any{"feed", ev.Feed, "title", ev.Title}
		if ev.Written > 0 {
			attrs = append(attrs, "size", humanize.Bytes(uint64(ev.Written)))
		}
		l.logger.Info("episode complete", attrs...)
	case FeedDone:
		l.logger.Info("feed synced", "feed", ev.Feed, "downloaded", ev.Count)
	case FeedFailed:
		l.logger.Error("feed sync failed", "feed", ev.Feed, "error", ev.Err)
	}
}

func (l *logSink) finish() {}

type barSink struct {
	w         io.Writer
	bar       *progressbar.ProgressBar
	nameWidth int
	written   map[string]int64
}

func newBarSink(w io.Writer, names []string) *barSink {
	width := 0
	for _, n := range names {
		width = max(width, runewidth.StringWidth(n))
	}
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetDescription("syncing"),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return &barSink{w: w, bar: bar, nameWidth: width, written: map[string]int64{}}
}

func (b *barSink) handle(ev Event) {
	switch ev.Kind {
	case EpisodeStarted:
		b.written[ev.Feed] = 0
		b.bar.Describe(fmt.Sprintf("%s %d/%d %s",
			runewidth.FillRight(ev.Feed, b.nameWidth), ev.Index, ev.Count, Title(ev.Title, maxTitleWidth)))
	case Bytes:
		delta := ev.Written - b.written[ev.Feed]
		if delta > 0 {
			_ = b.bar.Add64(delta)
		}
		b.written[ev.Feed] = ev.Written
	case FeedDone:
		_, _ = progressbar.Bprintln(b.bar, fmt.Sprintf("✅ %s (%d new)", runewidth.FillRight(ev.Feed, b.nameWidth), ev.Count))
	case FeedFailed:
		_, _ = progressbar.Bprintln(b.bar, fmt.Sprintf("❌ %s %v", runewidth.FillRight(ev.Feed, b.nameWidth), ev.Err))
	}
}

func (b *barSink) finish() {
	_ = b.bar.Finish()
}
