// Package testsupport provides fixtures shared by package tests.
package testsupport

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Episode describes one item served by a FeedServer.
type Episode struct {
	GUID        string
	Title       string
	Published   time.Time
	ContentType string
	Body        []byte
	NoEnclosure bool
	Extra       string // raw XML placed inside <item>
}

// RecordedRequest captures what a client sent.
type RecordedRequest struct {
	Path      string
	Range     string
	UserAgent string
}

// FeedServer serves an RSS listing at /feed.xml and enclosures at
// /media/{n}. Enclosures honour Range requests.
type FeedServer struct {
	*httptest.Server

	mu         sync.Mutex
	title      string
	episodes   []Episode
	feedStatus int
	truncate   map[int]int
	ignoreRng  bool
	requests   []RecordedRequest
}

// NewFeedServer starts a fixture server that is closed with the test.
func NewFeedServer(t testing.TB, title string, episodes ...Episode) *FeedServer {
	t.Helper()
	s := &FeedServer{
		title:    title,
		episodes: episodes,
		truncate: map[int]int{},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.Get("/feed.xml", s.handleFeed)
	r.Get("/media/{n}", s.handleMedia)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)
	return s
}

// FeedURL is the listing location.
func (s *FeedServer) FeedURL() string {
	return s.URL + "/feed.xml"
}

// MediaURL is the enclosure location of the n-th configured episode.
func (s *FeedServer) MediaURL(n int) string {
	return fmt.Sprintf("%s/media/%d", s.URL, n)
}

// SetEpisodes replaces the served episodes.
func (s *FeedServer) SetEpisodes(episodes ...Episode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes = episodes
}

// SetFeedStatus makes /feed.xml answer with code. Zero restores 200.
func (s *FeedServer) SetFeedStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedStatus = code
}

// TruncateNext makes the next full response for episode n stop after
// limit bytes while still announcing the full length.
func (s *FeedServer) TruncateNext(n, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncate[n] = limit
}

// IgnoreRange makes enclosures always answer 200 with the full body.
func (s *FeedServer) IgnoreRange(ignore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoreRng = ignore
}

// Requests returns every request seen so far.
func (s *FeedServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// MediaRequests returns the requests made for enclosure n.
func (s *FeedServer) MediaRequests(n int) []RecordedRequest {
	path := fmt.Sprintf("/media/%d", n)
	var out []RecordedRequest
	for _, req := range s.Requests() {
		if req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

func (s *FeedServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Path:      r.URL.Path,
			Range:     r.Header.Get("Range"),
			UserAgent: r.UserAgent(),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *FeedServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.feedStatus
	body := RSS(s.title, s.URL, s.episodes)
	s.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func (s *FeedServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	s.mu.Lock()
	if err != nil || n < 0 || n >= len(s.episodes) {
		s.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	ep := s.episodes[n]
	limit, truncated := s.truncate[n]
	ignoreRange := s.ignoreRng
	if truncated && r.Header.Get("Range") == "" {
		delete(s.truncate, n)
	} else {
		truncated = false
	}
	s.mu.Unlock()

	if ep.ContentType != "" {
		w.Header().Set("Content-Type", ep.ContentType)
	}

	switch {
	case truncated:
		w.Header().Set("Content-Length", strconv.Itoa(len(ep.Body)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(ep.Body[:min(limit, len(ep.Body))])
	case ignoreRange:
		r.Header.Del("Range")
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(ep.Body))
	default:
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(ep.Body))
	}
}

// RSS renders a podcast feed whose enclosures point at base/media/{n}.
func RSS(title, base string, episodes []Episode) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">` + "\n")
	b.WriteString("<channel>\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", escape(title))
	b.WriteString("<link>https://example.com/show</link>\n")
	b.WriteString("<description>Fixture podcast</description>\n")
	b.WriteString("<itunes:author>Fixture Author</itunes:author>\n")
	for i, ep := range episodes {
		b.WriteString("<item>\n")
		fmt.Fprintf(&b, "<title>%s</title>\n", escape(ep.Title))
		if ep.GUID != "" {
			fmt.Fprintf(&b, "<guid isPermaLink=\"false\">%s</guid>\n", escape(ep.GUID))
		}
		if !ep.Published.IsZero() {
			fmt.Fprintf(&b, "<pubDate>%s</pubDate>\n", ep.Published.UTC().Format(time.RFC1123Z))
		}
		if !ep.NoEnclosure {
			ct := ep.ContentType
			if ct == "" {
				ct = "audio/mpeg"
			}
			fmt.Fprintf(&b, "<enclosure url=\"%s/media/%d\" length=\"%d\" type=\"%s\"/>\n", base, i, len(ep.Body), escape(ct))
		}
		fmt.Fprintf(&b, "<itunes:episode>%d</itunes:episode>\n", i+1)
		b.WriteString(ep.Extra)
		b.WriteString("</item>\n")
	}
	b.WriteString("</channel>\n</rss>\n")
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
