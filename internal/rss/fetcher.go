// Package rss provides feed fetching and parsing.
package rss

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bryan-buckman/cringecast/internal/logging"
	"github.com/bryan-buckman/cringecast/internal/model"
	"github.com/bryan-buckman/cringecast/internal/retry"
)

// UserAgent is sent with listing requests. Some feed hosts reject the
// default Go client identifier.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0"

// Concurrency settings
const (
	// MaxConcurrencyPerDomain limits parallel listing requests to any single domain
	MaxConcurrencyPerDomain = 2
	// DelayBetweenDomainRequests is the minimum delay between requests to the same domain
	DelayBetweenDomainRequests = 500 * time.Millisecond
	// maxListingBytes caps how much of a listing response is read.
	maxListingBytes = 64 << 20
)

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
type domainLimiter struct {
	mu          sync.Mutex
	delay       time.Duration
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

// newDomainLimiter creates a new per-domain rate limiter.
func newDomainLimiter(delay time.Duration) *domainLimiter {
	return &domainLimiter{
		delay:       delay,
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire gets a slot for the domain, blocking if necessary.
// It also enforces the minimum delay between requests to the same domain.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, MaxConcurrencyPerDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if !lastReq.IsZero() && dl.delay > 0 {
		elapsed := time.Since(lastReq)
		if elapsed < dl.delay {
			select {
			case <-time.After(dl.delay - elapsed):
			case <-ctx.Done():
				// Release the semaphore on cancel
				<-sem
				return ctx.Err()
			}
		}
	}

	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL // fallback to full URL
	}
	return u.Host
}

// Options configures a Fetcher.
type Options struct {
	Client *http.Client
	Retry  retry.Policy
	Logger *slog.Logger
	// DomainDelay overrides DelayBetweenDomainRequests. Negative disables it.
	DomainDelay time.Duration
}

// Fetcher retrieves and parses feed listings.
type Fetcher struct {
	client        *http.Client
	retry         retry.Policy
	logger        *slog.Logger
	domainLimiter *domainLimiter
}

// NewFetcher creates a listing fetcher.
func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	delay := opts.DomainDelay
	if delay == 0 {
		delay = DelayBetweenDomainRequests
	}
	return &Fetcher{
		client:        client,
		retry:         opts.Retry,
		logger:        logger,
		domainLimiter: newDomainLimiter(delay),
	}
}

// Fetch downloads the listing at feedURL and parses it into episodes.
// A non-success HTTP status is an error.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*model.Listing, error) {
	// Apply per-domain rate limiting
	domain := extractDomain(feedURL)
	if err := f.domainLimiter.acquire(ctx, domain); err != nil {
		return nil, fmt.Errorf("rate limit cancelled for %s: %w", feedURL, err)
	}
	defer f.domainLimiter.release(domain)

	var body []byte
	err := retry.Do(ctx, f.retry, f.logger, "fetch listing", func(int) error {
		data, err := f.get(ctx, feedURL)
		if err != nil {
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}

	listing, err := ParseListing(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	f.logger.Debug("listing fetched",
		"url", feedURL,
		"bytes", len(body),
		"episodes", len(listing.Episodes),
	)
	return listing, nil
}

func (f *Fetcher) get(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := retry.CheckStatus(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
