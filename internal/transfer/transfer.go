// Package transfer retrieves episode payloads with resumable downloads.
//
// A transfer writes into a partial file named after the episode id. When a
// partial file already exists its length is sent as a Range offset and the
// response is appended. On completion the partial file is renamed to carry
// the extension derived from the response's content type. Partial files are
// never removed on failure.
package transfer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bryan-buckman/cringecast/internal/logging"
	"github.com/bryan-buckman/cringecast/internal/retry"
)

// PartialSuffix marks an in-progress transfer.
const PartialSuffix = ".partial"

// ProgressFunc receives the bytes written so far and the expected total, or
// -1 when the server did not announce a length.
type ProgressFunc func(written, total int64)

// Options configures a Client.
type Options struct {
	Client    *http.Client
	Retry     retry.Policy
	Logger    *slog.Logger
	UserAgent string
}

// Client performs transfers. It is safe for concurrent use across feeds.
type Client struct {
	http      *http.Client
	retry     retry.Policy
	logger    *slog.Logger
	userAgent string
}

// New creates a transfer client.
func New(opts Options) *Client {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		http:      client,
		retry:     opts.Retry,
		logger:    logger,
		userAgent: opts.UserAgent,
	}
}

// PartialName derives the stable partial file name for an episode id.
func PartialName(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h[:8]) + PartialSuffix
}

// PartialPath is PartialName inside dir.
func PartialPath(dir, key string) string {
	return filepath.Join(dir, PartialName(key))
}

// ResumeOffset returns the length of the partial file at path, or zero when
// no partial file exists.
func ResumeOffset(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat partial file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("partial file %s is not a regular file", path)
	}
	return info.Size(), nil
}

// NewRequest builds the GET for url, asking for the bytes after offset when
// offset is positive.
func NewRequest(ctx context.Context, url string, offset int64) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	return req, nil
}

// Fetch downloads url into dir and returns the completed file's path.
// key identifies the episode and names the partial file. Transient failures
// are retried, each attempt resuming from what is already on disk.
func (c *Client) Fetch(ctx context.Context, url, dir, key string, progress ProgressFunc) (string, error) {
	partial := PartialPath(dir, key)

	var final string
	err := retry.Do(ctx, c.retry, c.logger, "transfer", func(int) error {
		path, err := c.attempt(ctx, url, partial, progress)
		if err != nil {
			return err
		}
		final = path
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("transfer %s: %w", url, err)
	}
	return final, nil
}

func (c *Client) attempt(ctx context.Context, url, partial string, progress ProgressFunc) (string, error) {
	offset, err := ResumeOffset(partial)
	if err != nil {
		return "", retry.Permanent(err)
	}
	req, err := NewRequest(ctx, url, offset)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	var total int64 = -1
	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		_, size, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if ok && size == offset {
			c.logger.Debug("partial file already complete", "path", partial, "bytes", offset)
			if progress != nil {
				progress(offset, offset)
			}
			return complete(partial, "")
		}
		if err := os.Truncate(partial, 0); err != nil {
			return "", retry.Permanent(fmt.Errorf("reset partial file: %w", err))
		}
		return "", fmt.Errorf("partial file of %d bytes does not match remote resource, restarting", offset)
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		start, size, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if ok && start != offset {
			if err := os.Truncate(partial, 0); err != nil {
				return "", retry.Permanent(fmt.Errorf("reset partial file: %w", err))
			}
			return "", fmt.Errorf("server resumed at byte %d instead of %d, restarting", start, offset)
		}
		flags = os.O_WRONLY | os.O_APPEND
		total = size
		if !ok && resp.ContentLength >= 0 {
			total = offset + resp.ContentLength
		}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// A full response to a range request replaces whatever was on disk.
		if offset > 0 {
			c.logger.Debug("server ignored range request, restarting", "path", partial, "offset", offset)
		}
		offset = 0
		total = resp.ContentLength
	default:
		return "", retry.CheckStatus(resp)
	}

	f, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("open partial file: %w", err))
	}
	w := &progressWriter{w: f, written: offset, total: total, progress: progress}
	if progress != nil {
		progress(offset, total)
	}
	_, copyErr := io.Copy(w, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		var pe *fs.PathError
		if errors.As(copyErr, &pe) {
			return "", retry.Permanent(fmt.Errorf("write partial file: %w", copyErr))
		}
		return "", fmt.Errorf("read body: %w", copyErr)
	}
	if closeErr != nil {
		return "", retry.Permanent(fmt.Errorf("close partial file: %w", closeErr))
	}

	return complete(partial, resp.Header.Get("Content-Type"))
}

// complete renames the partial file to its final name.
func complete(partial, contentType string) (string, error) {
	ext := Extension(contentType)
	if ext == "" {
		ext = sniffExtension(partial)
	}
	final := strings.TrimSuffix(partial, PartialSuffix) + "." + ext
	if err := os.Rename(partial, final); err != nil {
		return "", retry.Permanent(fmt.Errorf("finalize transfer: %w", err))
	}
	return final, nil
}

type progressWriter struct {
	w        io.Writer
	written  int64
	total    int64
	progress ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.progress != nil && n > 0 {
		p.progress(p.written, p.total)
	}
	return n, err
}

// parseContentRange reads "bytes start-end/size" or "bytes */size".
func parseContentRange(v string) (start, size int64, ok bool) {
	v = strings.TrimSpace(v)
	rest, found := strings.CutPrefix(v, "bytes ")
	if !found {
		return 0, 0, false
	}
	span, total, found := strings.Cut(rest, "/")
	if !found || total == "*" {
		return 0, 0, false
	}
	size, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if span == "*" {
		return 0, size, true
	}
	from, _, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, false
	}
	start, err = strconv.ParseInt(strings.TrimSpace(from), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, size, true
}
