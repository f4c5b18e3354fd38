// Package ledger persists which episodes of a feed have already been
// retrieved.
//
// Each feed directory holds one append-only file. Every line has the form
//
//	<episode_id> <unix_timestamp> "<title>"
//
// Lines that do not carry at least an id and a timestamp are skipped on load.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileName is the ledger's name inside a feed directory.
const FileName = ".downloaded"

// Entry is one recorded retrieval.
type Entry struct {
	ID         string
	RecordedAt time.Time
	Title      string
}

// Set is the in-memory membership view of a ledger, keyed by episode id.
type Set map[string]Entry

// Contains reports whether id was recorded.
func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Path returns the ledger location for a feed directory.
func Path(feedDir string) string {
	return filepath.Join(feedDir, FileName)
}

// Load reads the ledger at path. A missing file is an empty ledger.
func Load(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	set := Set{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		entry, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		set[entry.ID] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return set, nil
}

// ParseLine decodes one ledger line. ok is false for malformed lines.
func ParseLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Entry{}, false
	}
	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Entry{}, false
	}

	var title string
	rest := strings.TrimSpace(line)
	rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[0]))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
	if len(rest) >= 2 && strings.HasPrefix(rest, `"`) && strings.HasSuffix(rest, `"`) {
		title = rest[1 : len(rest)-1]
	} else {
		title = rest
	}

	return Entry{ID: fields[0], RecordedAt: time.Unix(ts, 0), Title: title}, true
}

// FormatLine encodes one ledger line without the trailing newline.
func FormatLine(id string, recordedAt time.Time, title string) string {
	title = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(title)
	return fmt.Sprintf("%s %d \"%s\"", id, recordedAt.Unix(), title)
}

// Append records one retrieved episode, creating the ledger if needed.
// Callers must only append after the episode's payload is fully on disk.
func Append(path, id string, recordedAt time.Time, title string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("append ledger: empty episode id")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger for append: %w", err)
	}
	if _, err := f.WriteString(FormatLine(id, recordedAt, title) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append ledger: %w", err)
	}
	return f.Close()
}
