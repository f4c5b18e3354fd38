package naming

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxNameBytes is the longest file name most filesystems accept.
const MaxNameBytes = 255

var separatorReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
)

// Sanitize makes rendered text usable as a single path element: separators
// become dashes, control characters and runs of whitespace collapse to one
// space, and the result is NFC normalized.
func Sanitize(name string) string {
	name = separatorReplacer.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), " ")
	name = norm.NFC.String(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// Rename moves path to name within the same directory, keeping the file's
// extension. An existing file is never overwritten; " - dupN" is appended
// instead. The new path is returned.
func Rename(path, name string) (string, error) {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := Sanitize(name)
	if stem == "" {
		stem = strings.TrimSuffix(filepath.Base(path), ext)
	}

	for n := 0; ; n++ {
		suffix := ""
		if n > 0 {
			suffix = fmt.Sprintf(" - dup%d", n)
		}
		candidate := filepath.Join(dir, fitName(stem, suffix, ext))
		if candidate == path {
			return path, nil
		}
		_, err := os.Lstat(candidate)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("check %s: %w", candidate, err)
		}
		if err := os.Rename(path, candidate); err != nil {
			return "", fmt.Errorf("rename %s: %w", filepath.Base(path), err)
		}
		return candidate, nil
	}
}

// fitName joins stem, suffix and ext, shortening stem on a rune boundary so
// the result stays within MaxNameBytes.
func fitName(stem, suffix, ext string) string {
	budget := MaxNameBytes - len(suffix) - len(ext)
	if budget < 1 {
		budget = 1
	}
	for len(stem) > budget {
		_, size := utf8.DecodeLastRuneInString(stem)
		stem = stem[:len(stem)-size]
	}
	stem = strings.TrimRightFunc(stem, unicode.IsSpace)
	return stem + suffix + ext
}
