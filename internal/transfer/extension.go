package transfer

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// fallbackExtension is used when neither the header nor the content
// identifies the payload.
const fallbackExtension = "bin"

// knownExtensions covers enclosure types the platform MIME table often lacks.
var knownExtensions = map[string][]string{
	"audio/mpeg":      {"mpga", "mp3"},
	"audio/mpeg3":     {"mp3"},
	"audio/mp3":       {"mp3"},
	"audio/mpg":       {"mp3"},
	"audio/x-mpeg":    {"mp3"},
	"audio/x-mp3":     {"mp3"},
	"audio/x-mpeg-3":  {"mp3"},
	"audio/mp4":       {"m4a", "mp4"},
	"audio/x-m4a":     {"m4a"},
	"audio/m4a":       {"m4a"},
	"audio/aac":       {"aac"},
	"audio/x-aac":     {"aac"},
	"audio/ogg":       {"ogg", "oga", "opus"},
	"audio/opus":      {"opus"},
	"audio/wav":       {"wav"},
	"audio/x-wav":     {"wav"},
	"audio/flac":      {"flac"},
	"audio/x-flac":    {"flac"},
	"video/mp4":       {"mp4", "m4v"},
	"video/x-m4v":     {"m4v"},
	"video/quicktime": {"mov"},
	"video/webm":      {"webm"},
	"application/pdf": {"pdf"},
}

// genericTypes carry no information about the payload.
var genericTypes = map[string]bool{
	"application/octet-stream":   true,
	"binary/octet-stream":        true,
	"application/download":       true,
	"application/force-download": true,
	"application/x-download":     true,
}

// Extension maps a Content-Type header value to a file extension without the
// leading dot. When several extensions are known for the type, mp3 wins:
// audio enclosures are frequently declared as a sibling type of the same
// family. Empty means the header is missing, generic or unknown.
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		return ""
	}
	mediaType = strings.ToLower(mediaType)
	if genericTypes[mediaType] {
		return ""
	}

	candidates := append([]string(nil), knownExtensions[mediaType]...)
	if exts, err := mime.ExtensionsByType(mediaType); err == nil {
		candidates = append(candidates, exts...)
	}
	if m := mimetype.Lookup(mediaType); m != nil {
		candidates = append(candidates, m.Extension())
	}

	var first string
	for _, c := range candidates {
		c = strings.ToLower(strings.TrimPrefix(c, "."))
		if c == "" {
			continue
		}
		if c == "mp3" {
			return c
		}
		if first == "" {
			first = c
		}
	}
	return first
}

// sniffExtension inspects the file content when the header was not useful.
func sniffExtension(path string) string {
	m, err := mimetype.DetectFile(path)
	if err != nil || m == nil {
		return fallbackExtension
	}
	for ; m != nil; m = m.Parent() {
		if ext := strings.TrimPrefix(m.Extension(), "."); ext != "" {
			return ext
		}
	}
	return fallbackExtension
}
