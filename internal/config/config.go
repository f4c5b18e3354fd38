// Package config loads cringecast's two TOML files.
//
// config.toml holds global defaults and is created on first use.
// podcasts.toml holds one table per podcast; its overridable fields are
// tri-state (absent, a value, or false) and are resolved against the global
// file into a model.Feed before the sync engine sees them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/bryan-buckman/cringecast/internal/retry"
)

// AppName names the configuration, state and default download directories.
const AppName = "cringecast"

const (
	GlobalFile   = "config.toml"
	PodcastsFile = "podcasts.toml"

	DefaultNamePattern = "{pubdate::%Y-%m-%d} {rss::episode::title}"
	defaultPath        = "~/" + AppName
	maxRetryDelay      = 30 * time.Second
)

// Global is the content of config.toml.
type Global struct {
	NamePattern  string            `toml:"name_pattern"`
	MaxDays      *int              `toml:"max_days,omitempty"`
	MaxEpisodes  *int              `toml:"max_episodes,omitempty"`
	Path         string            `toml:"path"`
	EarliestDate string            `toml:"earliest_date,omitempty"`
	CustomTags   map[string]string `toml:"custom_tags,omitempty"`
	DownloadHook string            `toml:"download_hook,omitempty"`
	CatalogPath  string            `toml:"catalog_path,omitempty"`
	Logging      Logging           `toml:"logging"`
	Network      Network           `toml:"network"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Network configures retries and timeouts for every HTTP request.
type Network struct {
	Retries              *int `toml:"retries"`
	RetryDelaySeconds    int  `toml:"retry_delay_seconds"`
	HeaderTimeoutSeconds int  `toml:"header_timeout_seconds"`
}

func intPtr(v int) *int { return &v }

// DefaultGlobal returns the configuration written on first use.
func DefaultGlobal() Global {
	return Global{
		NamePattern: DefaultNamePattern,
		MaxDays:     intPtr(120),
		MaxEpisodes: intPtr(10),
		Path:        defaultPath,
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		Network: Network{
			Retries:              intPtr(3),
			RetryDelaySeconds:    2,
			HeaderTimeoutSeconds: 30,
		},
	}
}

// Dir resolves the configuration directory: override when set, otherwise
// $XDG_CONFIG_HOME/cringecast, otherwise ~/.config/cringecast.
func Dir(override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return expandPath(override)
	}
	if base, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && strings.TrimSpace(base) != "" {
		return expandPath(filepath.Join(base, AppName))
	}
	return expandPath(filepath.Join("~", ".config", AppName))
}

// StateDir is where the run lock and the catalog live.
func StateDir() (string, error) {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && strings.TrimSpace(base) != "" {
		return expandPath(filepath.Join(base, AppName))
	}
	return expandPath(filepath.Join("~", ".local", "state", AppName))
}

// LoadGlobal reads dir/config.toml, writing the defaults first when the file
// does not exist. created reports whether that happened.
func LoadGlobal(dir string) (cfg *Global, created bool, err error) {
	path := filepath.Join(dir, GlobalFile)
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("stat config: %w", err)
		}
		if err := writeDefaultGlobal(path); err != nil {
			return nil, false, err
		}
		created = true
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var g Global
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&g); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", path, describe(err))
	}
	if err := g.normalize(); err != nil {
		return nil, false, err
	}
	if err := g.Validate(); err != nil {
		return nil, false, err
	}
	return &g, created, nil
}

func writeDefaultGlobal(path string) error {
	data, err := toml.Marshal(DefaultGlobal())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func (g *Global) normalize() error {
	defaults := DefaultGlobal()
	if strings.TrimSpace(g.NamePattern) == "" {
		g.NamePattern = defaults.NamePattern
	}
	if strings.TrimSpace(g.Path) == "" {
		g.Path = defaults.Path
	}
	var err error
	if g.Path, err = expandPath(g.Path); err != nil {
		return fmt.Errorf("path: %w", err)
	}
	if g.DownloadHook, err = expandPath(g.DownloadHook); err != nil {
		return fmt.Errorf("download_hook: %w", err)
	}
	if strings.TrimSpace(g.CatalogPath) == "" {
		state, err := StateDir()
		if err != nil {
			return err
		}
		g.CatalogPath = filepath.Join(state, "catalog.db")
	}
	if g.CatalogPath, err = expandPath(g.CatalogPath); err != nil {
		return fmt.Errorf("catalog_path: %w", err)
	}

	g.Logging.Level = strings.ToLower(strings.TrimSpace(g.Logging.Level))
	if g.Logging.Level == "" {
		g.Logging.Level = defaults.Logging.Level
	}
	g.Logging.Format = strings.ToLower(strings.TrimSpace(g.Logging.Format))
	if g.Logging.Format == "" {
		g.Logging.Format = defaults.Logging.Format
	}

	if g.Network.Retries == nil {
		g.Network.Retries = defaults.Network.Retries
	}
	if g.Network.RetryDelaySeconds == 0 {
		g.Network.RetryDelaySeconds = defaults.Network.RetryDelaySeconds
	}
	if g.Network.HeaderTimeoutSeconds == 0 {
		g.Network.HeaderTimeoutSeconds = defaults.Network.HeaderTimeoutSeconds
	}
	return nil
}

// Validate reports the first unusable global setting.
func (g *Global) Validate() error {
	if g.MaxDays != nil && *g.MaxDays < 0 {
		return errors.New("max_days must not be negative")
	}
	if g.MaxEpisodes != nil && *g.MaxEpisodes < 0 {
		return errors.New("max_episodes must not be negative")
	}
	if g.EarliestDate != "" {
		if _, err := parseDate(g.EarliestDate); err != nil {
			return fmt.Errorf("earliest_date: %w", err)
		}
	}
	switch g.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", g.Logging.Format)
	}
	if *g.Network.Retries < 0 {
		return errors.New("network.retries must not be negative")
	}
	if g.Network.RetryDelaySeconds < 0 {
		return errors.New("network.retry_delay_seconds must not be negative")
	}
	if g.Network.HeaderTimeoutSeconds < 0 {
		return errors.New("network.header_timeout_seconds must not be negative")
	}
	return nil
}

// RetryPolicy converts the network section into a retry policy.
func (g *Global) RetryPolicy() retry.Policy {
	retries := 0
	if g.Network.Retries != nil {
		retries = *g.Network.Retries
	}
	return retry.Policy{
		Attempts: retries + 1,
		Initial:  time.Duration(g.Network.RetryDelaySeconds) * time.Second,
		Max:      maxRetryDelay,
	}
}

// HeaderTimeout bounds the wait for response headers. Bodies are not bounded.
func (g *Global) HeaderTimeout() time.Duration {
	return time.Duration(g.Network.HeaderTimeoutSeconds) * time.Second
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (UTC
// midnight).
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD or RFC 3339", value)
	}
	return t, nil
}

// describe adds the offending key to strict-mode decode errors.
func describe(err error) error {
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		keys := make([]string, 0, len(strict.Errors))
		for _, e := range strict.Errors {
			keys = append(keys, strings.Join(e.Key(), "."))
		}
		return fmt.Errorf("unknown field %s", strings.Join(keys, ", "))
	}
	return err
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath applies the tilde and absolute path rules used for every
// configured path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
