package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/bryan-buckman/cringecast/internal/config"
	"github.com/bryan-buckman/cringecast/internal/database"
	"github.com/bryan-buckman/cringecast/internal/logging"
	"github.com/bryan-buckman/cringecast/internal/model"
)

type commandContext struct {
	configDirFlag *string
	feedFlags     *[]string

	configOnce sync.Once
	dir        string
	config     *config.Global
	created    bool
	configErr  error
}

func newCommandContext(configDirFlag *string, feedFlags *[]string) *commandContext {
	return &commandContext{
		configDirFlag: configDirFlag,
		feedFlags:     feedFlags,
	}
}

func (c *commandContext) configDir() (string, error) {
	var override string
	if c.configDirFlag != nil {
		override = *c.configDirFlag
	}
	return config.Dir(override)
}

func (c *commandContext) ensureConfig() (*config.Global, error) {
	c.configOnce.Do(func() {
		dir, err := c.configDir()
		if err != nil {
			c.configErr = fmt.Errorf("resolve config directory: %w", err)
			return
		}
		cfg, created, err := config.LoadGlobal(dir)
		if err != nil {
			c.configErr = err
			return
		}
		c.dir = dir
		c.config = cfg
		c.created = created
	})
	return c.config, c.configErr
}

// loadFeeds reads podcasts.toml on every call so watch mode picks up edits.
func (c *commandContext) loadFeeds() ([]model.Feed, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	entries, err := config.LoadPodcasts(c.dir)
	if err != nil {
		return nil, err
	}
	feeds, err := config.Feeds(cfg, entries)
	if err != nil {
		return nil, err
	}
	return filterFeeds(feeds, c.feedNames())
}

func (c *commandContext) feedNames() []string {
	if c.feedFlags == nil {
		return nil
	}
	return *c.feedFlags
}

func filterFeeds(feeds []model.Feed, names []string) ([]model.Feed, error) {
	if len(names) == 0 {
		return feeds, nil
	}
	byName := make(map[string]model.Feed, len(feeds))
	for _, f := range feeds {
		byName[f.Name] = f
	}
	var out []model.Feed
	var unknown []string
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if seen[name] {
			continue
		}
		seen[name] = true
		f, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, f)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown podcast(s): %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

func (c *commandContext) logger(w io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg, w)
}

func (c *commandContext) httpClient() (*http.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.HeaderTimeout()
	return &http.Client{Transport: transport}, nil
}

// openCatalog returns nil when the catalog cannot be opened; the sync itself
// does not depend on it.
func (c *commandContext) openCatalog(logger *slog.Logger) *database.DB {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil
	}
	db, err := database.New(cfg.CatalogPath)
	if err != nil {
		logger.Warn("catalog unavailable", "path", cfg.CatalogPath, "error", err)
		return nil
	}
	return db
}

func runLock() (*flock.Flock, error) {
	state, err := config.StateDir()
	if err != nil {
		return nil, fmt.Errorf("resolve state directory: %w", err)
	}
	if err := os.MkdirAll(state, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return flock.New(filepath.Join(state, config.AppName+".lock")), nil
}
