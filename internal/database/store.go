// Package database records downloads and sync runs in a catalog.
package database

import (
	"github.com/bryan-buckman/cringecast/internal/model"
)

// Store defines the interface for catalog operations.
type Store interface {
	Close() error

	// Run operations
	StartRun(run model.Run) error
	FinishRun(run model.Run) error
	RecentRuns(limit int) ([]model.Run, error)

	// Download operations
	RecordDownload(d *model.Download) (int64, error)
	RecentDownloads(feed string, limit int) ([]model.Download, error)
	FeedStats() ([]model.FeedStats, error)

	// Settings operations
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	GetPollingInterval() (int, error)
}

var _ Store = (*DB)(nil)
