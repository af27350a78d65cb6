package storage

import (
	"context"
	"time"

	"search-scraper/pkg/models"
)

// HistoryWriter records completed searches
type HistoryWriter interface {
	// SaveSearch persists a search record and returns its ID.
	// A missing ID is assigned; a zero SearchedAt is set to the current time
	SaveSearch(rec *models.SearchRecordDB) (string, error)
}

// HistoryReader retrieves recorded searches
type HistoryReader interface {
	// GetSearch returns the record with the given ID.
	// Returns an error wrapping utils.ErrNotFound if no such record exists
	GetSearch(id string) (*models.SearchRecordDB, error)

	// RecentSearches returns up to limit records, newest first
	RecentSearches(limit int) ([]models.SearchRecordDB, error)

	// SearchCount returns the number of stored search records
	SearchCount() (int, error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// HistoryStore combines all store interfaces for components that need full access
type HistoryStore interface {
	HistoryWriter
	HistoryReader
	StoreAdmin
}
