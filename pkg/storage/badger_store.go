package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"search-scraper/pkg/log"
	"search-scraper/pkg/models"
	"search-scraper/pkg/utils"
)

const (
	searchKeyPrefix = "search:"    // Prefix for time-ordered search record keys
	idKeyPrefix     = "id:"        // Prefix for ID -> primary key alias entries
	historyDBDir    = "history_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the HistoryStore interface using BadgerDB.
//
// Each record is stored twice: under a time-ordered primary key
// ("search:<zero-padded unix nanos>:<id>") holding the JSON value, and
// under an alias key ("id:<id>") holding the primary key bytes. Recent-N
// listing is a reverse prefix scan over the primary keys; lookup by ID
// follows the alias.
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached record count for O(1) SearchCount
}

// NewBadgerStore initializes and returns a new BadgerStore.
// Existing history under stateDir is always preserved
func NewBadgerStore(stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
	}

	dbPath := filepath.Join(stateDir, historyDBDir)
	logger.Infof("Initializing search history database at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	// Configure Badger options
	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger). // Use custom logrus adapter
		WithNumVersionsToKeep(1)  // Only keep the latest version of each record

	// Open the database
	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	// Initialize record count from existing data
	count, err := store.countRecords()
	if err != nil {
		logger.Warnf("Failed to count existing records: %v", err)
	} else {
		store.keyCount.Store(int64(count))
		if count > 0 {
			logger.Infof("Loaded existing search history: %d records", count)
		}
	}

	logger.Info("Search history database initialized successfully.")
	return store, nil
}

// countRecords performs a one-time primary key scan (used only during initialization).
func (s *BadgerStore) countRecords() (int, error) {
	count := 0
	prefix := []byte(searchKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// primaryKey builds the time-ordered key for a record. Zero-padded unix
// nanoseconds keep byte order equal to chronological order; the ID suffix
// disambiguates records saved in the same nanosecond
func primaryKey(searchedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", searchKeyPrefix, searchedAt.UTC().UnixNano(), id))
}

// SaveSearch implements the HistoryStore interface
func (s *BadgerStore) SaveSearch(rec *models.SearchRecordDB) (string, error) {
	if s.db == nil {
		return "", errors.New("history DB not initialized")
	}
	if rec == nil {
		return "", fmt.Errorf("%w: cannot save nil search record", utils.ErrDatabase)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SearchedAt.IsZero() {
		rec.SearchedAt = time.Now().UTC()
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling search record '%s': %w", utils.ErrParsing, rec.ID, err)
	}

	pKey := primaryKey(rec.SearchedAt, rec.ID)
	aliasKey := []byte(idKeyPrefix + rec.ID)
	added := false

	err = s.dbUpdate(func(txn *badger.Txn) error {
		// Re-saving under an existing ID replaces the old record
		item, errGet := txn.Get(aliasKey)
		if errGet == nil {
			oldKey, errVal := item.ValueCopy(nil)
			if errVal != nil {
				return errVal
			}
			if errDel := txn.Delete(oldKey); errDel != nil {
				return errDel
			}
		} else if errors.Is(errGet, badger.ErrKeyNotFound) {
			added = true
		} else {
			return errGet
		}

		if errSet := txn.Set(pKey, value); errSet != nil {
			return errSet
		}
		return txn.Set(aliasKey, pKey)
	})

	if err != nil {
		s.log.WithField("id", rec.ID).Errorf("DB Update error in SaveSearch: %v", err)
		return "", fmt.Errorf("%w: saving search record '%s': %w", utils.ErrDatabase, rec.ID, err)
	}
	if added {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Saved search record '%s' (query: %q, results: %d)", rec.ID, rec.Query, rec.ResultCount)
	return rec.ID, nil
}

// GetSearch implements the HistoryStore interface
func (s *BadgerStore) GetSearch(id string) (*models.SearchRecordDB, error) {
	if s.db == nil {
		return nil, errors.New("history DB not initialized")
	}

	var rec *models.SearchRecordDB
	aliasKey := []byte(idKeyPrefix + id)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(aliasKey)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: search record '%s'", utils.ErrNotFound, id)
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting alias key '%s': %w", utils.ErrDatabase, string(aliasKey), errGet)
		}

		pKey, errVal := item.ValueCopy(nil)
		if errVal != nil {
			return fmt.Errorf("%w: reading alias value for '%s': %w", utils.ErrDatabase, id, errVal)
		}

		primary, errGet := txn.Get(pKey)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			// Alias without a primary record means a partially deleted entry
			s.log.Warnf("Dangling alias for search record '%s' (primary key %q missing)", id, string(pKey))
			return fmt.Errorf("%w: search record '%s'", utils.ErrNotFound, id)
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting primary key '%s': %w", utils.ErrDatabase, string(pKey), errGet)
		}

		return primary.Value(func(val []byte) error {
			var decoded models.SearchRecordDB
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				return fmt.Errorf("%w: unmarshaling search record '%s': %w", utils.ErrParsing, id, errJson)
			}
			rec = &decoded
			return nil
		})
	})

	if errView != nil {
		return nil, errView
	}
	return rec, nil
}

// RecentSearches implements the HistoryStore interface
func (s *BadgerStore) RecentSearches(limit int) ([]models.SearchRecordDB, error) {
	if s.db == nil {
		return nil, errors.New("history DB not initialized")
	}
	if limit <= 0 {
		return []models.SearchRecordDB{}, nil
	}

	records := make([]models.SearchRecordDB, 0, limit)
	prefix := []byte(searchKeyPrefix)

	errView := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the end of the prefix range, then walk backwards
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(records) < limit; it.Next() {
			item := it.Item()
			errVal := item.Value(func(val []byte) error {
				var decoded models.SearchRecordDB
				if errJson := json.Unmarshal(val, &decoded); errJson != nil {
					s.log.Warnf("Skipping corrupt history record at key '%s': %v", string(item.Key()), errJson)
					return nil
				}
				records = append(records, decoded)
				return nil
			})
			if errVal != nil {
				return fmt.Errorf("%w: reading history key '%s': %w", utils.ErrDatabase, string(item.Key()), errVal)
			}
		}
		return nil
	})

	if errView != nil {
		s.log.Errorf("DB View error in RecentSearches: %v", errView)
		return nil, errView
	}
	return records, nil
}

// SearchCount implements the HistoryStore interface
func (s *BadgerStore) SearchCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC implements the HistoryStore interface
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute // Default interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			// Check if DB is valid before running GC
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			s.log.Info("Running BadgerDB value log garbage collection...")
			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				// Run GC if log is at least 50% reclaimable space
				err = s.db.RunValueLogGC(0.5)
				if err == nil {
					s.log.Info("BadgerDB GC cycle completed.")
				} else {
					break // Exit loop if GC finished (ErrNoRewrite) or encountered an error
				}
			}

			// Log outcome
			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Info("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done(): // Check if stop signal received via context cancellation
			s.log.Infof("Stopping BadgerDB garbage collection goroutine due to context cancellation: %v", ctx.Err())
			return
		}
	}
}

// Close implements the HistoryStore interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing search history DB...")
		err := s.db.Close()
		if err != nil {
			s.log.Errorf("Error closing search history DB: %v", err)
			return err
		}
		s.log.Info("Search history DB closed.")
		return nil
	}
	s.log.Info("Search history DB already closed or was not initialized.")
	return nil
}
