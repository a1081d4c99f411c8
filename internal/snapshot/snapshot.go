// Package snapshot implements periodic checkpointing of the process-wide
// ML ensemble, adaptive thresholds, and session win/loss stats (spec §9:
// "ML and threshold state are snapshot-serializable"), so a process
// restart resumes calibration instead of going in cold.
//
// Grounded on the teacher's internal/store/sqlite writer/reader pair:
// same WAL-mode single-writer connection, same JSON-blob-plus-
// prune-keep-last-10 table shape, generalized from one indicator-engine
// snapshot to this domain's three singletons.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"signalbot/internal/ml"
	"signalbot/internal/model"
	"signalbot/internal/threshold"

	_ "github.com/mattn/go-sqlite3"
)

const keepLastN = 10

// State is one checkpoint of every snapshot-serializable singleton.
type State struct {
	Ensemble     ml.EnsembleSnapshot               `json:"ensemble"`
	Thresholds   threshold.AdaptiveSnapshot         `json:"thresholds"`
	SessionStats map[string]model.SessionStats `json:"sessionStats"`
}

// Store is a single-writer SQLite-backed checkpoint store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at dbPath and
// ensures the snapshots table exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)
	`); err != nil {
		return nil, fmt.Errorf("snapshot: schema: %w", err)
	}

	log.Printf("[snapshot] opened %s", dbPath)
	return &Store{db: db}, nil
}

// Save persists state as the newest checkpoint, pruning older ones
// beyond keepLastN.
func (s *Store) Save(state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	if _, err := s.db.Exec(`INSERT INTO snapshots (data) VALUES (?)`, string(data)); err != nil {
		return fmt.Errorf("snapshot: insert: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE id NOT IN (SELECT id FROM snapshots ORDER BY created_at DESC LIMIT ?)`, keepLastN); err != nil {
		log.Printf("[snapshot] prune warning: %v", err)
	}
	return nil
}

// Load returns the most recent checkpoint, or nil if none exists yet.
func (s *Store) Load() (*State, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM snapshots ORDER BY created_at DESC LIMIT 1`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: read: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	return &state, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run saves a checkpoint every interval by calling collect, until ctx
// is cancelled, then performs one final save so shutdown doesn't lose
// the last interval's worth of calibration.
func (s *Store) Run(ctx context.Context, interval time.Duration, collect func() State) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.Save(collect()); err != nil {
				log.Printf("[snapshot] final save failed: %v", err)
			}
			return
		case <-ticker.C:
			if err := s.Save(collect()); err != nil {
				log.Printf("[snapshot] periodic save failed: %v", err)
			}
		}
	}
}
