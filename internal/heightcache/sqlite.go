package heightcache

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const defaultCommitEvery = 1000

// SQLite buffers writes and commits them in one transaction every commitEvery
// inserts or on Save. Reads consult the pending buffer before the table.
type SQLite struct {
	db          *sql.DB
	commitEvery int

	mu      sync.RWMutex
	pending map[uint64]uint64
}

func OpenSQLite(path string, commitEvery int) (*SQLite, error) {
	if commitEvery <= 0 {
		commitEvery = defaultCommitEvery
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite height cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS height_timestamp (
		height INTEGER PRIMARY KEY,
		timestamp INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create height table: %w", err)
	}

	return &SQLite{
		db:          db,
		commitEvery: commitEvery,
		pending:     make(map[uint64]uint64),
	}, nil
}

func (s *SQLite) Contains(height uint64) (bool, error) {
	_, ok, err := s.Get(height)
	return ok, err
}

func (s *SQLite) Get(height uint64) (uint64, bool, error) {
	s.mu.RLock()
	ts, ok := s.pending[height]
	s.mu.RUnlock()
	if ok {
		return ts, true, nil
	}

	var stored int64
	err := s.db.QueryRow(`SELECT timestamp FROM height_timestamp WHERE height = ?`, int64(height)).Scan(&stored)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query height %d: %w", height, err)
	}
	return uint64(stored), true, nil
}

func (s *SQLite) Set(height, timestamp uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[height] = timestamp
	if len(s.pending) < s.commitEvery {
		return nil
	}
	return s.flushLocked()
}

// Pending returns the number of buffered writes.
func (s *SQLite) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

func (s *SQLite) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *SQLite) flushLocked() error {
	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin height commit: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO height_timestamp (height, timestamp) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare height insert: %w", err)
	}
	for height, ts := range s.pending {
		if _, err := stmt.Exec(int64(height), int64(ts)); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("insert height %d: %w", height, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit heights: %w", err)
	}

	s.pending = make(map[uint64]uint64)
	return nil
}

func (s *SQLite) Close() error {
	saveErr := s.Save()
	if err := s.db.Close(); err != nil {
		return err
	}
	return saveErr
}
