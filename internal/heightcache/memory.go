package heightcache

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
)

// Memory keeps the whole mapping in a map and writes a snapshot file on Save.
type Memory struct {
	path string

	mu    sync.RWMutex
	data  map[uint64]uint64
	dirty bool
}

// OpenMemory loads the snapshot at path if present. An empty path never persists.
func OpenMemory(path string) (*Memory, error) {
	m := &Memory{path: path, data: make(map[uint64]uint64)}
	if path == "" {
		return m, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("open height snapshot: %w", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(snappy.NewReader(file)).Decode(&m.data); err != nil {
		return nil, fmt.Errorf("decode height snapshot: %w", err)
	}
	return m, nil
}

func (m *Memory) Contains(height uint64) (bool, error) {
	m.mu.RLock()
	_, ok := m.data[height]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) Get(height uint64) (uint64, bool, error) {
	m.mu.RLock()
	ts, ok := m.data[height]
	m.mu.RUnlock()
	return ts, ok, nil
}

func (m *Memory) Set(height, timestamp uint64) error {
	m.mu.Lock()
	if old, ok := m.data[height]; !ok || old != timestamp {
		m.data[height] = timestamp
		m.dirty = true
	}
	m.mu.Unlock()
	return nil
}

// Len returns the number of cached heights.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Save writes the snapshot atomically when anything changed since the last save.
func (m *Memory) Save() error {
	if m.path == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil
	}

	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmpPath := m.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot tmp: %w", err)
	}
	writer := snappy.NewBufferedWriter(file)
	if err := gob.NewEncoder(writer).Encode(m.data); err != nil {
		file.Close()
		return fmt.Errorf("encode height snapshot: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("flush height snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close height snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("rename height snapshot: %w", err)
	}

	m.dirty = false
	return nil
}

func (m *Memory) Close() error {
	return m.Save()
}
