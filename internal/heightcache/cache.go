// Package heightcache persists the immutable mapping from block height to block
// timestamp. Every backend allows concurrent readers and serializes writers.
package heightcache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Cache maps block heights to unix timestamps.
type Cache interface {
	Contains(height uint64) (bool, error)
	Get(height uint64) (uint64, bool, error)
	Set(height, timestamp uint64) error
	// Save makes every prior Set durable.
	Save() error
	Close() error
}

// Backend names a Cache implementation.
type Backend string

const (
	BackendAuto    Backend = "auto"
	BackendMemory  Backend = "memory"
	BackendLevelDB Backend = "leveldb"
	BackendSQLite  Backend = "sqlite"
	BackendRedis   Backend = "redis"
)

// ParseBackend validates a backend name; "" means auto.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(name); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendMemory, BackendLevelDB, BackendSQLite, BackendRedis:
		return b, nil
	default:
		return "", fmt.Errorf("unknown height cache backend: %s", name)
	}
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend Backend
	// Dir holds the cache file next to the chain's other outputs.
	Dir   string
	Chain string
	// CommitEvery is the SQLite write batch size. Zero uses 1000.
	CommitEvery int
	// RedisAddr and RedisPrefix configure the redis backend.
	RedisAddr    string
	RedisPrefix  string
	RedisTimeout time.Duration
	Logger       *zap.Logger
}

// FileName returns the on-disk name used by a file-backed backend.
func FileName(chain string, backend Backend) string {
	base := chain + "_height_timestamp"
	switch backend {
	case BackendMemory:
		return base + ".gob"
	case BackendLevelDB:
		return base + ".leveldb"
	case BackendSQLite:
		return base + ".sqlite"
	default:
		return ""
	}
}

// Detect picks the backend of an existing cache file in dir so that data
// directories created by an earlier run keep their store. New directories get SQLite.
func Detect(dir, chain string) Backend {
	for _, backend := range []Backend{BackendMemory, BackendLevelDB, BackendSQLite} {
		if _, err := os.Stat(filepath.Join(dir, FileName(chain, backend))); err == nil {
			return backend
		}
	}
	return BackendSQLite
}

// Open builds the configured backend, resolving auto by detection.
func Open(cfg Config) (Cache, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Chain == "" {
		return nil, fmt.Errorf("height cache chain is required")
	}

	backend := cfg.Backend
	if backend == "" || backend == BackendAuto {
		backend = Detect(cfg.Dir, cfg.Chain)
		logger.Info("height cache backend detected", zap.String("backend", string(backend)), zap.String("dir", cfg.Dir))
	}

	if backend != BackendRedis && cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	path := filepath.Join(cfg.Dir, FileName(cfg.Chain, backend))

	switch backend {
	case BackendMemory:
		return OpenMemory(path)
	case BackendLevelDB:
		return OpenLevelDB(path)
	case BackendSQLite:
		return OpenSQLite(path, cfg.CommitEvery)
	case BackendRedis:
		return NewRedis(RedisConfig{
			Addr:    cfg.RedisAddr,
			Key:     redisKey(cfg.RedisPrefix, cfg.Chain),
			Timeout: cfg.RedisTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown height cache backend: %s", backend)
	}
}
