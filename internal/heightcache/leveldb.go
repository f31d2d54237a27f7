package heightcache

import (
	"encoding/binary"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDB stores each height as an 8-byte big-endian key. Writes go straight to
// the database, which serializes them internally.
type LevelDB struct {
	db *leveldb.DB
}

func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb height cache: %w", err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Contains(height uint64) (bool, error) {
	return l.db.Has(encodeUint64(height), nil)
}

func (l *LevelDB) Get(height uint64) (uint64, bool, error) {
	val, err := l.db.Get(encodeUint64(height), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(val) != 8 {
		return 0, false, fmt.Errorf("corrupt timestamp for height %d", height)
	}
	return binary.BigEndian.Uint64(val), true, nil
}

func (l *LevelDB) Set(height, timestamp uint64) error {
	return l.db.Put(encodeUint64(height), encodeUint64(timestamp), nil)
}

func (l *LevelDB) Save() error {
	return nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
