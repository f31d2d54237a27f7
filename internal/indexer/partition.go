package indexer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang/snappy"

	"defiFetch/internal/model"
)

// PartitionKey identifies one completed fetch group.
type PartitionKey struct {
	Chain   string
	Address string
	Start   uint64
	End     uint64
	// Filter is the FilterDigest of a partition holding topic-filtered logs.
	// Empty means the partition holds every log of the address.
	Filter string
}

// FileName returns {chain}-{address}-{start}-{end}.tmp, with -{filter}
// inserted before the extension for filtered partitions.
func (k PartitionKey) FileName() string {
	name := fmt.Sprintf("%s-%s-%d-%d", k.Chain, strings.ToLower(k.Address), k.Start, k.End)
	if k.Filter != "" {
		name += "-" + k.Filter
	}
	return name + ".tmp"
}

// FilterDigest returns 8 hex characters identifying the topic filter of
// contract, independent of topic case and order within a position.
func FilterDigest(contract model.ContractConfig) string {
	positions := make([]string, 0, model.MaxTopics)
	for _, set := range contract.Topics {
		topics := make([]string, 0, len(set))
		for _, topic := range set {
			topics = append(topics, strings.ToLower(topic))
		}
		sort.Strings(topics)
		positions = append(positions, strings.Join(topics, ","))
	}
	sum := crypto.Keccak256([]byte(strings.Join(positions, "|")))
	return hexutil.Encode(sum[:4])[2:]
}

// PartitionStore persists fetched logs as snappy-compressed gob files. A file
// only appears under its final name once it was written completely.
type PartitionStore struct {
	dir string
}

func NewPartitionStore(dir string) *PartitionStore {
	return &PartitionStore{dir: dir}
}

// Path returns the location of key's partition file.
func (s *PartitionStore) Path(key PartitionKey) string {
	return filepath.Join(s.dir, key.FileName())
}

// Lookup returns the path of key's partition and whether it exists.
func (s *PartitionStore) Lookup(key PartitionKey) (string, bool, error) {
	path := s.Path(key)
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return path, false, nil
		}
		return path, false, fmt.Errorf("stat partition: %w", err)
	}
	if stat.IsDir() {
		return path, false, fmt.Errorf("partition path is a directory: %s", path)
	}
	return path, true, nil
}

// Write stores logs under key and returns the final path.
func (s *PartitionStore) Write(key PartitionKey, logs []model.LogRecord) (string, error) {
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return "", fmt.Errorf("create partition dir: %w", err)
		}
	}

	path := s.Path(key)
	partialPath := path + ".partial"
	file, err := os.Create(partialPath)
	if err != nil {
		return "", fmt.Errorf("create partition: %w", err)
	}

	writer := snappy.NewBufferedWriter(file)
	if logs == nil {
		logs = []model.LogRecord{}
	}
	if err := gob.NewEncoder(writer).Encode(logs); err != nil {
		file.Close()
		os.Remove(partialPath)
		return "", fmt.Errorf("encode partition: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		os.Remove(partialPath)
		return "", fmt.Errorf("flush partition: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(partialPath)
		return "", fmt.Errorf("close partition: %w", err)
	}
	if err := os.Rename(partialPath, path); err != nil {
		return "", fmt.Errorf("rename partition: %w", err)
	}
	return path, nil
}

// ReadPartition loads the logs stored at path.
func ReadPartition(path string) ([]model.LogRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open partition: %w", err)
	}
	defer file.Close()

	var logs []model.LogRecord
	if err := gob.NewDecoder(snappy.NewReader(file)).Decode(&logs); err != nil {
		return nil, fmt.Errorf("decode partition %s: %w", path, err)
	}
	return logs, nil
}

// RemovePartitions deletes consumed partition files, ignoring missing ones.
func RemovePartitions(paths []string) error {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove partition: %w", err)
		}
	}
	return nil
}
