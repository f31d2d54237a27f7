package source

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"defiFetch/internal/height"
	"defiFetch/internal/indexer"
	"defiFetch/internal/model"
)

// HeightResolver maps a day to its block range.
type HeightResolver interface {
	Resolve(ctx context.Context, day time.Time) (height.Range, error)
}

// PartitionFetcher produces partition files for a block range.
type PartitionFetcher interface {
	Fetch(ctx context.Context, contract model.ContractConfig, start, end uint64) ([]string, error)
}

// RPC reads a day of logs straight from a JSON-RPC node.
type RPC struct {
	resolver HeightResolver
	fetcher  PartitionFetcher
	// KeepPartitions leaves the fetched tmp files on disk for later reruns.
	KeepPartitions bool
	logger         *zap.Logger
}

func NewRPC(resolver HeightResolver, fetcher PartitionFetcher, logger *zap.Logger) *RPC {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPC{resolver: resolver, fetcher: fetcher, logger: logger}
}

func (s *RPC) DayLogs(ctx context.Context, day time.Time, contract model.ContractConfig) ([]model.LogRecord, error) {
	bounds, err := s.resolver.Resolve(ctx, day)
	if err != nil {
		return nil, err
	}
	if bounds.End < bounds.Start {
		s.logger.Info("day has no blocks", zap.Time("day", day))
		return []model.LogRecord{}, nil
	}

	paths, err := s.fetcher.Fetch(ctx, contract, bounds.Start, bounds.End)
	if err != nil {
		return nil, err
	}

	var logs []model.LogRecord
	for _, path := range paths {
		part, err := indexer.ReadPartition(path)
		if err != nil {
			return nil, err
		}
		for _, log := range part {
			if log.BlockNumber < bounds.Start || log.BlockNumber > bounds.End {
				continue
			}
			if !contract.Matches(log.Topics) {
				continue
			}
			logs = append(logs, log)
		}
	}

	if !s.KeepPartitions {
		if err := indexer.RemovePartitions(paths); err != nil {
			return nil, fmt.Errorf("cleanup partitions: %w", err)
		}
	}
	return dedupe(logs), nil
}
