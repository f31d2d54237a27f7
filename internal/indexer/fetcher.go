package indexer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"defiFetch/internal/chain"
	"defiFetch/internal/heightcache"
	"defiFetch/internal/metrics"
	"defiFetch/internal/model"
)

// LogClient is the part of the JSON-RPC client the fetcher depends on.
type LogClient interface {
	GetLogs(ctx context.Context, param model.GetLogsParam) ([]chain.Log, error)
	BlockTimestamp(ctx context.Context, height uint64) (uint64, error)
}

// FetchConfig holds the knobs of one fetch.
type FetchConfig struct {
	Chain string
	// BatchSize is the number of blocks per eth_getLogs window.
	BatchSize uint64
	// GroupSize is the number of blocks persisted per partition file.
	// Zero stores the whole requested range in a single partition.
	GroupSize uint64
	// Workers bounds concurrent eth_getLogs calls.
	Workers int
	// TimestampWorkers bounds concurrent eth_getBlockByNumber calls.
	TimestampWorkers int
	// Exhaustive issues one request per topic combination instead of one
	// unfiltered request per window.
	Exhaustive    bool
	SkipTimestamp bool
	// SaveEvery flushes the height cache after this many lookups. Zero means
	// only at the end of each group.
	SaveEvery int
}

// Fetcher pulls logs for a contract over a height range and stores them as
// resumable partition files.
type Fetcher struct {
	cfg     FetchConfig
	client  LogClient
	cache   heightcache.Cache
	store   *PartitionStore
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewFetcher builds a Fetcher. cache may be nil only when SkipTimestamp is set.
func NewFetcher(cfg FetchConfig, client LogClient, cache heightcache.Cache, store *PartitionStore, m *metrics.Metrics, logger *zap.Logger) (*Fetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("log client is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("partition store is nil")
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if cache == nil && !cfg.SkipTimestamp {
		return nil, fmt.Errorf("height cache is required unless timestamps are skipped")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TimestampWorkers <= 0 {
		cfg.TimestampWorkers = cfg.Workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:     cfg,
		client:  client,
		cache:   cache,
		store:   store,
		metrics: m,
		logger:  logger,
	}, nil
}

// Fetch returns the partition files covering [start, end] for contract. Groups
// whose partition already exists are reused without any network call.
// Partitions may hold logs outside the topic filter; filter them on read.
func (f *Fetcher) Fetch(ctx context.Context, contract model.ContractConfig, start, end uint64) ([]string, error) {
	if contract.Address == "" {
		return nil, fmt.Errorf("contract address is required")
	}

	groupSize := f.cfg.GroupSize
	if groupSize == 0 {
		if end < start {
			return nil, fmt.Errorf("to block must be >= from block")
		}
		groupSize = end - start + 1
	}
	groups, err := SplitRange(start, end, groupSize)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(groups))
	for _, group := range groups {
		path, err := f.fetchGroup(ctx, contract, group)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (f *Fetcher) fetchGroup(ctx context.Context, contract model.ContractConfig, group BlockRange) (string, error) {
	key := PartitionKey{Chain: f.cfg.Chain, Address: contract.Address, Start: group.From, End: group.To}
	if f.filtersRemotely(contract) {
		key.Filter = FilterDigest(contract)
	}
	path, ok, err := f.store.Lookup(key)
	if err != nil {
		return "", err
	}
	if ok {
		f.metrics.PartitionReused()
		f.logger.Info("partition exists, skip fetch", zap.String("path", path))
		return path, nil
	}

	windows, err := SplitRange(group.From, group.To, f.cfg.BatchSize)
	if err != nil {
		return "", err
	}

	f.logger.Info("fetch logs",
		zap.String("address", contract.Address),
		zap.Uint64("from", group.From),
		zap.Uint64("to", group.To),
		zap.Uint64("blocks", group.Blocks()),
		zap.Int("windows", len(windows)),
	)

	results := make([][]model.LogRecord, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)
	for i, window := range windows {
		i, window := i, window
		g.Go(func() error {
			logs, err := f.fetchWindow(gctx, contract, window)
			if err != nil {
				return fmt.Errorf("get logs %d-%d: %w", window.From, window.To, err)
			}
			results[i] = logs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	total := 0
	for _, logs := range results {
		total += len(logs)
	}
	records := make([]model.LogRecord, 0, total)
	for _, logs := range results {
		records = append(records, logs...)
	}

	if !f.cfg.SkipTimestamp {
		if err := f.fillTimestamps(ctx, records); err != nil {
			return "", err
		}
	}

	path, err = f.store.Write(key, records)
	if err != nil {
		return "", err
	}
	if f.cache != nil {
		if err := f.cache.Save(); err != nil {
			return "", fmt.Errorf("save height cache: %w", err)
		}
	}

	f.logger.Info("partition complete", zap.String("path", path), zap.Int("logs", len(records)))
	return path, nil
}

func (f *Fetcher) fetchWindow(ctx context.Context, contract model.ContractConfig, window BlockRange) ([]model.LogRecord, error) {
	param := model.GetLogsParam{
		Address:   contract.Address,
		FromBlock: window.From,
		ToBlock:   window.To,
	}

	if !f.filtersRemotely(contract) {
		raw, err := f.client.GetLogs(ctx, param)
		if err != nil {
			return nil, err
		}
		return f.normalize(raw), nil
	}

	var out []model.LogRecord
	for _, combo := range contract.Combinations() {
		param.Topics = make([][]string, len(combo))
		for pos, topic := range combo {
			if topic != "" {
				param.Topics[pos] = []string{topic}
			}
		}
		raw, err := f.client.GetLogs(ctx, param)
		if err != nil {
			return nil, err
		}
		out = append(out, f.normalize(raw)...)
	}
	return out, nil
}

// filtersRemotely reports whether partitions of contract hold only the logs
// matching its topic filter. Unfiltered partitions are shared by every filter
// and callers apply ContractConfig.Matches when reading them.
func (f *Fetcher) filtersRemotely(contract model.ContractConfig) bool {
	return f.cfg.Exhaustive && contract.HasFilter()
}

func (f *Fetcher) normalize(raw []chain.Log) []model.LogRecord {
	out := make([]model.LogRecord, 0, len(raw))
	for _, log := range raw {
		if log.Removed {
			continue
		}
		out = append(out, buildLogRecord(f.cfg.Chain, log))
	}
	return out
}

func (f *Fetcher) fillTimestamps(ctx context.Context, records []model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[uint64]struct{})
	heights := make([]uint64, 0)
	for _, record := range records {
		if _, ok := seen[record.BlockNumber]; ok {
			continue
		}
		seen[record.BlockNumber] = struct{}{}
		heights = append(heights, record.BlockNumber)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	var (
		mu      sync.Mutex
		stamps  = make(map[uint64]uint64, len(heights))
		lookups atomic.Int64
		misses  atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.TimestampWorkers)
	for _, height := range heights {
		height := height
		g.Go(func() error {
			ts, hit, err := f.cache.Get(height)
			if err != nil {
				return fmt.Errorf("height cache get %d: %w", height, err)
			}
			if hit {
				f.metrics.CacheHit()
			} else {
				f.metrics.CacheMiss()
				misses.Add(1)
				ts, err = f.client.BlockTimestamp(gctx, height)
				if err != nil {
					return fmt.Errorf("block timestamp %d: %w", height, err)
				}
				if err := f.cache.Set(height, ts); err != nil {
					return fmt.Errorf("height cache set %d: %w", height, err)
				}
			}

			mu.Lock()
			stamps[height] = ts
			mu.Unlock()

			if n := lookups.Add(1); f.cfg.SaveEvery > 0 && n%int64(f.cfg.SaveEvery) == 0 {
				if err := f.cache.Save(); err != nil {
					return fmt.Errorf("save height cache: %w", err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range records {
		records[i].Timestamp = stamps[records[i].BlockNumber]
	}

	f.logger.Debug("timestamps resolved", zap.Int("heights", len(heights)), zap.Int64("rpc_lookups", misses.Load()))
	return nil
}
