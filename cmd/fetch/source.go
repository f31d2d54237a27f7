package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"defiFetch/internal/chain"
	"defiFetch/internal/config"
	"defiFetch/internal/height"
	"defiFetch/internal/heightcache"
	"defiFetch/internal/indexer"
	"defiFetch/internal/metrics"
	"defiFetch/internal/source"
	"defiFetch/internal/storage/postgres"
)

// newSource wires the configured log source. The returned func releases it.
func newSource(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *zap.Logger) (source.LogSource, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Source {
	case config.SourceRPC:
		return newRPCSource(ctx, cfg, m, logger)
	case config.SourceWarehouse:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect warehouse: %w", err)
		}
		return source.NewWarehouse(store, string(cfg.Chain), loc), store.Close, nil
	case config.SourceExport:
		return source.NewExport(cfg.ExportDir, loc), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: data source %s", config.ErrUnsupported, cfg.Source)
	}
}

func newRPCSource(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *zap.Logger) (source.LogSource, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{
		ProxyURL:   cfg.RPCProxy,
		AuthHeader: cfg.RPCAuth,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}

	var cache heightcache.Cache
	if !cfg.SkipTimestamp {
		backend, err := heightcache.ParseBackend(cfg.HeightCache)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		cache, err = heightcache.Open(heightcache.Config{
			Backend:   backend,
			Dir:       cfg.OutDir,
			Chain:     string(cfg.Chain),
			RedisAddr: cfg.RedisAddr,
			Logger:    logger,
		})
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("open height cache: %w", err)
		}
	}
	release := func() {
		if cache != nil {
			if err := cache.Close(); err != nil {
				logger.Warn("close height cache", zap.Error(err))
			}
		}
		client.Close()
	}

	resolver, err := height.NewResolver(height.Config{
		BaseURL:  cfg.Explorer(),
		APIKey:   cfg.APIKey,
		Location: loc,
		Interval: cfg.ExplorerInterval,
		Logger:   logger,
	})
	if err != nil {
		release()
		return nil, nil, err
	}

	fetcher, err := indexer.NewFetcher(indexer.FetchConfig{
		Chain:            string(cfg.Chain),
		BatchSize:        cfg.BatchSize,
		GroupSize:        cfg.GroupSize,
		Workers:          cfg.Workers,
		TimestampWorkers: cfg.TimestampWorkers,
		Exhaustive:       cfg.Exhaustive,
		SkipTimestamp:    cfg.SkipTimestamp,
		SaveEvery:        cfg.SaveEvery,
	}, client, cache, indexer.NewPartitionStore(cfg.OutDir), m, logger)
	if err != nil {
		release()
		return nil, nil, err
	}

	rpcSource := source.NewRPC(resolver, fetcher, logger)
	rpcSource.KeepPartitions = cfg.KeepRaw
	return rpcSource, release, nil
}
