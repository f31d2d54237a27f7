package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"defiFetch/internal/config"
	"defiFetch/internal/metrics"
	"defiFetch/internal/model"
	"defiFetch/internal/pipeline"
	"defiFetch/internal/reconcile"
	"defiFetch/internal/storage"
	"defiFetch/internal/storage/postgres"
)

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Load(cfgFile, cmd.Flags())
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if cfg.MetricsAddr != "" {
		server := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	src, closeSource, err := newSource(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	format, err := storage.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	engine, err := pipeline.NewEngine(pipeline.Options{
		Chain:        string(cfg.Chain),
		OutDir:       cfg.OutDir,
		Format:       format,
		SkipExisted:  cfg.SkipExisted,
		KeepRaw:      cfg.KeepRaw,
		ParallelDays: cfg.ParallelDays,
	}, src, m, logger)
	if err != nil {
		return err
	}

	days, err := cfg.Days()
	if err != nil {
		return err
	}

	logger.Info("fetch start",
		zap.String("chain", string(cfg.Chain)),
		zap.String("source", string(cfg.Source)),
		zap.String("output", cfg.Output),
		zap.String("from", cfg.FromDay),
		zap.Int("days", len(days)),
		zap.Int("pools", len(cfg.Pools)),
		zap.String("out_dir", cfg.OutDir),
	)

	for _, pool := range cfg.Pools {
		root, err := pipeline.BuildGraph(cfg.Output, targetFor(cfg, pool, logger))
		if err != nil {
			return err
		}
		start := time.Now()
		paths, err := engine.Run(ctx, root, days)
		if err != nil {
			return fmt.Errorf("pool %s: %w", pool, err)
		}
		logger.Info("pool complete",
			zap.String("pool", pool),
			zap.Int("files", len(paths)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return nil
}

func runOrder(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pool := "0x0000000000000000000000000000000000000000"
	if len(cfg.Pools) > 0 {
		pool = cfg.Pools[0]
	}

	root, err := pipeline.BuildGraph(cfg.Output, targetFor(cfg, pool, nil))
	if err != nil {
		return err
	}
	order, err := pipeline.Order(root)
	if err != nil {
		return err
	}
	for i, node := range order {
		kind := "transform"
		if _, ok := node.(*pipeline.SourceNode); ok {
			kind = "source"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", i+1, node.Name(), kind, strings.ToLower(node.Identity()))
	}
	return nil
}

func runDump(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	src, closeSource, err := newSource(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	days, err := cfg.Days()
	if err != nil {
		return err
	}

	var sink storage.Storage = storage.NewJsonlStorage(out)
	total := 0
	for _, pool := range cfg.Pools {
		contract := model.ContractConfig{Address: strings.ToLower(pool), Topics: cfg.Topics}
		for _, day := range days {
			logs, err := src.DayLogs(ctx, day, contract)
			if err != nil {
				return fmt.Errorf("pool %s day %s: %w", pool, day.Format(time.DateOnly), err)
			}
			if err := sink.PutLogBatch(logs); err != nil {
				return err
			}
			total += len(logs)
			logger.Info("day dumped", zap.String("pool", pool), zap.String("day", day.Format(time.DateOnly)), zap.Int("logs", len(logs)))
		}
	}
	logger.Info("dump complete", zap.Int("logs", total), zap.String("out", out))
	return nil
}

func runLoad(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	in, _ := cmd.Flags().GetString("in")
	if in == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	logs, err := storage.ReadLogRecords(in)
	if err != nil {
		return err
	}
	for i := range logs {
		if logs[i].Chain == "" {
			logs[i].Chain = string(cfg.Chain)
		}
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect warehouse: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	batch := int(cfg.BatchSize)
	for start := 0; start < len(logs); start += batch {
		end := min(start+batch, len(logs))
		if err := store.InsertLogs(ctx, logs[start:end]); err != nil {
			return fmt.Errorf("insert logs %d-%d: %w", start, end, err)
		}
	}
	logger.Info("load complete", zap.Int("logs", len(logs)), zap.String("in", in))
	return nil
}

func targetFor(cfg config.Config, pool string, logger *zap.Logger) pipeline.Target {
	return pipeline.Target{
		Pool:      pool,
		Proxy:     cfg.ProxyAddress(),
		Topics:    cfg.Topics,
		FeeTier:   cfg.FeeTier,
		Reconcile: reconcile.Options{
			Tolerance:            cfg.Tolerance,
			SoleCollectTolerance: cfg.SoleCollectTolerance,
			Logger:               logger,
		},
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics server listening", zap.String("addr", addr))
	return server
}
