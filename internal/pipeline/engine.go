package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"defiFetch/internal/metrics"
	"defiFetch/internal/source"
	"defiFetch/internal/storage"
)

// Options configures an Engine.
type Options struct {
	Chain       string
	OutDir      string
	Format      storage.Format
	SkipExisted bool
	// KeepRaw keeps the intermediate artifacts of non-root nodes.
	KeepRaw bool
	// ParallelDays bounds how many days of a transform node run at once.
	ParallelDays int
}

// Engine runs a node graph over a range of days.
type Engine struct {
	opts    Options
	source  source.LogSource
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	written []string
}

// NewEngine builds an Engine reading logs from src.
func NewEngine(opts Options, src source.LogSource, m *metrics.Metrics, logger *zap.Logger) (*Engine, error) {
	if src == nil {
		return nil, fmt.Errorf("log source is nil")
	}
	if opts.Chain == "" {
		return nil, fmt.Errorf("chain is required")
	}
	if opts.Format == "" {
		opts.Format = storage.FormatCSV
	}
	if opts.ParallelDays <= 0 {
		opts.ParallelDays = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, source: src, metrics: m, logger: logger}, nil
}

// Path returns the artifact path of node for day.
func (e *Engine) Path(node Node, day time.Time) string {
	name := fmt.Sprintf("%s-%s-%s.%s.%s",
		e.opts.Chain, strings.ToLower(node.Identity()), day.Format(time.DateOnly), node.Name(), e.opts.Format)
	return filepath.Join(e.opts.OutDir, name)
}

// Run produces the root artifact of every day and returns their paths.
// The first failing node aborts the run.
func (e *Engine) Run(ctx context.Context, root Node, days []time.Time) ([]string, error) {
	order, err := Order(root)
	if err != nil {
		return nil, err
	}

	outputs := make([]string, 0, len(days))
	pending := make([]time.Time, 0, len(days))
	for _, day := range days {
		path := e.Path(root, day)
		outputs = append(outputs, path)
		if e.opts.SkipExisted && fileExists(path) {
			e.metrics.NodeSkipped(root.Name())
			e.logger.Info("skip existing day", zap.String("node", root.Name()), zap.String("path", path))
			continue
		}
		pending = append(pending, day)
	}
	if len(pending) == 0 {
		return outputs, nil
	}

	e.mu.Lock()
	e.written = nil
	e.mu.Unlock()

	for _, node := range order {
		start := time.Now()
		e.logger.Info("run node", zap.String("node", node.Name()), zap.Int("days", len(pending)))
		if err := e.runNode(ctx, node, pending); err != nil {
			return nil, fmt.Errorf("node %s: %w", node.Name(), err)
		}
		e.logger.Info("node complete", zap.String("node", node.Name()), zap.Duration("elapsed", time.Since(start)))
	}

	if !e.opts.KeepRaw {
		if err := e.cleanup(outputs); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

func (e *Engine) runNode(ctx context.Context, node Node, days []time.Time) error {
	switch n := node.(type) {
	case *SourceNode:
		for _, day := range days {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.work(ctx, n, day); err != nil {
				return err
			}
		}
		return nil
	case *TransformNode:
		limit := min(e.opts.ParallelDays, runtime.NumCPU())
		if limit <= 1 {
			for _, day := range days {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := e.work(ctx, n, day); err != nil {
					return err
				}
			}
			return nil
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for _, day := range days {
			day := day
			g.Go(func() error {
				return e.work(gctx, n, day)
			})
		}
		return g.Wait()
	default:
		return fmt.Errorf("unsupported node type %T", node)
	}
}

func (e *Engine) work(ctx context.Context, node Node, day time.Time) error {
	path := e.Path(node, day)
	if e.opts.SkipExisted && fileExists(path) {
		e.metrics.NodeSkipped(node.Name())
		e.logger.Debug("skip existing artifact", zap.String("node", node.Name()), zap.String("path", path))
		return nil
	}

	table, err := e.process(ctx, node, day)
	if err != nil {
		return fmt.Errorf("%s: %w", day.Format(time.DateOnly), err)
	}
	if err := storage.WriteTable(path, e.opts.Format, table); err != nil {
		return err
	}

	e.mu.Lock()
	e.written = append(e.written, path)
	e.mu.Unlock()

	e.logger.Info("artifact written",
		zap.String("node", node.Name()),
		zap.String("day", day.Format(time.DateOnly)),
		zap.Int("rows", table.Len()),
		zap.String("path", path),
	)
	return nil
}

func (e *Engine) process(ctx context.Context, node Node, day time.Time) (*storage.Table, error) {
	switch n := node.(type) {
	case *SourceNode:
		logs, err := e.source.DayLogs(ctx, day, n.Contract)
		if err != nil {
			return nil, err
		}
		return logsToTable(logs)
	case *TransformNode:
		deps := n.Dependencies()
		inputs := make([]*storage.Table, 0, len(deps))
		for _, dep := range deps {
			table, err := storage.ReadTable(e.Path(dep, day), e.opts.Format)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", dep.Name(), err)
			}
			inputs = append(inputs, table)
		}
		return n.Process(ctx, day, inputs)
	default:
		return nil, fmt.Errorf("unsupported node type %T", node)
	}
}

// cleanup removes the artifacts written during the run, except those in keep.
func (e *Engine) cleanup(keep []string) error {
	e.mu.Lock()
	written := e.written
	e.written = nil
	e.mu.Unlock()

	kept := make(map[string]bool, len(keep))
	for _, path := range keep {
		kept[path] = true
	}
	removed := 0
	for _, path := range written {
		if kept[path] {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		removed++
	}
	if removed > 0 {
		e.logger.Debug("intermediate artifacts removed", zap.Int("files", removed))
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
