// Package reconcile attaches position manager events to the pool liquidity
// events emitted in the same transaction.
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"defiFetch/internal/model"
)

const (
	DefaultTolerance            = 3
	DefaultSoleCollectTolerance = 50
)

// Options tunes the payload comparison.
type Options struct {
	Tolerance int64
	// SoleCollectTolerance applies to a collect that is the only pool collect in its transaction.
	SoleCollectTolerance int64
	Logger               *zap.Logger
}

// Row is one pool event with its matched proxy event, if any.
type Row struct {
	Pool  model.TypedEvent
	Proxy *model.TypedEvent
}

// IsGap reports a liquidity event that could not be tied to a position.
func (r Row) IsGap() bool {
	return r.Proxy == nil && r.Pool.Kind.ProxyCounterpart() != ""
}

// Stats summarizes one reconciliation.
type Stats struct {
	Rows      int
	Matched   int
	Ambiguous int
	Gaps      int
}

type Reconciler struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options) *Reconciler {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.SoleCollectTolerance <= 0 {
		opts.SoleCollectTolerance = DefaultSoleCollectTolerance
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{opts: opts, logger: logger}
}

type txKind struct {
	tx   string
	kind model.EventKind
}

// Reconcile returns one row per pool event ordered by (block_number, log_index).
// A transaction's proxy events are claimed at most once each.
func (r *Reconciler) Reconcile(pool, proxy []model.TypedEvent) ([]Row, Stats, error) {
	candidates := make(map[txKind][]model.TypedEvent)
	for _, event := range proxy {
		switch event.Kind {
		case model.KindIncreaseLiquidity, model.KindDecreaseLiquidity, model.KindProxyCollect:
		default:
			return nil, Stats{}, &ConsistencyError{TxHash: event.TxHash, LogIndex: event.LogIndex, Reason: fmt.Sprintf("unexpected proxy kind %q", event.Kind)}
		}
		key := txKind{tx: strings.ToLower(event.TxHash), kind: event.Kind}
		candidates[key] = append(candidates[key], event)
	}
	for key := range candidates {
		list := candidates[key]
		sort.SliceStable(list, func(i, j int) bool { return list[i].LogIndex < list[j].LogIndex })
	}

	ordered := append([]model.TypedEvent(nil), pool...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		return ordered[i].LogIndex < ordered[j].LogIndex
	})

	collectsPerTx := make(map[string]int)
	for _, event := range ordered {
		switch event.Kind {
		case model.KindSwap, model.KindMint, model.KindBurn:
		case model.KindCollect:
			collectsPerTx[strings.ToLower(event.TxHash)]++
		default:
			return nil, Stats{}, &ConsistencyError{TxHash: event.TxHash, LogIndex: event.LogIndex, Reason: fmt.Sprintf("unexpected pool kind %q", event.Kind)}
		}
	}

	rows := make([]Row, len(ordered))
	matches := make([][]int, len(ordered))
	claimed := make(map[txKind]map[uint32]bool)
	claim := func(key txKind, logIndex uint32) bool {
		if claimed[key] == nil {
			claimed[key] = make(map[uint32]bool)
		}
		if claimed[key][logIndex] {
			return false
		}
		claimed[key][logIndex] = true
		return true
	}

	var stats Stats
	pending := make([]int, 0)
	for i, event := range ordered {
		rows[i].Pool = event
		counterpart := event.Kind.ProxyCounterpart()
		if counterpart == "" {
			continue
		}
		key := txKind{tx: strings.ToLower(event.TxHash), kind: counterpart}
		list := candidates[key]

		switch len(list) {
		case 0:
			continue
		case 1:
			if claim(key, list[0].LogIndex) {
				rows[i].Proxy = &list[0]
			}
			continue
		}

		tolerance := r.opts.Tolerance
		if event.Kind == model.KindCollect && collectsPerTx[key.tx] == 1 {
			tolerance = r.opts.SoleCollectTolerance
		}
		poolData, err := decodePayload(event)
		if err != nil {
			return nil, Stats{}, err
		}
		for j, candidate := range list {
			proxyData, err := decodePayload(candidate)
			if err != nil {
				return nil, Stats{}, err
			}
			ok, err := PayloadsMatch(event.Kind, poolData, proxyData, tolerance)
			if err != nil {
				return nil, Stats{}, &ConsistencyError{TxHash: event.TxHash, LogIndex: event.LogIndex, Reason: err.Error()}
			}
			if ok {
				matches[i] = append(matches[i], j)
			}
		}

		if len(matches[i]) == 1 && claim(key, list[matches[i][0]].LogIndex) {
			rows[i].Proxy = &list[matches[i][0]]
			continue
		}
		pending = append(pending, i)
	}

	// Pool rows with several equal-looking candidates take the lowest unclaimed one.
	for _, i := range pending {
		event := ordered[i]
		key := txKind{tx: strings.ToLower(event.TxHash), kind: event.Kind.ProxyCounterpart()}
		list := candidates[key]
		if len(matches[i]) > 1 {
			stats.Ambiguous++
		}
		for _, j := range matches[i] {
			if claim(key, list[j].LogIndex) {
				rows[i].Proxy = &list[j]
				break
			}
		}
	}

	for _, row := range rows {
		if row.Proxy != nil {
			stats.Matched++
		}
		if row.IsGap() {
			stats.Gaps++
			r.logger.Warn("pool event without position",
				zap.String("tx", row.Pool.TxHash),
				zap.Uint32("log_index", row.Pool.LogIndex),
				zap.String("kind", string(row.Pool.Kind)),
			)
		}
	}
	stats.Rows = len(rows)

	r.logger.Info("reconcile complete",
		zap.Int("rows", stats.Rows),
		zap.Int("matched", stats.Matched),
		zap.Int("ambiguous", stats.Ambiguous),
		zap.Int("gaps", stats.Gaps),
	)
	return rows, stats, nil
}
