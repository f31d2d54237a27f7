package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"defiFetch/internal/aggregate"
	"defiFetch/internal/config"
	"defiFetch/internal/dex"
	"defiFetch/internal/model"
	"defiFetch/internal/reconcile"
	"defiFetch/internal/storage"
)

// Target binds a graph to one pool.
type Target struct {
	Pool  string
	Proxy string
	// Topics filters the raw output only; decoded outputs select their own events.
	Topics    [model.MaxTopics][]string
	FeeTier   uint32
	Reconcile reconcile.Options
}

// BuildGraph returns the root node producing output for target.
func BuildGraph(output string, target Target) (Node, error) {
	if target.Pool == "" {
		return nil, fmt.Errorf("pool address is required")
	}
	pool := strings.ToLower(target.Pool)

	switch output {
	case config.OutputRaw:
		return NewSourceNode("raw", model.ContractConfig{Address: pool, Topics: target.Topics}), nil
	case config.OutputTick:
		return tickNode(pool)
	case config.OutputMinute:
		tick, err := tickNode(pool)
		if err != nil {
			return nil, err
		}
		process, err := minuteProcessor(target.FeeTier)
		if err != nil {
			return nil, err
		}
		return NewTransformNode("minute", pool, process, tick), nil
	case config.OutputPosition:
		if target.Proxy == "" {
			return nil, fmt.Errorf("proxy address is required for position output")
		}
		tick, err := tickNode(pool)
		if err != nil {
			return nil, err
		}
		proxy, err := proxyNode(strings.ToLower(target.Proxy))
		if err != nil {
			return nil, err
		}
		process, err := positionProcessor(target.Reconcile)
		if err != nil {
			return nil, err
		}
		return NewTransformNode("position", pool, process, tick, proxy), nil
	default:
		return nil, fmt.Errorf("%w: output type %q", config.ErrUnsupported, output)
	}
}

func tickNode(pool string) (Node, error) {
	decoder, err := dex.NewPoolDecoder()
	if err != nil {
		return nil, err
	}
	topics := make([]string, 0, 4)
	for _, kind := range []model.EventKind{model.KindSwap, model.KindMint, model.KindBurn, model.KindCollect} {
		topics = append(topics, decoder.Topic0(kind))
	}
	source := NewSourceNode("pool", model.NewContractConfig(pool, topics...))

	process := func(ctx context.Context, day time.Time, inputs []*storage.Table) (*storage.Table, error) {
		logs, err := tableToLogs(inputs[0])
		if err != nil {
			return nil, err
		}
		events, err := dex.DecodeAll(decoder, logs, true)
		if err != nil {
			return nil, err
		}
		return eventsToTickTable(events)
	}
	return NewTransformNode("tick", pool, process, source), nil
}

func proxyNode(proxy string) (Node, error) {
	decoder, err := dex.NewPositionManagerDecoder()
	if err != nil {
		return nil, err
	}
	topics := make([]string, 0, 3)
	for _, kind := range []model.EventKind{model.KindIncreaseLiquidity, model.KindDecreaseLiquidity, model.KindProxyCollect} {
		topics = append(topics, decoder.Topic0(kind))
	}
	return NewSourceNode("proxy", model.NewContractConfig(proxy, topics...)), nil
}

func minuteProcessor(feeTier uint32) (ProcessFunc, error) {
	decoder, err := dex.NewPoolDecoder()
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, day time.Time, inputs []*storage.Table) (*storage.Table, error) {
		events, err := decodeTable(decoder, inputs[0])
		if err != nil {
			return nil, err
		}
		bars, err := aggregate.MinuteBars(events, feeTier)
		if err != nil {
			return nil, err
		}
		return barsToTable(bars)
	}, nil
}

func positionProcessor(opts reconcile.Options) (ProcessFunc, error) {
	poolDecoder, err := dex.NewPoolDecoder()
	if err != nil {
		return nil, err
	}
	proxyDecoder, err := dex.NewPositionManagerDecoder()
	if err != nil {
		return nil, err
	}
	reconciler := reconcile.New(opts)

	return func(ctx context.Context, day time.Time, inputs []*storage.Table) (*storage.Table, error) {
		events, err := decodeTable(poolDecoder, inputs[0])
		if err != nil {
			return nil, err
		}
		liquidity := events[:0]
		for _, event := range events {
			if event.Kind.ProxyCounterpart() != "" {
				liquidity = append(liquidity, event)
			}
		}

		proxy, err := decodeTable(proxyDecoder, inputs[1])
		if err != nil {
			return nil, err
		}
		rows, _, err := reconciler.Reconcile(liquidity, proxy)
		if err != nil {
			return nil, err
		}
		return rowsToPositionTable(rows)
	}, nil
}

func decodeTable(decoder dex.Decoder, table *storage.Table) ([]model.TypedEvent, error) {
	logs, err := tableToLogs(table)
	if err != nil {
		return nil, err
	}
	return dex.DecodeAll(decoder, logs, true)
}
