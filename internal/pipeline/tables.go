package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"defiFetch/internal/model"
	"defiFetch/internal/reconcile"
	"defiFetch/internal/storage"
)

const topicSeparator = ";"

var logColumns = []string{
	"block_number", "block_timestamp", "transaction_hash", "transaction_index",
	"log_index", "address", "topics", "data",
}

var tickColumns = []string{
	"block_number", "block_timestamp", "transaction_hash", "transaction_index", "log_index", "address",
	"kind", "sender", "recipient", "owner", "tick_lower", "tick_upper", "amount", "amount0", "amount1",
	"sqrt_price_x96", "liquidity", "tick", "topics", "data",
}

var minuteColumns = []string{
	"minute", "pool", "swap_count", "volume0", "volume1", "fee0", "fee1",
	"open_tick", "close_tick", "sqrt_price_x96", "liquidity",
}

var positionColumns = []string{
	"block_number", "block_timestamp", "transaction_hash", "log_index", "kind", "owner",
	"tick_lower", "tick_upper", "liquidity", "amount0", "amount1",
	"proxy_log_index", "proxy_kind", "token_id", "proxy_liquidity", "proxy_amount0", "proxy_amount1",
}

func logsToTable(logs []model.LogRecord) (*storage.Table, error) {
	table := storage.NewTable(logColumns...)
	for _, log := range logs {
		err := table.Append(
			u64(log.BlockNumber),
			u64(log.Timestamp),
			log.TxHash,
			u64(uint64(log.TxIndex)),
			u64(uint64(log.LogIndex)),
			log.Address,
			strings.Join(log.Topics, topicSeparator),
			log.Data,
		)
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}

// tableToLogs rebuilds log records from any table carrying the log columns.
// An empty jsonl artifact has no header, so empty tables skip the column check.
func tableToLogs(table *storage.Table) ([]model.LogRecord, error) {
	if table.Len() == 0 {
		return nil, nil
	}
	idx := make(map[string]int, len(logColumns))
	for _, column := range logColumns {
		pos := table.Index(column)
		if pos < 0 {
			return nil, fmt.Errorf("table is missing column %s", column)
		}
		idx[column] = pos
	}

	logs := make([]model.LogRecord, 0, table.Len())
	for i, row := range table.Rows {
		blockNumber, err := parseU64(row[idx["block_number"]])
		if err != nil {
			return nil, fmt.Errorf("row %d block_number: %w", i, err)
		}
		timestamp, err := parseU64(row[idx["block_timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("row %d block_timestamp: %w", i, err)
		}
		txIndex, err := strconv.ParseUint(row[idx["transaction_index"]], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("row %d transaction_index: %w", i, err)
		}
		logIndex, err := strconv.ParseUint(row[idx["log_index"]], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("row %d log_index: %w", i, err)
		}

		var topics []string
		if raw := row[idx["topics"]]; raw != "" {
			topics = strings.Split(raw, topicSeparator)
		}
		logs = append(logs, model.LogRecord{
			BlockNumber: blockNumber,
			Timestamp:   timestamp,
			TxHash:      row[idx["transaction_hash"]],
			TxIndex:     uint32(txIndex),
			LogIndex:    uint32(logIndex),
			Address:     row[idx["address"]],
			Topics:      topics,
			Data:        row[idx["data"]],
		})
	}
	return logs, nil
}

func eventsToTickTable(events []model.TypedEvent) (*storage.Table, error) {
	table := storage.NewTable(tickColumns...)
	for _, event := range events {
		var sender, recipient, owner, tickLower, tickUpper, amount, amount0, amount1, sqrtPrice, liquidity, tick string
		switch decoded := event.Decoded.(type) {
		case model.SwapEventData:
			sender, recipient = decoded.Sender, decoded.Recipient
			amount0, amount1 = decoded.Amount0, decoded.Amount1
			sqrtPrice, liquidity = decoded.SqrtPriceX96, decoded.Liquidity
			tick = i32(decoded.Tick)
		case model.MintEventData:
			sender, owner = decoded.Sender, decoded.Owner
			tickLower, tickUpper = i32(decoded.TickLower), i32(decoded.TickUpper)
			amount, amount0, amount1 = decoded.Amount, decoded.Amount0, decoded.Amount1
		case model.BurnEventData:
			owner = decoded.Owner
			tickLower, tickUpper = i32(decoded.TickLower), i32(decoded.TickUpper)
			amount, amount0, amount1 = decoded.Amount, decoded.Amount0, decoded.Amount1
		case model.CollectEventData:
			owner, recipient = decoded.Owner, decoded.Recipient
			tickLower, tickUpper = i32(decoded.TickLower), i32(decoded.TickUpper)
			amount0, amount1 = decoded.Amount0, decoded.Amount1
		default:
			return nil, fmt.Errorf("%s#%d: unexpected payload %T", event.TxHash, event.LogIndex, event.Decoded)
		}

		var topics, data string
		if event.Raw != nil {
			topics, data = strings.Join(event.Raw.Topics, topicSeparator), event.Raw.Data
		}
		err := table.Append(
			u64(event.BlockNumber), u64(event.Timestamp), event.TxHash,
			u64(uint64(event.TxIndex)), u64(uint64(event.LogIndex)), event.Address,
			string(event.Kind), sender, recipient, owner, tickLower, tickUpper,
			amount, amount0, amount1, sqrtPrice, liquidity, tick, topics, data,
		)
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}

func barsToTable(bars []model.MinuteBar) (*storage.Table, error) {
	table := storage.NewTable(minuteColumns...)
	for _, bar := range bars {
		err := table.Append(
			bar.Minute.UTC().Format(time.RFC3339), bar.PoolAddress, u64(bar.SwapCount),
			bar.Volume0, bar.Volume1, bar.Fee0, bar.Fee1,
			i32(bar.OpenTick), i32(bar.CloseTick), bar.SqrtPriceX96, bar.Liquidity,
		)
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}

func rowsToPositionTable(rows []reconcile.Row) (*storage.Table, error) {
	table := storage.NewTable(positionColumns...)
	for _, row := range rows {
		var owner, tickLower, tickUpper, liquidity, amount0, amount1 string
		switch decoded := row.Pool.Decoded.(type) {
		case model.MintEventData:
			owner = decoded.Owner
			tickLower, tickUpper = i32(decoded.TickLower), i32(decoded.TickUpper)
			liquidity, amount0, amount1 = decoded.Amount, decoded.Amount0, decoded.Amount1
		case model.BurnEventData:
			owner = decoded.Owner
			tickLower, tickUpper = i32(decoded.TickLower), i32(decoded.TickUpper)
			liquidity, amount0, amount1 = decoded.Amount, decoded.Amount0, decoded.Amount1
		case model.CollectEventData:
			owner = decoded.Owner
			tickLower, tickUpper = i32(decoded.TickLower), i32(decoded.TickUpper)
			amount0, amount1 = decoded.Amount0, decoded.Amount1
		default:
			return nil, fmt.Errorf("%s#%d: unexpected payload %T", row.Pool.TxHash, row.Pool.LogIndex, row.Pool.Decoded)
		}

		var proxyIndex, proxyKind, tokenID, proxyLiquidity, proxyAmount0, proxyAmount1 string
		if row.Proxy != nil {
			proxyIndex, proxyKind = u64(uint64(row.Proxy.LogIndex)), string(row.Proxy.Kind)
			switch decoded := row.Proxy.Decoded.(type) {
			case model.IncreaseLiquidityEventData:
				tokenID, proxyLiquidity = decoded.TokenID, decoded.Liquidity
				proxyAmount0, proxyAmount1 = decoded.Amount0, decoded.Amount1
			case model.DecreaseLiquidityEventData:
				tokenID, proxyLiquidity = decoded.TokenID, decoded.Liquidity
				proxyAmount0, proxyAmount1 = decoded.Amount0, decoded.Amount1
			case model.PositionCollectEventData:
				tokenID = decoded.TokenID
				proxyAmount0, proxyAmount1 = decoded.Amount0, decoded.Amount1
			}
		}

		err := table.Append(
			u64(row.Pool.BlockNumber), u64(row.Pool.Timestamp), row.Pool.TxHash,
			u64(uint64(row.Pool.LogIndex)), string(row.Pool.Kind), owner,
			tickLower, tickUpper, liquidity, amount0, amount1,
			proxyIndex, proxyKind, tokenID, proxyLiquidity, proxyAmount0, proxyAmount1,
		)
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func i32(v int32) string { return strconv.FormatInt(int64(v), 10) }

func parseU64(value string) (uint64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseUint(value, 10, 64)
}
