// Package source provides the upstreams a day of contract logs can be read from.
package source

//go:generate mockgen -source source.go -destination source_mocks.go -package source

import (
	"context"
	"time"

	"defiFetch/internal/model"
)

// LogSource returns one day's logs of a contract ordered by
// (block_number, transaction_index, log_index).
type LogSource interface {
	DayLogs(ctx context.Context, day time.Time, contract model.ContractConfig) ([]model.LogRecord, error)
}

// DayBounds returns local midnight of day and the following midnight.
func DayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// dedupe drops repeated (transaction_hash, log_index) pairs and sorts the rest.
func dedupe(logs []model.LogRecord) []model.LogRecord {
	seen := make(map[model.LogKey]struct{}, len(logs))
	out := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		key := log.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, log)
	}
	model.SortLogs(out)
	return out
}
