package source

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"defiFetch/internal/model"
	"defiFetch/internal/storage"
)

// Export reads JSONL files written by a local log export tool. Every *.jsonl
// file under the directory is scanned on each call.
type Export struct {
	dir      string
	location *time.Location
}

func NewExport(dir string, loc *time.Location) *Export {
	return &Export{dir: dir, location: loc}
}

func (s *Export) DayLogs(ctx context.Context, day time.Time, contract model.ContractConfig) ([]model.LogRecord, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("list export files: %w", err)
	}
	sort.Strings(paths)

	from, to := DayBounds(day, s.location)
	var logs []model.LogRecord
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := storage.ReadLogRecords(path)
		if err != nil {
			return nil, err
		}
		for _, log := range records {
			if log.Removed || !strings.EqualFold(log.Address, contract.Address) {
				continue
			}
			ts := int64(log.Timestamp)
			if !log.HasTimestamp() || ts < from.Unix() || ts >= to.Unix() {
				continue
			}
			if contract.Matches(log.Topics) {
				logs = append(logs, log)
			}
		}
	}
	return dedupe(logs), nil
}
