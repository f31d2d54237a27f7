package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"defiFetch/internal/height"
	"defiFetch/internal/indexer"
	"defiFetch/internal/model"
	"defiFetch/internal/storage"
	"defiFetch/internal/storage/postgres"
)

const (
	pool     = "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640"
	swap     = "0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67"
	mint     = "0x7a53080ba414158be7ec69b987b5fb7d07dee101fe85488f0853ae16239d0bde"
	dayStart = 1704153600 // 2024-01-02T00:00:00Z
)

var testDay = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

type fixedResolver struct {
	r   height.Range
	err error
}

func (f fixedResolver) Resolve(ctx context.Context, day time.Time) (height.Range, error) {
	return f.r, f.err
}

type storeFetcher struct {
	store *indexer.PartitionStore
	logs  []model.LogRecord
	calls int
}

func (f *storeFetcher) Fetch(ctx context.Context, contract model.ContractConfig, start, end uint64) ([]string, error) {
	f.calls++
	path, err := f.store.Write(indexer.PartitionKey{Chain: "ethereum", Address: contract.Address, Start: start, End: end}, f.logs)
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func record(block uint64, txIndex, logIndex uint32, topic string, ts uint64) model.LogRecord {
	return model.LogRecord{
		Chain:       "ethereum",
		BlockNumber: block,
		TxHash:      "0x" + string(rune('a'+logIndex)),
		TxIndex:     txIndex,
		LogIndex:    logIndex,
		Address:     pool,
		Topics:      []string{topic},
		Data:        "0x",
		Timestamp:   ts,
	}
}

func TestRPCDayLogsFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	fetcher := &storeFetcher{
		store: indexer.NewPartitionStore(dir),
		logs: []model.LogRecord{
			record(105, 0, 4, swap, dayStart+60),
			record(101, 1, 2, swap, dayStart+12),
			record(101, 0, 1, mint, dayStart+12),
			record(99, 0, 0, swap, dayStart-12),
			record(101, 1, 2, swap, dayStart+12),
		},
	}
	src := NewRPC(fixedResolver{r: height.Range{Start: 100, End: 110}}, fetcher, nil)

	logs, err := src.DayLogs(context.Background(), testDay, model.NewContractConfig(pool, swap))
	if err != nil {
		t.Fatalf("day logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].BlockNumber != 101 || logs[1].BlockNumber != 105 {
		t.Fatalf("unexpected order %+v", logs)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected partitions removed, found %d files", len(entries))
	}
}

func TestRPCDayLogsEmptyDay(t *testing.T) {
	fetcher := &storeFetcher{store: indexer.NewPartitionStore(t.TempDir())}
	src := NewRPC(fixedResolver{r: height.Range{Start: 100, End: 110}}, fetcher, nil)
	src.KeepPartitions = true

	logs, err := src.DayLogs(context.Background(), testDay, model.NewContractConfig(pool))
	if err != nil {
		t.Fatalf("day logs: %v", err)
	}
	if logs == nil || len(logs) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", logs)
	}
}

func TestRPCDayLogsResolverError(t *testing.T) {
	fetcher := &storeFetcher{store: indexer.NewPartitionStore(t.TempDir())}
	boom := errors.New("explorer down")
	src := NewRPC(fixedResolver{err: boom}, fetcher, nil)
	if _, err := src.DayLogs(context.Background(), testDay, model.NewContractConfig(pool)); !errors.Is(err, boom) {
		t.Fatalf("expected resolver error, got %v", err)
	}
	if fetcher.calls != 0 {
		t.Fatalf("fetcher should not run")
	}
}

type fakeQuerier struct {
	got  postgres.LogQuery
	logs []model.LogRecord
}

func (f *fakeQuerier) QueryLogs(ctx context.Context, q postgres.LogQuery) ([]model.LogRecord, error) {
	f.got = q
	return f.logs, nil
}

func TestWarehouseDayLogs(t *testing.T) {
	querier := &fakeQuerier{logs: []model.LogRecord{
		record(11, 0, 1, swap, dayStart+20),
		record(10, 0, 0, mint, dayStart+10),
	}}
	src := NewWarehouse(querier, "ethereum", time.UTC)

	logs, err := src.DayLogs(context.Background(), testDay.Add(5*time.Hour), model.NewContractConfig(pool, swap))
	if err != nil {
		t.Fatalf("day logs: %v", err)
	}
	if len(logs) != 1 || logs[0].BlockNumber != 11 {
		t.Fatalf("unexpected logs %+v", logs)
	}
	if !querier.got.From.Equal(testDay) || !querier.got.To.Equal(testDay.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected window %s - %s", querier.got.From, querier.got.To)
	}
	if len(querier.got.Topic0) != 1 || querier.got.Topic0[0] != swap || querier.got.Chain != "ethereum" {
		t.Fatalf("unexpected query %+v", querier.got)
	}
}

func TestExportDayLogs(t *testing.T) {
	dir := t.TempDir()
	sink := storage.NewJsonlStorage(filepath.Join(dir, "pool.jsonl"))
	other := record(12, 0, 5, swap, dayStart+30)
	other.Address = "0x0000000000000000000000000000000000000001"
	removed := record(13, 0, 6, swap, dayStart+40)
	removed.Removed = true
	if err := sink.PutLogBatch([]model.LogRecord{
		record(20, 0, 2, swap, dayStart+86400),
		record(11, 0, 1, swap, dayStart+20),
		record(10, 0, 0, swap, dayStart+10),
		other,
		removed,
	}); err != nil {
		t.Fatalf("write export: %v", err)
	}

	logs, err := NewExport(dir, time.UTC).DayLogs(context.Background(), testDay, model.NewContractConfig(pool, swap))
	if err != nil {
		t.Fatalf("day logs: %v", err)
	}
	if len(logs) != 2 || logs[0].BlockNumber != 10 || logs[1].BlockNumber != 11 {
		t.Fatalf("unexpected logs %+v", logs)
	}
}
