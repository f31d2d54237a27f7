//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"defiFetch/internal/model"
)

func TestStoreQueryLogs(t *testing.T) {
	ctx := context.Background()
	container, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		tcpostgres.WithDatabase("warehouse"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	defer container.Terminate(ctx)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}

	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	logs := []model.LogRecord{
		{Chain: "ethereum", Address: "0xPool", BlockNumber: 11, Timestamp: uint64(day.Unix()) + 60, TxHash: "0x02", LogIndex: 0, Topics: []string{"0xaa"}, Data: "0x"},
		{Chain: "ethereum", Address: "0xPool", BlockNumber: 10, Timestamp: uint64(day.Unix()) + 10, TxHash: "0x01", LogIndex: 3, Topics: []string{"0xbb"}, Data: "0x"},
		{Chain: "ethereum", Address: "0xPool", BlockNumber: 20, Timestamp: uint64(day.Unix()) + 86400, TxHash: "0x03", LogIndex: 0, Topics: []string{"0xaa"}, Data: "0x"},
	}
	if err := store.InsertLogs(ctx, logs); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.QueryLogs(ctx, LogQuery{Chain: "ethereum", Address: "0xpool", From: day, To: day.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].BlockNumber != 10 || got[1].BlockNumber != 11 {
		t.Fatalf("unexpected logs %+v", got)
	}

	filtered, err := store.QueryLogs(ctx, LogQuery{Chain: "ethereum", Address: "0xpool", From: day, To: day.AddDate(0, 0, 1), Topic0: []string{"0xAA"}})
	if err != nil {
		t.Fatalf("query filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].TxHash != "0x02" {
		t.Fatalf("unexpected filtered logs %+v", filtered)
	}
}
