package storage

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"defiFetch/internal/model"
)

func TestTableRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatJSONL} {
		table := NewTable("block_number", "transaction_hash", "data")
		if err := table.Append("10", "0xabc", `needs "quoting", here`); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := table.Append("11", "0xdef", ""); err != nil {
			t.Fatalf("append: %v", err)
		}

		path := filepath.Join(t.TempDir(), "out."+string(format))
		if err := WriteTable(path, format, table); err != nil {
			t.Fatalf("%s write: %v", format, err)
		}
		got, err := ReadTable(path, format)
		if err != nil {
			t.Fatalf("%s read: %v", format, err)
		}
		if !reflect.DeepEqual(got, table) {
			t.Fatalf("%s round trip mismatch: %+v != %+v", format, got, table)
		}
	}
}

func TestEmptyCSVKeepsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := WriteTable(path, FormatCSV, NewTable("a", "b")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadTable(path, FormatCSV)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got.Columns, []string{"a", "b"}) || got.Len() != 0 {
		t.Fatalf("unexpected table %+v", got)
	}
}

func TestAppendRejectsWrongWidth(t *testing.T) {
	if err := NewTable("a").Append("1", "2"); err == nil {
		t.Fatalf("expected width error")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("CSV"); err != nil || f != FormatCSV {
		t.Fatalf("csv = %s %v", f, err)
	}
	if _, err := ParseFormat("parquet"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if _, err := ParseFormat("xml"); err == nil || errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}

func TestJsonlLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "export.jsonl")
	sink := NewJsonlStorage(path)
	logs := []model.LogRecord{
		{Chain: "ethereum", BlockNumber: 1, TxHash: "0x01", Topics: []string{"0xaa"}, Data: "0x", Timestamp: 10},
		{Chain: "ethereum", BlockNumber: 2, TxHash: "0x02", LogIndex: 4, Topics: []string{"0xbb", "0xcc"}, Data: "0x01"},
	}
	if err := sink.PutLogBatch(logs[:1]); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := sink.PutLogBatch(logs[1:]); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := ReadLogRecords(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, logs) {
		t.Fatalf("mismatch: %+v != %+v", got, logs)
	}
}
