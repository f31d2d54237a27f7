package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"defiFetch/internal/model"
)

// Storage receives batches of log records, e.g. the dump command's output.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// JsonlStorage appends log records to a JSONL file, one record per line.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutLogBatch appends a batch of log records as JSON lines.
func (s *JsonlStorage) PutLogBatch(logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)
	for _, record := range logs {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("write log record: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// ReadLogRecords loads every log record from a JSONL file. Blank lines are skipped.
func ReadLogRecords(path string) ([]model.LogRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log export: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var logs []model.LogRecord
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var record model.LogRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("%s:%d: decode log record: %w", path, line, err)
		}
		logs = append(logs, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log export: %w", err)
	}
	return logs, nil
}

// writeJSONLTable writes one object per row with keys in column order.
func writeJSONLTable(w io.Writer, table *Table) error {
	writer := bufio.NewWriter(w)
	for _, row := range table.Rows {
		writer.WriteByte('{')
		for i, column := range table.Columns {
			if i > 0 {
				writer.WriteByte(',')
			}
			key, _ := json.Marshal(column)
			value, _ := json.Marshal(row[i])
			writer.Write(key)
			writer.WriteByte(':')
			writer.Write(value)
		}
		writer.WriteString("}\n")
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("write jsonl table: %w", err)
	}
	return nil
}

// readJSONLTable takes the column order from the first object.
func readJSONLTable(r io.Reader) (*Table, error) {
	decoder := json.NewDecoder(r)
	var table *Table
	for decoder.More() {
		keys, values, err := decodeOrderedObject(decoder)
		if err != nil {
			return nil, fmt.Errorf("read jsonl table: %w", err)
		}
		if table == nil {
			table = NewTable(keys...)
		}
		row := make([]string, len(table.Columns))
		for i, key := range keys {
			idx := table.Index(key)
			if idx < 0 {
				return nil, fmt.Errorf("read jsonl table: unexpected column %q", key)
			}
			row[idx] = values[i]
		}
		table.Rows = append(table.Rows, row)
	}
	if table == nil {
		return NewTable(), nil
	}
	return table, nil
}

func decodeOrderedObject(decoder *json.Decoder) ([]string, []string, error) {
	token, err := decoder.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", token)
	}

	var keys, values []string
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected key, got %v", keyToken)
		}
		var value string
		if err := decoder.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", key, err)
		}
		keys = append(keys, key)
		values = append(values, value)
	}
	if _, err := decoder.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}
