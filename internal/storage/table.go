package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for output formats that cannot be written.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Format is the on-disk encoding of a day partition.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// ParseFormat accepts csv and jsonl. Columnar formats are recognized but rejected.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatCSV, FormatJSONL:
		return f, nil
	case "parquet", "feather":
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	default:
		return "", fmt.Errorf("unknown output format: %s", name)
	}
}

// Table is a string-typed column table, the unit passed between pipeline nodes.
type Table struct {
	Columns []string
	Rows    [][]string
}

func NewTable(columns ...string) *Table {
	return &Table{Columns: columns, Rows: make([][]string, 0)}
}

// Append adds a row; it must have one value per column.
func (t *Table) Append(values ...string) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of column or -1.
func (t *Table) Index(column string) int {
	for i, name := range t.Columns {
		if name == column {
			return i
		}
	}
	return -1
}

// WriteTable writes table to path atomically.
func WriteTable(path string, format Format, table *Table) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	switch format {
	case FormatCSV:
		err = writeCSV(file, table)
	case FormatJSONL:
		err = writeJSONLTable(file, table)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename output file: %w", err)
	}
	return nil
}

// ReadTable loads a table written by WriteTable.
func ReadTable(path string, format Format) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer file.Close()

	switch format {
	case FormatCSV:
		return readCSV(file)
	case FormatJSONL:
		return readJSONLTable(file)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
